package repricer

import "github.com/shopspring/decimal"

// StrategyKind selects how a target price is derived from competitor data.
type StrategyKind string

const (
	UndercutLowest StrategyKind = "undercut_lowest"
	MatchLowest    StrategyKind = "match_lowest"
	OvercutHighest StrategyKind = "overcut_highest"
)

// Strategy is a repricing rule. Amount must be non-negative; violating
// that is a caller contract violation, not something checked here.
type Strategy struct {
	Kind   StrategyKind    `yaml:"kind"`
	Amount decimal.Decimal `yaml:"amount"`
}

// ConstraintReason explains why a pricing result was clamped.
type ConstraintReason string

const (
	ConstraintNone          ConstraintReason = ""
	ConstraintNoCompetitors ConstraintReason = "no_competitors"
	ConstraintFloor         ConstraintReason = "floor"
	ConstraintCeiling       ConstraintReason = "ceiling"
)

// PricingResult is the output of CalculatePrice. Constrained is true
// whenever the raw strategy output was clamped or no competitor data
// existed; Reason distinguishes the cause.
type PricingResult struct {
	TargetPrice decimal.Decimal
	Constrained bool
	Reason      ConstraintReason
	FlooredAt   decimal.Decimal
}

// CorrectivePrice computes the post-dip correction for a probe. With no
// competitor data it falls back to the pre-dip price, so a failed peek can
// never strand a listing at its dip value. Otherwise it undercuts the
// lowest competitor by one percent but never drops below half the original
// price, a floor of last resort independent of the business floor.
func CorrectivePrice(originalPrice decimal.Decimal, competitorPrices []decimal.Decimal) decimal.Decimal {
	if len(competitorPrices) == 0 {
		return originalPrice
	}
	lowest := competitorPrices[0]
	for _, p := range competitorPrices[1:] {
		if p.LessThan(lowest) {
			lowest = p
		}
	}
	undercut := lowest.Mul(decimal.NewFromFloat(0.99))
	lastResort := originalPrice.Mul(decimal.NewFromFloat(0.5))
	return decimal.Max(undercut, lastResort).Round(2)
}

// CalculatePrice turns competitor prices and business constraints into a
// target price. Pure and deterministic: no I/O, no randomness.
//
// Results are rounded to cents half-up before clamping, so subtracting
// 0.01 from 10.03 yields exactly 10.02.
func CalculatePrice(competitorPrices []decimal.Decimal, floorPrice decimal.Decimal, strategy Strategy, ceilingPrice *decimal.Decimal) PricingResult {
	if len(competitorPrices) == 0 {
		return PricingResult{
			TargetPrice: floorPrice,
			Constrained: true,
			Reason:      ConstraintNoCompetitors,
			FlooredAt:   floorPrice,
		}
	}

	lowest := competitorPrices[0]
	highest := competitorPrices[0]
	for _, p := range competitorPrices[1:] {
		if p.LessThan(lowest) {
			lowest = p
		}
		if p.GreaterThan(highest) {
			highest = p
		}
	}

	var target decimal.Decimal
	switch strategy.Kind {
	case UndercutLowest:
		target = lowest.Sub(strategy.Amount)
	case MatchLowest:
		target = lowest
	case OvercutHighest:
		target = highest.Add(strategy.Amount)
	default:
		target = lowest
	}
	target = target.Round(2)

	result := PricingResult{TargetPrice: target, FlooredAt: floorPrice}
	if target.LessThan(floorPrice) {
		result.TargetPrice = floorPrice
		result.Constrained = true
		result.Reason = ConstraintFloor
	}
	if ceilingPrice != nil && result.TargetPrice.GreaterThan(*ceilingPrice) {
		result.TargetPrice = *ceilingPrice
		result.Constrained = true
		result.Reason = ConstraintCeiling
	}
	return result
}
