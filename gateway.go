package repricer

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultProbeWait = 3 * time.Second
	defaultDipFactor = "0.5"
)

// Gateway issues marketplace calls through the scheduler. It owns no
// persistent state; every probe borrows the scheduler for the duration of
// its call sequence.
type Gateway struct {
	sched     *Scheduler
	client    MarketplaceClient
	logger    *slog.Logger
	probeWait time.Duration
	dipFactor decimal.Decimal
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the gateway logger. Nil falls back to slog.Default().
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithProbeWait sets the delay between the dip update and the peek fetch.
func WithProbeWait(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.probeWait = d }
}

// WithDipFactor sets the fraction of the original price used as the dip
// value.
func WithDipFactor(f decimal.Decimal) GatewayOption {
	return func(g *Gateway) { g.dipFactor = f }
}

// NewGateway creates a Gateway issuing calls through sched against client.
func NewGateway(sched *Scheduler, client MarketplaceClient, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		sched:     sched,
		client:    client,
		logger:    slog.Default(),
		probeWait: defaultProbeWait,
		dipFactor: decimal.RequireFromString(defaultDipFactor),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RunPriceProbe executes the Dip-Peek-Peak protocol for one listing and
// returns the corrective price it settled on.
//
// The probe reserves its two price updates upfront so the correction can
// never be starved out of the window by unrelated traffic. A peek failure
// is recovered locally: the probe proceeds with no competitor data and
// corrects back to the pre-dip price. A dip or peak failure leaves the
// listing at the dip price until EmergencyRecover is invoked; callers
// should check IsStuckRisk and alert.
func (g *Gateway) RunPriceProbe(ctx context.Context, listing Listing) (decimal.Decimal, error) {
	rsv, err := g.sched.Reserve(ctx, PriorityNormal, 2)
	if err != nil {
		return decimal.Zero, &ProbeError{ListingID: listing.ID, Phase: PhaseDip, Err: err}
	}
	defer rsv.Release()

	// DIP: provoke competitor repricing bots into revealing their floor.
	dipPrice := listing.Price.Mul(g.dipFactor).Round(2)
	_, err = g.sched.Schedule(ctx, Call{
		Endpoint:    "listings/" + listing.ID + "/price",
		Priority:    PriorityNormal,
		Cost:        1,
		Reservation: rsv,
		Do: func(ctx context.Context) (CallResult, error) {
			return g.client.UpdateListingPrice(ctx, listing.ID, dipPrice)
		},
	})
	if err != nil {
		return decimal.Zero, &ProbeError{ListingID: listing.ID, Phase: PhaseDip, Err: err}
	}
	g.logger.Info("probe dipped", "listing", listing.ID, "dip_price", dipPrice)

	// WAITING: give competitor systems time to react. No lock is held.
	select {
	case <-time.After(g.probeWait):
	case <-ctx.Done():
		return decimal.Zero, &ProbeError{ListingID: listing.ID, Phase: PhaseWait, Err: ctx.Err()}
	}

	// PEEK: a transient failure here must never strand the listing at the
	// dip price, so the error is logged and the probe continues without
	// competitor data.
	var competitorPrices []decimal.Decimal
	_, err = g.sched.Schedule(ctx, Call{
		Endpoint: "listings/" + listing.ID + "/competitors",
		Priority: PriorityHigh,
		Cost:     1,
		Do: func(ctx context.Context) (CallResult, error) {
			prices, res, err := g.client.CompetitorPrices(ctx, listing.ID)
			competitorPrices = prices
			return res, err
		},
	})
	if err != nil {
		competitorPrices = nil
		g.logger.Warn("peek failed, correcting without competitor data",
			"listing", listing.ID, "error", err)
	}

	// PEAK: issue the correction against the reservation paid in DIP.
	corrective := CorrectivePrice(listing.Price, competitorPrices)
	_, err = g.sched.Schedule(ctx, Call{
		Endpoint:    "listings/" + listing.ID + "/price",
		Priority:    PriorityHigh,
		Cost:        1,
		Reservation: rsv,
		Do: func(ctx context.Context) (CallResult, error) {
			return g.client.UpdateListingPrice(ctx, listing.ID, corrective)
		},
	})
	if err != nil {
		return decimal.Zero, &ProbeError{ListingID: listing.ID, Phase: PhasePeak, Err: err}
	}

	g.logger.Info("probe done",
		"listing", listing.ID,
		"corrective_price", corrective,
		"competitors", len(competitorPrices))
	return corrective, nil
}

// ApplyStrategy reprices a listing from live competitor data using a
// business strategy instead of a probe: one peek, one update, both against
// the live budget.
func (g *Gateway) ApplyStrategy(ctx context.Context, listing Listing, strategy Strategy, ceiling *decimal.Decimal) (PricingResult, error) {
	var competitorPrices []decimal.Decimal
	_, err := g.sched.Schedule(ctx, Call{
		Endpoint: "listings/" + listing.ID + "/competitors",
		Priority: PriorityNormal,
		Cost:     1,
		Do: func(ctx context.Context) (CallResult, error) {
			prices, res, err := g.client.CompetitorPrices(ctx, listing.ID)
			competitorPrices = prices
			return res, err
		},
	})
	if err != nil {
		return PricingResult{}, err
	}

	result := CalculatePrice(competitorPrices, listing.FloorPrice, strategy, ceiling)
	_, err = g.sched.Schedule(ctx, Call{
		Endpoint: "listings/" + listing.ID + "/price",
		Priority: PriorityNormal,
		Cost:     1,
		Do: func(ctx context.Context) (CallResult, error) {
			return g.client.UpdateListingPrice(ctx, listing.ID, result.TargetPrice)
		},
	})
	if err != nil {
		return PricingResult{}, err
	}
	return result, nil
}

// EmergencyRecover forces a listing out of a stuck dip-priced state with a
// single CRITICAL, unreserved price update. It bypasses the probe state
// machine entirely and is admitted ahead of any queued lower-priority
// traffic the moment budget is available.
func (g *Gateway) EmergencyRecover(ctx context.Context, listingID string, targetPrice decimal.Decimal) error {
	_, err := g.sched.Schedule(ctx, Call{
		Endpoint: "listings/" + listingID + "/price",
		Priority: PriorityCritical,
		Cost:     1,
		Do: func(ctx context.Context) (CallResult, error) {
			return g.client.UpdateListingPrice(ctx, listingID, targetPrice)
		},
	})
	if err != nil {
		return err
	}
	g.logger.Warn("emergency recovery applied", "listing", listingID, "target_price", targetPrice)
	return nil
}

// SyncOrders pages the buyback order feed through the scheduler and
// returns the number of orders seen. The order states themselves are
// handled by collaborators outside this core.
func (g *Gateway) SyncOrders(ctx context.Context) (int, error) {
	total := 0
	for page := 1; ; page++ {
		var (
			orders []Order
			more   bool
		)
		_, err := g.sched.Schedule(ctx, Call{
			Endpoint: "orders",
			Priority: PriorityNormal,
			Cost:     1,
			Do: func(ctx context.Context) (CallResult, error) {
				o, m, res, err := g.client.Orders(ctx, page)
				orders, more = o, m
				return res, err
			},
		})
		if err != nil {
			return total, err
		}
		total += len(orders)
		if !more {
			return total, nil
		}
	}
}
