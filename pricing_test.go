package repricer_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

func TestCalculatePrice_NoCompetitors_FallsToFloor(t *testing.T) {
	res := repricer.CalculatePrice(nil, dec("10.00"),
		repricer.Strategy{Kind: repricer.UndercutLowest, Amount: dec("0.01")}, nil)

	assert.True(t, res.TargetPrice.Equal(dec("10.00")))
	assert.True(t, res.Constrained)
	assert.Equal(t, repricer.ConstraintNoCompetitors, res.Reason)
	assert.True(t, res.FlooredAt.Equal(dec("10.00")))
}

func TestCalculatePrice_UndercutLowest_NoDrift(t *testing.T) {
	res := repricer.CalculatePrice(decs("10.03"), dec("5.00"),
		repricer.Strategy{Kind: repricer.UndercutLowest, Amount: dec("0.01")}, nil)

	// Exactly 10.02, never 10.019999....
	assert.Equal(t, "10.02", res.TargetPrice.StringFixed(2))
	assert.False(t, res.Constrained)
	assert.Equal(t, repricer.ConstraintNone, res.Reason)
}

func TestCalculatePrice_FloorClampFires(t *testing.T) {
	res := repricer.CalculatePrice(decs("4.00"), dec("5.00"),
		repricer.Strategy{Kind: repricer.UndercutLowest, Amount: dec("0.01")}, nil)

	assert.True(t, res.TargetPrice.Equal(dec("5.00")))
	assert.True(t, res.Constrained)
	assert.Equal(t, repricer.ConstraintFloor, res.Reason)
}

func TestCalculatePrice_CeilingClampFires(t *testing.T) {
	ceiling := dec("50.00")
	res := repricer.CalculatePrice(decs("100"), dec("5.00"),
		repricer.Strategy{Kind: repricer.OvercutHighest, Amount: dec("1.00")}, &ceiling)

	assert.True(t, res.TargetPrice.Equal(dec("50.00")))
	assert.True(t, res.Constrained)
	assert.Equal(t, repricer.ConstraintCeiling, res.Reason)
}

func TestCalculatePrice_Strategies(t *testing.T) {
	prices := decs("9.50", "12.00", "10.25")

	t.Run("match lowest", func(t *testing.T) {
		res := repricer.CalculatePrice(prices, dec("1.00"),
			repricer.Strategy{Kind: repricer.MatchLowest}, nil)
		assert.Equal(t, "9.50", res.TargetPrice.StringFixed(2))
		assert.False(t, res.Constrained)
	})

	t.Run("undercut lowest", func(t *testing.T) {
		res := repricer.CalculatePrice(prices, dec("1.00"),
			repricer.Strategy{Kind: repricer.UndercutLowest, Amount: dec("0.05")}, nil)
		assert.Equal(t, "9.45", res.TargetPrice.StringFixed(2))
	})

	t.Run("overcut highest", func(t *testing.T) {
		res := repricer.CalculatePrice(prices, dec("1.00"),
			repricer.Strategy{Kind: repricer.OvercutHighest, Amount: dec("0.50")}, nil)
		assert.Equal(t, "12.50", res.TargetPrice.StringFixed(2))
	})
}

func TestCorrectivePrice(t *testing.T) {
	t.Run("no competitor data falls back to original", func(t *testing.T) {
		got := repricer.CorrectivePrice(dec("100.00"), nil)
		assert.Equal(t, "100.00", got.StringFixed(2))
	})

	t.Run("undercuts lowest competitor by one percent", func(t *testing.T) {
		got := repricer.CorrectivePrice(dec("100.00"), decs("90.00", "80.00"))
		assert.Equal(t, "79.20", got.StringFixed(2))
	})

	t.Run("never below half the original price", func(t *testing.T) {
		got := repricer.CorrectivePrice(dec("100.00"), decs("40.00"))
		assert.Equal(t, "50.00", got.StringFixed(2))
	})
}
