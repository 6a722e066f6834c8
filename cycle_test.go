package repricer_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
	"github.com/yidyetebeje/circtek-buyback-sub001/listing"
	"github.com/yidyetebeje/circtek-buyback-sub001/marketplace/mock"
)

func TestCycle_TaskFailureDoesNotStopInterval(t *testing.T) {
	c := repricer.NewCycle(repricer.WithJitterMax(0))
	defer c.Stop()

	var runs atomic.Int64
	var failing atomic.Bool
	failing.Store(true)
	c.Register("flaky", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		if failing.Load() {
			return errors.New("transient failure")
		}
		return nil
	})
	require.NoError(t, c.Start())

	// Failing runs are recorded but do not stop the interval.
	assert.Eventually(t, func() bool {
		st, ok := c.Status()["flaky"]
		return ok && st.LastError == "transient failure"
	}, time.Second, 5*time.Millisecond)

	// Once the task recovers, the next run clears the error and stamps
	// the run time.
	failing.Store(false)
	assert.Eventually(t, func() bool {
		st := c.Status()["flaky"]
		return st.LastError == "" && st.LastRunAt != nil
	}, time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, runs.Load(), int64(2))
}

func TestCycle_PanicIsRecovered(t *testing.T) {
	c := repricer.NewCycle(repricer.WithJitterMax(0))
	defer c.Stop()

	var runs atomic.Int64
	c.Register("explosive", 20*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		panic("boom")
	})
	require.NoError(t, c.Start())

	assert.Eventually(t, func() bool {
		st, ok := c.Status()["explosive"]
		return ok && st.LastError != "" && runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, c.Status()["explosive"].LastError, "panicked")
}

func TestCycle_StartStopLifecycle(t *testing.T) {
	c := repricer.NewCycle(repricer.WithJitterMax(0))

	var runs atomic.Int64
	c.Register("tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	})

	require.NoError(t, c.Start())
	assert.ErrorIs(t, c.Start(), repricer.ErrCycleAlreadyStarted)

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	c.Stop()

	// Let any in-flight run drain before sampling.
	time.Sleep(20 * time.Millisecond)
	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")

	// Tasks survive a stop and can be started again.
	require.NoError(t, c.Start())
	assert.Eventually(t, func() bool { return runs.Load() > after }, time.Second, 5*time.Millisecond)
	c.Stop()
}

func TestRepricingTask_ProbesListingsSequentially(t *testing.T) {
	client := mock.New(mock.WithCompetitorPrices(dec("80.00")))
	gw, _ := newTestGateway(t, client, repricer.RateWindow{Capacity: 100, Window: time.Hour})

	source := listing.NewStaticSource(
		repricer.Listing{ID: "l1", Price: dec("100.00"), FloorPrice: dec("10.00")},
		repricer.Listing{ID: "l2", Price: dec("200.00"), FloorPrice: dec("10.00")},
		repricer.Listing{ID: "l3", Price: dec("300.00"), FloorPrice: dec("10.00")},
	)

	task := repricer.NewRepricingTask(gw, source, nil)
	require.NoError(t, task(context.Background()))

	updates := client.Updates()
	require.Len(t, updates, 6, "two price updates per listing")

	// Each listing's probe runs to completion before the next begins.
	want := []string{"l1", "l1", "l2", "l2", "l3", "l3"}
	for i, u := range updates {
		assert.Equal(t, want[i], u.ListingID)
	}
}

func TestRepricingTask_ContinuesAfterProbeFailure(t *testing.T) {
	client := mock.New(mock.WithUpdateError(errors.New("upstream 500")))
	gw, _ := newTestGateway(t, client, repricer.RateWindow{Capacity: 100, Window: time.Hour})

	source := listing.NewStaticSource(
		repricer.Listing{ID: "l1", Price: dec("100.00")},
		repricer.Listing{ID: "l2", Price: dec("100.00")},
	)

	// Every probe fails, but the cycle itself completes.
	task := repricer.NewRepricingTask(gw, source, nil)
	assert.NoError(t, task(context.Background()))
}

func TestOrderSyncTask(t *testing.T) {
	client := mock.New(mock.WithOrders(
		repricer.Order{ID: "o1", State: "pending"},
		repricer.Order{ID: "o2", State: "paid"},
	))
	gw, _ := newTestGateway(t, client, repricer.RateWindow{Capacity: 100, Window: time.Hour})

	task := repricer.NewOrderSyncTask(gw, nil)
	assert.NoError(t, task(context.Background()))
}
