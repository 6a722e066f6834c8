package repricer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

const defaultJitterMax = 10 * time.Second

// TaskFunc is one recurring unit of work. Errors are recorded in the task's
// status and swallowed; they never stop the interval.
type TaskFunc func(ctx context.Context) error

// Cycle drives the recurring sync and repricing tasks. Its timers and
// status map live from Start to Stop; nothing survives a restart.
type Cycle struct {
	cron      *gocron.Scheduler
	logger    *slog.Logger
	jitterMax time.Duration

	mu      sync.Mutex
	tasks   []cycleTask
	status  map[string]*TaskStatus
	started bool
}

type cycleTask struct {
	name     string
	interval time.Duration
	fn       TaskFunc
}

// CycleOption configures a Cycle.
type CycleOption func(*Cycle)

// WithCycleLogger sets the cycle logger. Nil falls back to slog.Default().
func WithCycleLogger(l *slog.Logger) CycleOption {
	return func(c *Cycle) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithJitterMax bounds the random delay applied to each task's first run.
// Zero disables jitter.
func WithJitterMax(d time.Duration) CycleOption {
	return func(c *Cycle) { c.jitterMax = d }
}

// NewCycle creates an empty task orchestrator.
func NewCycle(opts ...CycleOption) *Cycle {
	c := &Cycle{
		cron:      gocron.NewScheduler(time.UTC),
		logger:    slog.Default(),
		jitterMax: defaultJitterMax,
		status:    make(map[string]*TaskStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named recurring task. Must be called before Start.
func (c *Cycle) Register(name string, interval time.Duration, fn TaskFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks = append(c.tasks, cycleTask{name: name, interval: interval, fn: fn})
}

// Start schedules every registered task. Each task's first run is delayed
// by a bounded random jitter so same-period tasks do not all land on the
// scheduler's budget at once.
func (c *Cycle) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrCycleAlreadyStarted
	}

	for _, t := range c.tasks {
		task := t
		job := c.cron.Every(task.interval)
		if c.jitterMax > 0 {
			job = job.StartAt(time.Now().Add(time.Duration(rand.Int63n(int64(c.jitterMax)))))
		}
		if _, err := job.Do(func() {
			c.run(task)
		}); err != nil {
			c.cron.Clear()
			return fmt.Errorf("repricer: schedule task %q: %w", task.name, err)
		}
	}

	c.cron.StartAsync()
	c.started = true
	c.logger.Info("cycle started", "tasks", len(c.tasks))
	return nil
}

// Stop cancels all timers. Registered tasks are kept and can be started
// again.
func (c *Cycle) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.cron.Stop()
	c.cron.Clear()
	c.started = false
	c.logger.Info("cycle stopped")
}

// Status returns a snapshot of every task's state. Entries appear after a
// task's first run.
func (c *Cycle) Status() map[string]TaskStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]TaskStatus, len(c.status))
	for name, st := range c.status {
		snap := TaskStatus{LastError: st.LastError, IsRunning: st.IsRunning}
		if st.LastRunAt != nil {
			at := *st.LastRunAt
			snap.LastRunAt = &at
		}
		out[name] = snap
	}
	return out
}

// run wraps one task invocation: marks it running, records the outcome,
// and recovers panics so a bad run never kills the interval.
func (c *Cycle) run(t cycleTask) {
	c.mu.Lock()
	st, ok := c.status[t.name]
	if !ok {
		st = &TaskStatus{}
		c.status[t.name] = st
	}
	if st.IsRunning {
		// Previous run still in flight; skip this tick.
		c.mu.Unlock()
		return
	}
	st.IsRunning = true
	c.mu.Unlock()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("repricer: task %q panicked: %v", t.name, r)
			}
		}()
		err = t.fn(context.Background())
	}()

	now := time.Now()
	c.mu.Lock()
	st.IsRunning = false
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.LastRunAt = &now
		st.LastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("task failed", "task", t.name, "error", err)
	} else {
		c.logger.Info("task done", "task", t.name)
	}
}

// NewRepricingTask builds the repricing cycle: fetch all active listings,
// then probe them one at a time. Sequential on purpose: running probes
// concurrently would enqueue thousands of reserved calls at once.
// Per-listing failures are logged and the loop continues.
func NewRepricingTask(gw *Gateway, source ListingSource, logger *slog.Logger) TaskFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		listings, err := source.ActiveListings(ctx)
		if err != nil {
			return fmt.Errorf("repricer: list active listings: %w", err)
		}
		probed := 0
		for _, l := range listings {
			if _, err := gw.RunPriceProbe(ctx, l); err != nil {
				logger.Warn("probe failed",
					"listing", l.ID,
					"error", err,
					"stuck_risk", IsStuckRisk(err))
				continue
			}
			probed++
		}
		logger.Info("repricing cycle done", "listings", len(listings), "probed", probed)
		return nil
	}
}

// NewOrderSyncTask builds the order sync collaborator invocation.
func NewOrderSyncTask(gw *Gateway, logger *slog.Logger) TaskFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		n, err := gw.SyncOrders(ctx)
		if err != nil {
			return fmt.Errorf("repricer: sync orders: %w", err)
		}
		logger.Info("order sync done", "orders", n)
		return nil
	}
}
