package repricer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler is the single gateway to the marketplace API. It owns a shared
// call budget that replenishes once per fixed window and a priority queue
// admitting calls in (priority descending, enqueue order ascending) order.
//
// Queue and budget state are in-memory only; pending calls do not survive a
// process restart.
type Scheduler struct {
	mu          sync.Mutex
	capacity    int64
	perTier     map[Priority]int64
	window      time.Duration
	windowStart time.Time
	used        int64
	usedTier    map[Priority]int64
	queue       waiterQueue
	seq         uint64
	timer       *time.Timer
	closed      bool

	sink    AuditSink
	maxWait time.Duration
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithAuditSink sets the sink receiving admission decisions. Entries are
// delivered from detached goroutines; sink errors and panics are discarded.
func WithAuditSink(sink AuditSink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithMaxWait bounds how long a queued call waits for admission before
// failing with ErrAdmissionTimeout. Zero means wait indefinitely.
func WithMaxWait(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.maxWait = d }
}

// NewScheduler creates a Scheduler with the given rate window. The window
// is fixed: budget counters reset at windowStart + n*Window boundaries
// anchored at construction time.
func NewScheduler(rw RateWindow, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		capacity:    rw.Capacity,
		window:      rw.Window,
		windowStart: time.Now(),
		usedTier:    make(map[Priority]int64),
	}
	if len(rw.PerTier) > 0 {
		s.perTier = make(map[Priority]int64, len(rw.PerTier))
		for p, c := range rw.PerTier {
			s.perTier[p] = c
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule admits the call against the budget and runs it. The caller is
// suspended until the call is admitted and completes. Calls carrying a
// Reservation bypass the live budget and debit the reservation instead, so
// a multi-step operation that reserved its total cost upfront cannot be
// starved mid-sequence by unrelated traffic.
//
// Upstream failures propagate verbatim; the scheduler never retries.
func (s *Scheduler) Schedule(ctx context.Context, call Call) (CallResult, error) {
	if call.Reservation != nil {
		if err := call.Reservation.debit(call.Cost); err != nil {
			s.report(AuditEntry{Endpoint: call.Endpoint, Priority: call.Priority, Admission: AdmissionRejected, Err: err})
			return CallResult{}, err
		}
		return s.execute(ctx, call)
	}

	if err := s.admit(ctx, call.Endpoint, call.Priority, call.Cost); err != nil {
		return CallResult{}, err
	}
	return s.execute(ctx, call)
}

// Reserve pre-pays cost budget units for a multi-step operation. It waits
// for admission exactly like a call would, deducts atomically, and returns
// a handle whose total spend is checked against the reserved amount.
func (s *Scheduler) Reserve(ctx context.Context, priority Priority, cost int64) (*Reservation, error) {
	if err := s.admit(ctx, "reserve", priority, cost); err != nil {
		return nil, err
	}
	s.report(AuditEntry{Endpoint: "reserve", Priority: priority, Admission: AdmissionAdmitted})
	return &Reservation{
		ID:       uuid.New().String(),
		sched:    s,
		priority: priority,
		total:    cost,
	}, nil
}

// Close rejects all queued calls with ErrSchedulerClosed and stops the
// replenishment timer. In-flight calls are unaffected.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	for s.queue.Len() > 0 {
		w := heap.Pop(&s.queue).(*waiter)
		w.err = ErrSchedulerClosed
		close(w.ready)
	}
}

// admit blocks until cost units are granted, the context is cancelled, or
// the bounded max-wait elapses.
func (s *Scheduler) admit(ctx context.Context, endpoint string, priority Priority, cost int64) error {
	if cost < 0 {
		return ErrNegativeCost
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSchedulerClosed
	}
	if cost > s.capacityFor(priority) {
		s.mu.Unlock()
		s.report(AuditEntry{Endpoint: endpoint, Priority: priority, Admission: AdmissionRejected, Err: ErrCostExceedsWindow})
		return ErrCostExceedsWindow
	}

	w := &waiter{
		endpoint: endpoint,
		priority: priority,
		cost:     cost,
		seq:      s.seq,
		ready:    make(chan struct{}),
	}
	s.seq++
	heap.Push(&s.queue, w)
	s.admitLocked()
	admittedNow := w.admitted
	s.mu.Unlock()

	if admittedNow {
		return nil
	}
	s.report(AuditEntry{Endpoint: endpoint, Priority: priority, Admission: AdmissionQueued})

	var timeout <-chan time.Time
	if s.maxWait > 0 {
		t := time.NewTimer(s.maxWait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case <-w.ready:
		return w.err
	case <-ctx.Done():
		if !s.withdraw(w) {
			// Admitted in the race window; budget is already spent.
			return w.err
		}
		s.report(AuditEntry{Endpoint: endpoint, Priority: priority, Admission: AdmissionRejected, Err: ctx.Err()})
		return ctx.Err()
	case <-timeout:
		if !s.withdraw(w) {
			return w.err
		}
		s.report(AuditEntry{Endpoint: endpoint, Priority: priority, Admission: AdmissionRejected, Err: ErrAdmissionTimeout})
		return ErrAdmissionTimeout
	}
}

// execute runs an admitted call and reports the outcome.
func (s *Scheduler) execute(ctx context.Context, call Call) (CallResult, error) {
	start := time.Now()
	res, err := call.Do(ctx)
	s.report(AuditEntry{
		Endpoint:   call.Endpoint,
		Priority:   call.Priority,
		Admission:  AdmissionAdmitted,
		HTTPStatus: res.HTTPStatus,
		Duration:   time.Since(start),
		Err:        err,
	})
	return res, err
}

// admitLocked rolls the window if due, then admits queued waiters strictly
// in heap order while the budget holds. Head-of-line blocking is
// deliberate: a lower-priority call never slips past a queued
// higher-priority one just because it is cheaper.
func (s *Scheduler) admitLocked() {
	s.rollWindowLocked()
	for s.queue.Len() > 0 {
		w := s.queue[0]
		if !s.deductLocked(w.priority, w.cost) {
			break
		}
		heap.Pop(&s.queue)
		w.admitted = true
		close(w.ready)
	}
	if s.queue.Len() > 0 {
		s.armTimerLocked()
	}
}

func (s *Scheduler) rollWindowLocked() {
	now := time.Now()
	elapsed := now.Sub(s.windowStart)
	if elapsed < s.window {
		return
	}
	s.windowStart = s.windowStart.Add(elapsed / s.window * s.window)
	s.used = 0
	for p := range s.usedTier {
		s.usedTier[p] = 0
	}
}

// capacityFor returns the tier's own limit when one is configured; tiers
// without an entry draw from the shared pool, so a partial per_tier map
// can never zero out a tier.
func (s *Scheduler) capacityFor(p Priority) int64 {
	if limit, ok := s.perTier[p]; ok {
		return limit
	}
	return s.capacity
}

// deductLocked performs the check-and-deduct as one step under s.mu. The
// live budget can never be exceeded.
func (s *Scheduler) deductLocked(p Priority, cost int64) bool {
	if limit, ok := s.perTier[p]; ok {
		if s.usedTier[p]+cost > limit {
			return false
		}
		s.usedTier[p] += cost
		return true
	}
	if s.used+cost > s.capacity {
		return false
	}
	s.used += cost
	return true
}

// refundLocked returns unspent reserved units to the live window.
func (s *Scheduler) refundLocked(p Priority, n int64) {
	if n <= 0 {
		return
	}
	if _, ok := s.perTier[p]; ok {
		s.usedTier[p] -= n
		if s.usedTier[p] < 0 {
			s.usedTier[p] = 0
		}
		return
	}
	s.used -= n
	if s.used < 0 {
		s.used = 0
	}
}

// withdraw removes a queued waiter. Returns false when the waiter was
// already admitted.
func (s *Scheduler) withdraw(w *waiter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.admitted || w.index < 0 {
		return false
	}
	heap.Remove(&s.queue, w.index)
	return true
}

func (s *Scheduler) armTimerLocked() {
	d := time.Until(s.windowStart.Add(s.window))
	if d < time.Millisecond {
		d = time.Millisecond
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		s.admitLocked()
	})
}

// report delivers an audit entry best-effort from a detached goroutine.
// Sink failures must never affect request completion.
func (s *Scheduler) report(e AuditEntry) {
	sink := s.sink
	if sink == nil {
		return
	}
	e.ID = uuid.New().String()
	e.Timestamp = time.Now()
	go func() {
		defer func() { _ = recover() }()
		_ = sink.Record(e)
	}()
}

// waiter is one queued admission request.
type waiter struct {
	endpoint string
	priority Priority
	cost     int64
	seq      uint64
	index    int
	admitted bool
	err      error
	ready    chan struct{}
}

// waiterQueue orders waiters by priority descending, then enqueue order.
type waiterQueue []*waiter

func (q waiterQueue) Len() int { return len(q) }

func (q waiterQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q waiterQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *waiterQueue) Push(x any) {
	w := x.(*waiter)
	w.index = len(*q)
	*q = append(*q, w)
}

func (q *waiterQueue) Pop() any {
	old := *q
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*q = old[:n-1]
	return w
}
