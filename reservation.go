package repricer

import "sync"

// Reservation is a pre-paid budget allocation for a multi-step operation.
// The sum of amounts debited against a reservation can never exceed the
// amount originally reserved; overspend fails with ErrReservationExceeded
// instead of silently drawing from the live window.
type Reservation struct {
	ID string

	mu       sync.Mutex
	sched    *Scheduler
	priority Priority
	total    int64
	spent    int64
	released bool
}

func (r *Reservation) debit(n int64) error {
	if n < 0 {
		return ErrNegativeCost
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReservationReleased
	}
	if r.spent+n > r.total {
		return ErrReservationExceeded
	}
	r.spent += n
	return nil
}

// Remaining returns the unspent portion of the reservation.
func (r *Reservation) Remaining() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total - r.spent
}

// Release refunds the unspent portion to the live window and invalidates
// the handle. Safe to call once the operation is done or abandoned;
// subsequent spends fail with ErrReservationReleased.
func (r *Reservation) Release() {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return
	}
	r.released = true
	unspent := r.total - r.spent
	priority := r.priority
	sched := r.sched
	r.mu.Unlock()

	if sched == nil || unspent <= 0 {
		return
	}
	sched.mu.Lock()
	sched.refundLocked(priority, unspent)
	sched.admitLocked()
	sched.mu.Unlock()
}
