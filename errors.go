package repricer

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrSchedulerClosed     = errors.New("repricer: scheduler closed")
	ErrCostExceedsWindow   = errors.New("repricer: call cost exceeds window capacity")
	ErrAdmissionTimeout    = errors.New("repricer: timed out waiting for budget admission")
	ErrReservationExceeded = errors.New("repricer: spend exceeds reserved amount")
	ErrReservationReleased = errors.New("repricer: reservation already released")
	ErrNegativeCost        = errors.New("repricer: call cost must be non-negative")
	ErrCycleAlreadyStarted = errors.New("repricer: cycle scheduler already started")
)

// ProbePhase identifies where in the probe protocol an error occurred.
type ProbePhase string

const (
	PhaseDip  ProbePhase = "dip"
	PhaseWait ProbePhase = "wait"
	PhasePeek ProbePhase = "peek"
	PhasePeak ProbePhase = "peak"
)

// ProbeError wraps a probe failure with the listing and phase it occurred
// in. A ProbeError from DIP or PEAK means the listing may be stuck at its
// dip price until EmergencyRecover runs.
type ProbeError struct {
	ListingID string
	Phase     ProbePhase
	Err       error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("repricer: probe listing=%s phase=%s: %v", e.ListingID, e.Phase, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// IsStuckRisk reports whether the error may leave a listing mispriced at
// its dip value until EmergencyRecover runs. PEEK failures are recovered
// internally and never escape the probe.
func IsStuckRisk(err error) bool {
	var pe *ProbeError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Phase == PhaseDip || pe.Phase == PhaseWait || pe.Phase == PhasePeak
}
