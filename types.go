package repricer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Priority governs the order in which queued marketplace calls are admitted.
// Higher priorities are admitted first; within a tier admission is FIFO.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Call is a single outbound marketplace request handed to the scheduler.
// Endpoint is an opaque descriptor used only for auditing; Do performs the
// actual network call once the scheduler admits it.
type Call struct {
	Endpoint string
	Priority Priority

	// Cost is the number of budget units the call consumes. When
	// Reservation is set, Cost is debited from the reservation instead of
	// the live window.
	Cost int64

	// Reservation, when non-nil, pre-pays the call. See Scheduler.Reserve.
	Reservation *Reservation

	// Do performs the call. It returns the upstream HTTP status when one
	// exists (0 otherwise).
	Do func(ctx context.Context) (CallResult, error)
}

// CallResult carries transport-level metadata back through the scheduler.
type CallResult struct {
	HTTPStatus int
}

// AdmissionStatus records how the scheduler disposed of a call.
type AdmissionStatus string

const (
	AdmissionAdmitted AdmissionStatus = "admitted"
	AdmissionQueued   AdmissionStatus = "queued"
	AdmissionRejected AdmissionStatus = "rejected"
)

// AuditEntry describes one admission decision. Entries are delivered to the
// configured AuditSink best-effort; delivery failures are never surfaced.
type AuditEntry struct {
	ID         string
	Endpoint   string
	Priority   Priority
	Admission  AdmissionStatus
	HTTPStatus int
	Duration   time.Duration
	Err        error
	Timestamp  time.Time
}

// AuditSink receives admission decisions. Implementations must tolerate
// concurrent calls; the scheduler invokes Record from detached goroutines
// and discards any error or panic.
type AuditSink interface {
	Record(entry AuditEntry) error
}

// Listing is a marketplace offer subject to repricing.
type Listing struct {
	ID         string
	Country    string
	Price      decimal.Decimal
	FloorPrice decimal.Decimal
}

// Order is a buyback order as returned by the marketplace order feed. The
// core only pages orders for sync purposes; state transitions live outside
// this module.
type Order struct {
	ID        string
	State     string
	UpdatedAt time.Time
}

// MarketplaceClient is the outbound surface the gateway drives. Every call
// made through an implementation must be wrapped in a scheduler Call; the
// scheduler is the only gateway to the external API.
type MarketplaceClient interface {
	// UpdateListingPrice sets the listing's price.
	UpdateListingPrice(ctx context.Context, listingID string, price decimal.Decimal) (CallResult, error)

	// CompetitorPrices fetches current competitor prices for a listing.
	CompetitorPrices(ctx context.Context, listingID string) ([]decimal.Decimal, CallResult, error)

	// Orders pages the buyback order feed. more is false on the last page.
	Orders(ctx context.Context, page int) (orders []Order, more bool, res CallResult, err error)
}

// ListingSource lists the identifiers the repricing cycle should visit.
type ListingSource interface {
	ActiveListings(ctx context.Context) ([]Listing, error)
}

// TaskStatus is the observable state of one recurring task.
type TaskStatus struct {
	LastRunAt *time.Time
	LastError string
	IsRunning bool
}
