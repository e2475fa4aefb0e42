package venue

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/cart"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/pricing"
)

// ErrDuplicateEvent is returned by Commit when Mutation.ProviderEventID was
// already processed. Callers treat it as success.
var ErrDuplicateEvent = errors.New("provider event already processed")

// Aggregate is everything a billing decision about one occurrence reads.
type Aggregate struct {
	Occurrence model.Occurrence
	Lines      []model.OrderItemLine
	Usages     []model.ServiceUsage
	// Payments holds the occurrence's settlement payments in any status.
	Payments []model.Payment
	// BookingDeposits is the Paid deposit total of the parent booking, spread
	// over BookingOccurrences occurrences.
	BookingDeposits    int64
	BookingOccurrences int
}

// Mutation is applied atomically by Commit. The occurrence row's version must
// still equal ExpectedVersion; it is incremented on success whether or not
// Occurrence is set.
type Mutation struct {
	OccurrenceID    string
	ExpectedVersion int64

	// Occurrence, when set, replaces the stored status and timestamps.
	Occurrence *model.Occurrence
	// GuardOverlap re-checks the court for overlapping occurrences under the
	// court lock before writing.
	GuardOverlap bool

	// Cart is applied with a conditional stock update; a shortfall fails the
	// whole commit with model.ErrInsufficientStock.
	Cart *cart.Change

	CloseUsages []model.ServiceUsage
	// NewUsage takes its quantity from a stock-limited service's shelf,
	// failing with model.ErrInsufficientStock on a shortfall.
	NewUsage *model.ServiceUsage
	// RemoveUsage deletes the usage and puts its quantity back on the shelf.
	RemoveUsage *model.ServiceUsage

	// Payment is inserted, or updated in place when its ID already exists.
	Payment         *model.Payment
	ProviderEventID string

	// Order also links the occurrence's unlinked settlement payments to it.
	Order *model.Order

	Events []outbox.Event
}

type OccurrenceFilter struct {
	CourtID    string
	CustomerID string
	Status     model.Status
	From       time.Time
	To         time.Time
	EndsBefore time.Time
	Limit      int
}

// Store persists the venue. Implementations must make Commit and CreateBooking
// all-or-nothing.
type Store interface {
	PricingRules(ctx context.Context, courtID string) ([]pricing.Rule, error)
	CourtExists(ctx context.Context, courtID string) (bool, error)

	// CreateBooking inserts the booking and its occurrences, failing with
	// model.ErrOverlapConflict if any occurrence collides with the court's
	// existing schedule.
	CreateBooking(ctx context.Context, b model.Booking, occurrences []model.Occurrence, events []outbox.Event) error
	Booking(ctx context.Context, id string) (model.Booking, error)
	BookingCourtTotal(ctx context.Context, bookingID string) (int64, error)
	// InsertDeposit also bumps the version of every occurrence of the booking,
	// since their deposit share changes.
	InsertDeposit(ctx context.Context, p model.Payment, events []outbox.Event) error

	Load(ctx context.Context, occurrenceID string) (Aggregate, error)
	Occurrence(ctx context.Context, id string) (model.Occurrence, error)
	ListOccurrences(ctx context.Context, f OccurrenceFilter) ([]model.Occurrence, error)
	// CourtOccurrences lists occurrences on courtID intersecting [from, to).
	CourtOccurrences(ctx context.Context, courtID string, from, to time.Time) ([]model.Occurrence, error)

	Product(ctx context.Context, id string) (model.Product, error)
	Service(ctx context.Context, id string) (model.Service, error)

	Payment(ctx context.Context, id string) (model.Payment, error)
	// ResolvePaymentRef maps an occurrence id or an order id to the
	// occurrence it bills.
	ResolvePaymentRef(ctx context.Context, ref string) (string, error)
	SetPaymentProviderRef(ctx context.Context, paymentID, providerRef string) error

	Commit(ctx context.Context, m Mutation) (model.Occurrence, error)
}
