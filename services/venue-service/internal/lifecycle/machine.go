// Package lifecycle owns the status transitions of a single occurrence.
//
// Every function takes the occurrence by value and returns the updated copy, so
// a rejected transition leaves the caller's state untouched.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

// ReconciliationWarning is returned by Cancel when the occurrence was already
// checked in: items or services may have been handed out.
const ReconciliationWarning = "occurrence was checked in; cart and service usage require manual reconciliation"

var transitions = map[model.Status][]model.Status{
	model.StatusBooked:    {model.StatusCheckedIn, model.StatusNoShow, model.StatusCancelled},
	model.StatusCheckedIn: {model.StatusCheckedOut, model.StatusCancelled},
}

func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func guard(o model.Occurrence, to model.Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, o.Status, to)
	}
	return nil
}

// CheckIn moves a booked occurrence to checked-in. The overlap guard is the
// caller's job (GuardOverlap) since it needs the court's other occurrences.
func CheckIn(o model.Occurrence, now time.Time) (model.Occurrence, error) {
	if err := guard(o, model.StatusCheckedIn); err != nil {
		return o, err
	}
	o.Status = model.StatusCheckedIn
	o.CheckInAt = &now
	return o, nil
}

// CheckOut stamps checkOutAt and returns the service usages that were still
// running, now closed at now.
func CheckOut(o model.Occurrence, usages []model.ServiceUsage, now time.Time) (model.Occurrence, []model.ServiceUsage, error) {
	if err := guard(o, model.StatusCheckedOut); err != nil {
		return o, nil, err
	}
	o.Status = model.StatusCheckedOut
	o.CheckOutAt = &now
	return o, CloseOpen(usages, now), nil
}

// CloseOpen returns copies of the still running usages with their meters
// stopped at now. A usage never ends before it started.
func CloseOpen(usages []model.ServiceUsage, now time.Time) []model.ServiceUsage {
	var closed []model.ServiceUsage
	for _, u := range usages {
		if !u.Open() {
			continue
		}
		end := now
		if end.Before(u.StartedAt) {
			end = u.StartedAt
		}
		u.EndedAt = &end
		closed = append(closed, u)
	}
	return closed
}

// MarkNoShow is only valid once the scheduled end has passed.
func MarkNoShow(o model.Occurrence, now time.Time) (model.Occurrence, error) {
	if err := guard(o, model.StatusNoShow); err != nil {
		return o, err
	}
	if !now.After(o.EndsAt) {
		return o, fmt.Errorf("%w: slot ends at %s", model.ErrTooEarly, o.EndsAt.Format(time.RFC3339))
	}
	o.Status = model.StatusNoShow
	return o, nil
}

// Cancel succeeds from booked or checked-in. The returned warning is non-empty
// when the occurrence had been checked in; running service meters are stopped
// at now and returned so the cancelled occurrence stops accruing charges.
func Cancel(o model.Occurrence, usages []model.ServiceUsage, now time.Time) (model.Occurrence, []model.ServiceUsage, string, error) {
	if err := guard(o, model.StatusCancelled); err != nil {
		return o, nil, "", err
	}
	warning := ""
	if o.Status == model.StatusCheckedIn {
		warning = ReconciliationWarning
	}
	o.Status = model.StatusCancelled
	return o, CloseOpen(usages, now), warning, nil
}

// Settle closes the books on a checked-out occurrence.
func Settle(o model.Occurrence, now time.Time) (model.Occurrence, error) {
	if o.Status != model.StatusCheckedOut || o.Settled() {
		return o, fmt.Errorf("%w: cannot settle %s occurrence (settled=%t)", model.ErrInvalidTransition, o.Status, o.Settled())
	}
	o.SettledAt = &now
	return o, nil
}

// GuardOverlap fails with ErrOverlapConflict if any other non-cancelled
// occurrence on the same court overlaps o.
func GuardOverlap(o model.Occurrence, others []model.Occurrence) error {
	for _, other := range others {
		if other.ID == o.ID || !other.Status.Blocks() {
			continue
		}
		if o.Overlaps(other) {
			return fmt.Errorf("%w: occurrence %s %s-%s", model.ErrOverlapConflict,
				other.ID, other.StartsAt.Format("15:04"), other.EndsAt.Format("15:04"))
		}
	}
	return nil
}
