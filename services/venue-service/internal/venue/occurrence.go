package venue

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/cart"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
)

func (s *Service) GetOccurrence(ctx context.Context, id string) (model.Occurrence, error) {
	return s.store.Occurrence(ctx, id)
}

func (s *Service) ListOccurrences(ctx context.Context, f OccurrenceFilter) ([]model.Occurrence, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrInvalidInput, f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, fmt.Errorf("%w: to before from", model.ErrInvalidInput)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.store.ListOccurrences(ctx, f)
}

// CheckIn admits the customer. It fails with ErrOverlapConflict if another
// live occurrence holds the court for any part of the slot.
func (s *Service) CheckIn(ctx context.Context, t Target) (model.Occurrence, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return model.Occurrence{}, err
	}
	next, err := lifecycle.CheckIn(agg.Occurrence, s.clock())
	if err != nil {
		return model.Occurrence{}, err
	}
	others, err := s.store.CourtOccurrences(ctx, next.CourtID, next.StartsAt, next.EndsAt)
	if err != nil {
		return model.Occurrence{}, err
	}
	if err := lifecycle.GuardOverlap(next, others); err != nil {
		return model.Occurrence{}, err
	}
	evt, err := statusEvent(next, nil)
	if err != nil {
		return model.Occurrence{}, err
	}
	return s.commit(ctx, agg, Mutation{
		Occurrence:   &next,
		GuardOverlap: true,
		Events:       []outbox.Event{evt},
	})
}

// CheckOut stamps the departure time and stops every running service meter.
func (s *Service) CheckOut(ctx context.Context, t Target) (model.Occurrence, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return model.Occurrence{}, err
	}
	next, closed, err := lifecycle.CheckOut(agg.Occurrence, agg.Usages, s.clock())
	if err != nil {
		return model.Occurrence{}, err
	}
	evt, err := statusEvent(next, map[string]any{"closed_services": len(closed)})
	if err != nil {
		return model.Occurrence{}, err
	}
	return s.commit(ctx, agg, Mutation{
		Occurrence:  &next,
		CloseUsages: closed,
		Events:      []outbox.Event{evt},
	})
}

func (s *Service) MarkNoShow(ctx context.Context, t Target) (model.Occurrence, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return model.Occurrence{}, err
	}
	next, err := lifecycle.MarkNoShow(agg.Occurrence, s.clock())
	if err != nil {
		return model.Occurrence{}, err
	}
	evt, err := statusEvent(next, nil)
	if err != nil {
		return model.Occurrence{}, err
	}
	return s.commit(ctx, agg, Mutation{Occurrence: &next, Events: []outbox.Event{evt}})
}

type CancelResult struct {
	Occurrence model.Occurrence
	// Warning is set when the occurrence had been checked in and its cart
	// and service usage need manual reconciliation.
	Warning string
}

func (s *Service) Cancel(ctx context.Context, t Target, reason string) (CancelResult, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return CancelResult{}, err
	}
	next, closed, warning, err := lifecycle.Cancel(agg.Occurrence, agg.Usages, s.clock())
	if err != nil {
		return CancelResult{}, err
	}
	extra := map[string]any{"reason": reason}
	if warning != "" {
		extra["warning"] = warning
		extra["closed_services"] = len(closed)
		s.logger.WarnContext(ctx, "checked-in occurrence cancelled",
			"occurrence_id", next.ID, "open_lines", len(cart.Active(agg.Lines)), "closed_services", len(closed))
	}
	evt, err := statusEvent(next, extra)
	if err != nil {
		return CancelResult{}, err
	}
	o, err := s.commit(ctx, agg, Mutation{
		Occurrence:  &next,
		CloseUsages: closed,
		Events:      []outbox.Event{evt},
	})
	if err != nil {
		return CancelResult{}, err
	}
	return CancelResult{Occurrence: o, Warning: warning}, nil
}
