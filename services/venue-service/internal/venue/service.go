// Package venue runs the booking, check-in and checkout operations of the
// venue. Every method follows the same shape: load the occurrence aggregate,
// decide with the pure packages (lifecycle, cart, checkout, ledger), then
// hand the result to Store.Commit under the version the decision was made at.
package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/checkout"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/ledger"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

// CardCheckout asks the card gateway to collect Amount for a pending payment.
type CardCheckout struct {
	PaymentID    string
	OccurrenceID string
	Description  string
	Amount       int64
}

type CardSession struct {
	ID  string
	URL string
}

type CardGateway interface {
	CreateCheckout(ctx context.Context, req CardCheckout) (CardSession, error)
}

type Options struct {
	// Location is the venue's wall clock. Booking dates and clocks are read in it.
	Location       *time.Location
	LatePercentage int64
	DepositRatio   float64
	Cards          CardGateway
	Logger         *slog.Logger
	Now            func() time.Time
}

type Service struct {
	store          Store
	loc            *time.Location
	latePercentage int64
	depositRatio   float64
	cards          CardGateway
	logger         *slog.Logger
	now            func() time.Time
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:          store,
		loc:            opts.Location,
		latePercentage: opts.LatePercentage,
		depositRatio:   opts.DepositRatio,
		cards:          opts.Cards,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.latePercentage <= 0 {
		s.latePercentage = checkout.DefaultLatePercentage
	}
	if s.depositRatio <= 0 || s.depositRatio > 1 {
		s.depositRatio = ledger.DefaultDepositRatio
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Target names the occurrence a mutation applies to. A non-zero Version must
// match the stored version or the call fails with ErrConcurrentModification
// before anything is computed.
type Target struct {
	OccurrenceID string
	Version      int64
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) load(ctx context.Context, t Target) (Aggregate, error) {
	if t.OccurrenceID == "" {
		return Aggregate{}, fmt.Errorf("%w: occurrence id required", model.ErrInvalidInput)
	}
	agg, err := s.store.Load(ctx, t.OccurrenceID)
	if err != nil {
		return Aggregate{}, err
	}
	if t.Version != 0 && agg.Occurrence.Version != t.Version {
		return Aggregate{}, fmt.Errorf("%w: expected version %d, found %d",
			model.ErrConcurrentModification, t.Version, agg.Occurrence.Version)
	}
	return agg, nil
}

func (s *Service) commit(ctx context.Context, agg Aggregate, m Mutation) (model.Occurrence, error) {
	m.OccurrenceID = agg.Occurrence.ID
	m.ExpectedVersion = agg.Occurrence.Version
	o, err := s.store.Commit(ctx, m)
	if err != nil {
		if errors.Is(err, model.ErrConcurrentModification) {
			s.logger.InfoContext(ctx, "occurrence commit lost version race",
				"occurrence_id", agg.Occurrence.ID, "version", agg.Occurrence.Version)
		}
		return model.Occurrence{}, err
	}
	return o, nil
}

func (s *Service) estimate(agg Aggregate, o model.Occurrence, usages []model.ServiceUsage, latePct int64, now time.Time) checkout.Estimate {
	if latePct <= 0 {
		latePct = s.latePercentage
	}
	return checkout.Compute(checkout.Input{
		Occurrence:     o,
		Lines:          agg.Lines,
		Usages:         usages,
		CourtPaid:      ledger.DepositShare(agg.BookingDeposits, agg.BookingOccurrences),
		LatePercentage: latePct,
		Now:            now,
	})
}
