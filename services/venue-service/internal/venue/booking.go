package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/ledger"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/pricing"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/schedule"
)

// MaxBookingSpan caps how far one recurring booking may run.
const MaxBookingSpan = 366 * 24 * time.Hour

type BookingRequest struct {
	CourtID    string
	CustomerID string
	// StartDate and EndDate are calendar dates; only year, month and day are read.
	StartDate  time.Time
	EndDate    time.Time
	DaysOfWeek []int
	StartClock string
	EndClock   string
	Note       string
}

type BookingResult struct {
	Booking     model.Booking
	Occurrences []model.Occurrence
}

func (s *Service) calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

// CreateBooking expands the request into dated occurrences, prices each one
// and stores them together. Nothing is stored if any occurrence overlaps an
// existing one on the court.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (BookingResult, error) {
	req.CourtID = strings.TrimSpace(req.CourtID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.CourtID == "" || req.CustomerID == "" {
		return BookingResult{}, fmt.Errorf("%w: court_id and customer_id required", model.ErrInvalidInput)
	}
	start, err := schedule.ParseClock(req.StartClock)
	if err != nil {
		return BookingResult{}, fmt.Errorf("%w: start_clock: %v", model.ErrInvalidInput, err)
	}
	end, err := schedule.ParseClock(req.EndClock)
	if err != nil {
		return BookingResult{}, fmt.Errorf("%w: end_clock: %v", model.ErrInvalidInput, err)
	}
	if !start.Before(end) {
		return BookingResult{}, fmt.Errorf("%w: start_clock must be before end_clock", model.ErrInvalidInput)
	}

	from, to := s.calendarDate(req.StartDate), s.calendarDate(req.EndDate)
	today := schedule.DateOf(s.clock())
	if from.Before(today) {
		return BookingResult{}, fmt.Errorf("%w: start_date is in the past", model.ErrInvalidInput)
	}
	if to.Before(from) {
		return BookingResult{}, fmt.Errorf("%w: end_date before start_date", model.ErrInvalidInput)
	}
	if to.Sub(from) > MaxBookingSpan {
		return BookingResult{}, fmt.Errorf("%w: booking spans more than %d days", model.ErrInvalidInput, int(MaxBookingSpan.Hours()/24))
	}

	days, err := schedule.NormalizeDays(req.DaysOfWeek)
	if err != nil {
		return BookingResult{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
	}
	tmpl := schedule.Template{
		ID:       "booking",
		Assignee: req.CourtID,
		Shift:    schedule.ShiftKey(start, end),
	}
	if len(days) == 0 {
		if !from.Equal(to) {
			return BookingResult{}, fmt.Errorf("%w: a walk-in booking needs start_date equal to end_date", model.ErrInvalidInput)
		}
		tmpl.SingleDate = from
	} else {
		tmpl.Recurring = true
		if tmpl.Weekdays, err = schedule.Weekdays(days); err != nil {
			return BookingResult{}, fmt.Errorf("%w: %v", model.ErrInvalidInput, err)
		}
	}

	candidates := schedule.Expand([]schedule.Template{tmpl}, from, to)
	if len(candidates) == 0 {
		return BookingResult{}, fmt.Errorf("%w: no dates between %s and %s fall on the requested days",
			model.ErrInvalidInput, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	ok, err := s.store.CourtExists(ctx, req.CourtID)
	if err != nil {
		return BookingResult{}, err
	}
	if !ok {
		return BookingResult{}, fmt.Errorf("court %s: %w", req.CourtID, model.ErrNotFound)
	}
	rules, err := s.store.PricingRules(ctx, req.CourtID)
	if err != nil {
		return BookingResult{}, err
	}

	now := s.clock()
	booking := model.Booking{
		ID:         uuid.NewString(),
		CourtID:    req.CourtID,
		CustomerID: req.CustomerID,
		StartDate:  from,
		EndDate:    to,
		DaysOfWeek: days,
		StartClock: start.String(),
		EndClock:   end.String(),
		Note:       strings.TrimSpace(req.Note),
		CreatedAt:  now,
	}
	occurrences := make([]model.Occurrence, 0, len(candidates))
	for _, c := range candidates {
		occurrences = append(occurrences, model.Occurrence{
			ID:         uuid.NewString(),
			BookingID:  booking.ID,
			CourtID:    booking.CourtID,
			CustomerID: booking.CustomerID,
			Date:       c.Date,
			StartsAt:   start.On(c.Date),
			EndsAt:     end.On(c.Date),
			Status:     model.StatusBooked,
			CourtFee:   pricing.CourtFee(rules, c.Date, start, end),
			Version:    1,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	existing, err := s.store.CourtOccurrences(ctx, req.CourtID, occurrences[0].StartsAt, occurrences[len(occurrences)-1].EndsAt)
	if err != nil {
		return BookingResult{}, err
	}
	for _, o := range occurrences {
		if err := lifecycle.GuardOverlap(o, existing); err != nil {
			return BookingResult{}, err
		}
	}

	evt, err := bookingCreatedEvent(booking, occurrences)
	if err != nil {
		return BookingResult{}, err
	}
	if err := s.store.CreateBooking(ctx, booking, occurrences, []outbox.Event{evt}); err != nil {
		return BookingResult{}, err
	}
	s.logger.InfoContext(ctx, "booking created",
		"booking_id", booking.ID, "court_id", booking.CourtID, "occurrences", len(occurrences))
	return BookingResult{Booking: booking, Occurrences: occurrences}, nil
}

type DepositRequest struct {
	BookingID string
	// Amount zero takes the configured share of the booking's court total.
	Amount int64
	Method string
	Note   string
}

// RecordDeposit takes a Paid deposit against a booking. Deposits are spread
// evenly over the booking's occurrences when each one is estimated.
func (s *Service) RecordDeposit(ctx context.Context, req DepositRequest) (model.Payment, error) {
	if req.Amount < 0 {
		return model.Payment{}, ledger.ValidateAmount(req.Amount)
	}
	b, err := s.store.Booking(ctx, req.BookingID)
	if err != nil {
		return model.Payment{}, err
	}
	amount := req.Amount
	if amount == 0 {
		total, err := s.store.BookingCourtTotal(ctx, b.ID)
		if err != nil {
			return model.Payment{}, err
		}
		amount = ledger.DefaultDeposit(total, s.depositRatio)
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return model.Payment{}, err
	}

	now := s.clock()
	p := model.Payment{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		Kind:      model.PaymentDeposit,
		Amount:    amount,
		Method:    methodOrDefault(req.Method),
		Status:    model.PaymentPaid,
		Note:      strings.TrimSpace(req.Note),
		CreatedAt: now,
		UpdatedAt: now,
	}
	evt, err := paymentEvent(p)
	if err != nil {
		return model.Payment{}, err
	}
	if err := s.store.InsertDeposit(ctx, p, []outbox.Event{evt}); err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func methodOrDefault(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "cash"
	}
	return method
}
