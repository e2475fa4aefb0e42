package venue

import (
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
)

const (
	EventBookingCreated       = "venue.booking.created.v1"
	EventOccurrenceCheckedIn  = "venue.occurrence.checked_in.v1"
	EventOccurrenceCheckedOut = "venue.occurrence.checked_out.v1"
	EventOccurrenceNoShow     = "venue.occurrence.no_show.v1"
	EventOccurrenceCancelled  = "venue.occurrence.cancelled.v1"
	EventPaymentRecorded      = "venue.payment.recorded.v1"
	EventCheckoutFinalized    = "venue.checkout.finalized.v1"
)

var statusEvents = map[model.Status]string{
	model.StatusCheckedIn:  EventOccurrenceCheckedIn,
	model.StatusCheckedOut: EventOccurrenceCheckedOut,
	model.StatusNoShow:     EventOccurrenceNoShow,
	model.StatusCancelled:  EventOccurrenceCancelled,
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func statusEvent(o model.Occurrence, extra map[string]any) (outbox.Event, error) {
	payload := map[string]any{
		"occurrence_id": o.ID,
		"booking_id":    o.BookingID,
		"court_id":      o.CourtID,
		"customer_id":   o.CustomerID,
		"status":        string(o.Status),
		"starts_at":     o.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":       o.EndsAt.UTC().Format(time.RFC3339),
	}
	if o.CheckInAt != nil {
		payload["check_in_at"] = formatTime(o.CheckInAt)
	}
	if o.CheckOutAt != nil {
		payload["check_out_at"] = formatTime(o.CheckOutAt)
	}
	for k, v := range extra {
		payload[k] = v
	}
	return outbox.NewEvent("occurrence", o.ID, statusEvents[o.Status], payload)
}

func bookingCreatedEvent(b model.Booking, occurrences []model.Occurrence) (outbox.Event, error) {
	ids := make([]string, 0, len(occurrences))
	var courtTotal int64
	for _, o := range occurrences {
		ids = append(ids, o.ID)
		courtTotal += o.CourtFee
	}
	return outbox.NewEvent("booking", b.ID, EventBookingCreated, map[string]any{
		"booking_id":     b.ID,
		"court_id":       b.CourtID,
		"customer_id":    b.CustomerID,
		"start_date":     b.StartDate.Format(time.DateOnly),
		"end_date":       b.EndDate.Format(time.DateOnly),
		"days_of_week":   b.DaysOfWeek,
		"start_clock":    b.StartClock,
		"end_clock":      b.EndClock,
		"occurrence_ids": ids,
		"court_total":    courtTotal,
	})
}

func paymentEvent(p model.Payment) (outbox.Event, error) {
	aggregateType, aggregateID := "occurrence", p.OccurrenceID
	if p.Kind == model.PaymentDeposit {
		aggregateType, aggregateID = "booking", p.BookingID
	}
	return outbox.NewEvent(aggregateType, aggregateID, EventPaymentRecorded, map[string]any{
		"payment_id":    p.ID,
		"booking_id":    p.BookingID,
		"occurrence_id": p.OccurrenceID,
		"kind":          string(p.Kind),
		"amount":        p.Amount,
		"method":        p.Method,
		"status":        string(p.Status),
	})
}

func finalizedEvent(o model.Occurrence, order model.Order) (outbox.Event, error) {
	return outbox.NewEvent("occurrence", o.ID, EventCheckoutFinalized, map[string]any{
		"occurrence_id":     o.ID,
		"order_id":          order.ID,
		"booking_id":        o.BookingID,
		"customer_id":       o.CustomerID,
		"court_remaining":   order.CourtRemaining,
		"items_subtotal":    order.ItemsSubtotal,
		"services_subtotal": order.ServicesSubtotal,
		"late_fee":          order.LateFee,
		"total":             order.Total,
		"paid":              order.Paid,
		"partial":           order.Partial,
		"settled_at":        formatTime(o.SettledAt),
	})
}
