package handlers

import (
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

func rfc3339(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type occurrenceResponse struct {
	ID         string `json:"id"`
	BookingID  string `json:"booking_id"`
	CourtID    string `json:"court_id"`
	CustomerID string `json:"customer_id"`
	Date       string `json:"date"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
	Status     string `json:"status"`
	CourtFee   int64  `json:"court_fee"`
	CheckInAt  string `json:"check_in_at,omitempty"`
	CheckOutAt string `json:"check_out_at,omitempty"`
	SettledAt  string `json:"settled_at,omitempty"`
	Version    int64  `json:"version"`
}

func toOccurrence(o model.Occurrence) occurrenceResponse {
	return occurrenceResponse{
		ID:         o.ID,
		BookingID:  o.BookingID,
		CourtID:    o.CourtID,
		CustomerID: o.CustomerID,
		Date:       o.Date.Format(time.DateOnly),
		StartsAt:   rfc3339(&o.StartsAt),
		EndsAt:     rfc3339(&o.EndsAt),
		Status:     string(o.Status),
		CourtFee:   o.CourtFee,
		CheckInAt:  rfc3339(o.CheckInAt),
		CheckOutAt: rfc3339(o.CheckOutAt),
		SettledAt:  rfc3339(o.SettledAt),
		Version:    o.Version,
	}
}

func toOccurrences(in []model.Occurrence) []occurrenceResponse {
	out := make([]occurrenceResponse, 0, len(in))
	for _, o := range in {
		out = append(out, toOccurrence(o))
	}
	return out
}

type bookingResponse struct {
	ID          string               `json:"id"`
	CourtID     string               `json:"court_id"`
	CustomerID  string               `json:"customer_id"`
	StartDate   string               `json:"start_date"`
	EndDate     string               `json:"end_date"`
	DaysOfWeek  []int                `json:"days_of_week"`
	StartClock  string               `json:"start_clock"`
	EndClock    string               `json:"end_clock"`
	WalkIn      bool                 `json:"walk_in"`
	CourtTotal  int64                `json:"court_total"`
	Occurrences []occurrenceResponse `json:"occurrences"`
}

type itemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	LineTotal   int64  `json:"line_total"`
}

func toItems(lines []model.OrderItemLine) []itemResponse {
	out := make([]itemResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, itemResponse{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			LineTotal:   l.LineTotal(),
		})
	}
	return out
}

type usageResponse struct {
	ID               string `json:"id"`
	ServiceID        string `json:"service_id"`
	ServiceName      string `json:"service_name"`
	Quantity         int    `json:"quantity"`
	UnitPricePerHour int64  `json:"unit_price_per_hour"`
	StartedAt        string `json:"started_at"`
	EndedAt          string `json:"ended_at,omitempty"`
}

func toUsage(u model.ServiceUsage) usageResponse {
	return usageResponse{
		ID:               u.ID,
		ServiceID:        u.ServiceID,
		ServiceName:      u.ServiceName,
		Quantity:         u.Quantity,
		UnitPricePerHour: u.UnitPricePerHour,
		StartedAt:        rfc3339(&u.StartedAt),
		EndedAt:          rfc3339(u.EndedAt),
	}
}

type paymentResponse struct {
	ID           string `json:"id"`
	BookingID    string `json:"booking_id"`
	OccurrenceID string `json:"occurrence_id,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	Method       string `json:"method"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

func toPayment(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:           p.ID,
		BookingID:    p.BookingID,
		OccurrenceID: p.OccurrenceID,
		OrderID:      p.OrderID,
		Kind:         string(p.Kind),
		Amount:       p.Amount,
		Method:       p.Method,
		Status:       string(p.Status),
		CreatedAt:    rfc3339(&p.CreatedAt),
	}
}

type orderResponse struct {
	ID                string `json:"id"`
	OccurrenceID      string `json:"occurrence_id"`
	CourtTotal        int64  `json:"court_total"`
	CourtPaid         int64  `json:"court_paid"`
	CourtRemaining    int64  `json:"court_remaining"`
	ItemsSubtotal     int64  `json:"items_subtotal"`
	ServicesSubtotal  int64  `json:"services_subtotal"`
	LateFeePercentage int64  `json:"late_fee_percentage"`
	LateFee           int64  `json:"late_fee"`
	OverdueMinutes    int64  `json:"overdue_minutes"`
	Total             int64  `json:"total"`
	Paid              int64  `json:"paid"`
	Partial           bool   `json:"partial"`
}

func toOrder(o model.Order) orderResponse {
	return orderResponse{
		ID:                o.ID,
		OccurrenceID:      o.OccurrenceID,
		CourtTotal:        o.CourtTotal,
		CourtPaid:         o.CourtPaid,
		CourtRemaining:    o.CourtRemaining,
		ItemsSubtotal:     o.ItemsSubtotal,
		ServicesSubtotal:  o.ServicesSubtotal,
		LateFeePercentage: o.LateFeePercentage,
		LateFee:           o.LateFee,
		OverdueMinutes:    o.OverdueMinutes,
		Total:             o.Total,
		Paid:              o.Paid,
		Partial:           o.Partial,
	}
}
