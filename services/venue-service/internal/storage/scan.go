package storage

import (
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
)

const occurrenceColumns = `id, booking_id, court_id, customer_id, occurrence_date, starts_at, ends_at, status,
	court_fee, check_in_at, check_out_at, settled_at, version, created_at, updated_at`

func scanOccurrence(row pgx.Row) (model.Occurrence, error) {
	var o model.Occurrence
	var status string
	err := row.Scan(&o.ID, &o.BookingID, &o.CourtID, &o.CustomerID, &o.Date, &o.StartsAt, &o.EndsAt, &status,
		&o.CourtFee, &o.CheckInAt, &o.CheckOutAt, &o.SettledAt, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	o.Status = model.Status(status)
	return o, err
}

func collectOccurrences(rows pgx.Rows) ([]model.Occurrence, error) {
	defer rows.Close()
	var out []model.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const paymentColumns = `id, booking_id, COALESCE(occurrence_id, ''), COALESCE(order_id, ''), kind, amount, method,
	status, provider_ref, note, created_at, updated_at`

func scanPayment(row pgx.Row) (model.Payment, error) {
	var p model.Payment
	var kind, status string
	err := row.Scan(&p.ID, &p.BookingID, &p.OccurrenceID, &p.OrderID, &kind, &p.Amount, &p.Method,
		&status, &p.ProviderRef, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	p.Kind = model.PaymentKind(kind)
	p.Status = model.PaymentStatus(status)
	return p, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intsFromDB(days []int32) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

func intsToDB(days []int) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
