package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/courtdesk/libs/db"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/pricing"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/schedule"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
)

type VenueRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ venue.Store = (*VenueRepository)(nil)

func NewVenueRepository(pool *db.Pool, outboxRepo *outbox.Repository) *VenueRepository {
	return &VenueRepository{pool: pool, outbox: outboxRepo}
}

func (r *VenueRepository) CourtExists(ctx context.Context, courtID string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM courts WHERE id = $1 AND active)`, courtID).Scan(&ok)
	return ok, err
}

func (r *VenueRepository) PricingRules(ctx context.Context, courtID string) ([]pricing.Rule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, court_id, days_of_week, start_clock, end_clock, price_per_hour, rule_order
		FROM court_pricing_rules
		WHERE court_id = $1
		ORDER BY rule_order, id
	`, courtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []pricing.Rule
	for rows.Next() {
		var rule pricing.Rule
		var days []int32
		var start, end string
		if err := rows.Scan(&rule.ID, &rule.CourtID, &days, &start, &end, &rule.PricePerHour, &rule.Order); err != nil {
			return nil, err
		}
		if rule.Start, err = schedule.ParseClock(start); err != nil {
			return nil, fmt.Errorf("pricing rule %s: %w", rule.ID, err)
		}
		if rule.End, err = schedule.ParseClock(end); err != nil {
			return nil, fmt.Errorf("pricing rule %s: %w", rule.ID, err)
		}
		rule.DaysOfWeek = intsFromDB(days)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// lockCourt serializes overlap checks on one court.
func lockCourt(ctx context.Context, tx pgx.Tx, courtID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM courts WHERE id = $1 FOR UPDATE`, courtID).Scan(&id)
	return translate(err, "court "+courtID)
}

func overlapping(ctx context.Context, tx pgx.Tx, o model.Occurrence) error {
	var otherID string
	err := tx.QueryRow(ctx, `
		SELECT id FROM occurrences
		WHERE court_id = $1
			AND id <> $2
			AND status <> 'cancelled'
			AND starts_at < $4
			AND ends_at > $3
		LIMIT 1
	`, o.CourtID, o.ID, o.StartsAt, o.EndsAt).Scan(&otherID)
	if IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: occurrence %s", model.ErrOverlapConflict, otherID)
}

func (r *VenueRepository) CreateBooking(ctx context.Context, b model.Booking, occurrences []model.Occurrence, events []outbox.Event) error {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := lockCourt(ctx, tx, b.CourtID); err != nil {
			return err
		}
		for _, o := range occurrences {
			if err := overlapping(ctx, tx, o); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, court_id, customer_id, start_date, end_date, days_of_week, start_clock, end_clock, note, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, b.ID, b.CourtID, b.CustomerID, dateOnly(b.StartDate), dateOnly(b.EndDate), intsToDB(b.DaysOfWeek),
			b.StartClock, b.EndClock, b.Note, b.CreatedAt); err != nil {
			return err
		}

		rows := make([][]any, 0, len(occurrences))
		for _, o := range occurrences {
			rows = append(rows, []any{o.ID, o.BookingID, o.CourtID, o.CustomerID, dateOnly(o.Date), o.StartsAt, o.EndsAt,
				string(o.Status), o.CourtFee, o.Version, o.CreatedAt, o.UpdatedAt})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"occurrences"},
			[]string{"id", "booking_id", "court_id", "customer_id", "occurrence_date", "starts_at", "ends_at",
				"status", "court_fee", "version", "created_at", "updated_at"},
			pgx.CopyFromRows(rows)); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, events...)
	})
	return translate(err, "booking")
}

func (r *VenueRepository) Booking(ctx context.Context, id string) (model.Booking, error) {
	var b model.Booking
	var days []int32
	err := r.pool.QueryRow(ctx, `
		SELECT id, court_id, customer_id, start_date, end_date, days_of_week, start_clock, end_clock, note, created_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.CourtID, &b.CustomerID, &b.StartDate, &b.EndDate, &days, &b.StartClock, &b.EndClock, &b.Note, &b.CreatedAt)
	if err != nil {
		return model.Booking{}, translate(err, "booking "+id)
	}
	b.DaysOfWeek = intsFromDB(days)
	return b, nil
}

func (r *VenueRepository) BookingCourtTotal(ctx context.Context, bookingID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(court_fee), 0)::bigint FROM occurrences
		WHERE booking_id = $1 AND status <> 'cancelled'
	`, bookingID).Scan(&total)
	return total, err
}

func (r *VenueRepository) InsertDeposit(ctx context.Context, p model.Payment, events []outbox.Event) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		if err := insertPayment(ctx, tx, p); err != nil {
			return err
		}
		// A new deposit changes every occurrence's share of it.
		if _, err := tx.Exec(ctx, `
			UPDATE occurrences SET version = version + 1, updated_at = now() WHERE booking_id = $1
		`, p.BookingID); err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, events...)
	})
}

func (r *VenueRepository) Occurrence(ctx context.Context, id string) (model.Occurrence, error) {
	o, err := scanOccurrence(r.pool.QueryRow(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1`, id))
	return o, translate(err, "occurrence "+id)
}

func (r *VenueRepository) ListOccurrences(ctx context.Context, f venue.OccurrenceFilter) ([]model.Occurrence, error) {
	var from, to, endsBefore *time.Time
	if !f.From.IsZero() {
		from = &f.From
	}
	if !f.To.IsZero() {
		to = &f.To
	}
	if !f.EndsBefore.IsZero() {
		endsBefore = &f.EndsBefore
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+occurrenceColumns+`
		FROM occurrences
		WHERE ($1::text IS NULL OR court_id = $1)
			AND ($2::text IS NULL OR customer_id = $2)
			AND ($3::text IS NULL OR status = $3)
			AND ($4::timestamptz IS NULL OR ends_at > $4)
			AND ($5::timestamptz IS NULL OR starts_at < $5)
			AND ($6::timestamptz IS NULL OR ends_at < $6)
		ORDER BY starts_at
		LIMIT $7
	`, nullable(f.CourtID), nullable(f.CustomerID), nullable(string(f.Status)), from, to, endsBefore, f.Limit)
	if err != nil {
		return nil, err
	}
	return collectOccurrences(rows)
}

func (r *VenueRepository) CourtOccurrences(ctx context.Context, courtID string, from, to time.Time) ([]model.Occurrence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+occurrenceColumns+`
		FROM occurrences
		WHERE court_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at
	`, courtID, from, to)
	if err != nil {
		return nil, err
	}
	return collectOccurrences(rows)
}

// Load reads the aggregate from a single read-only snapshot, so lines,
// usages and payments agree with the occurrence version returned.
func (r *VenueRepository) Load(ctx context.Context, occurrenceID string) (venue.Aggregate, error) {
	var agg venue.Aggregate
	err := r.pool.InSnapshot(ctx, func(tx pgx.Tx) error {
		o, err := scanOccurrence(tx.QueryRow(ctx, `SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1`, occurrenceID))
		if err != nil {
			return translate(err, "occurrence "+occurrenceID)
		}
		agg.Occurrence = o

		rows, err := tx.Query(ctx, `
			SELECT occurrence_id, product_id, product_name, quantity, unit_price, updated_at
			FROM order_item_lines WHERE occurrence_id = $1 ORDER BY product_id
		`, o.ID)
		if err != nil {
			return err
		}
		agg.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderItemLine, error) {
			var l model.OrderItemLine
			err := row.Scan(&l.OccurrenceID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.UpdatedAt)
			return l, err
		})
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `
			SELECT id, occurrence_id, service_id, service_name, quantity, unit_price_per_hour, started_at, ended_at
			FROM service_usages WHERE occurrence_id = $1 ORDER BY started_at, id
		`, o.ID)
		if err != nil {
			return err
		}
		agg.Usages, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ServiceUsage, error) {
			var u model.ServiceUsage
			err := row.Scan(&u.ID, &u.OccurrenceID, &u.ServiceID, &u.ServiceName, &u.Quantity, &u.UnitPricePerHour, &u.StartedAt, &u.EndedAt)
			return u, err
		})
		if err != nil {
			return err
		}

		rows, err = tx.Query(ctx, `
			SELECT `+paymentColumns+`
			FROM payments WHERE occurrence_id = $1 AND kind = 'settlement' ORDER BY created_at, id
		`, o.ID)
		if err != nil {
			return err
		}
		agg.Payments, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Payment, error) {
			return scanPayment(row)
		})
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			SELECT
				(SELECT COALESCE(SUM(amount), 0)::bigint FROM payments
					WHERE booking_id = $1 AND kind = 'deposit' AND status = 'paid'),
				(SELECT COUNT(*) FROM occurrences WHERE booking_id = $1)
		`, o.BookingID).Scan(&agg.BookingDeposits, &agg.BookingOccurrences)
	})
	return agg, err
}

func (r *VenueRepository) Product(ctx context.Context, id string) (model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, unit_price, available_stock FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.UnitPrice, &p.AvailableStock)
	return p, translate(err, "product "+id)
}

func (r *VenueRepository) Service(ctx context.Context, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, price_per_hour, active, stock_quantity FROM services WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.PricePerHour, &s.Active, &s.StockQuantity)
	return s, translate(err, "service "+id)
}

func (r *VenueRepository) Payment(ctx context.Context, id string) (model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	return p, translate(err, "payment "+id)
}

func (r *VenueRepository) ResolvePaymentRef(ctx context.Context, ref string) (string, error) {
	var occurrenceID string
	err := r.pool.QueryRow(ctx, `
		SELECT id FROM occurrences WHERE id = $1
		UNION ALL
		SELECT occurrence_id FROM orders WHERE id = $1
		LIMIT 1
	`, ref).Scan(&occurrenceID)
	return occurrenceID, translate(err, "payment reference "+ref)
}

func (r *VenueRepository) SetPaymentProviderRef(ctx context.Context, paymentID, providerRef string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET provider_ref = $2, updated_at = now() WHERE id = $1
	`, paymentID, providerRef)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment %s: %w", paymentID, model.ErrNotFound)
	}
	return nil
}

// PendingCardPayments lists card payments still Pending that were created
// before cutoff, oldest first.
func (r *VenueRepository) PendingCardPayments(ctx context.Context, cutoff time.Time, limit int) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE method = 'card' AND status = 'pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Payment, error) {
		return scanPayment(row)
	})
}

func insertPayment(ctx context.Context, tx pgx.Tx, p model.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, occurrence_id, order_id, kind, amount, method, status, provider_ref, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status,
			provider_ref = CASE WHEN EXCLUDED.provider_ref = '' THEN payments.provider_ref ELSE EXCLUDED.provider_ref END,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.BookingID, nullable(p.OccurrenceID), nullable(p.OrderID), string(p.Kind), p.Amount, p.Method,
		string(p.Status), p.ProviderRef, p.Note, p.CreatedAt, p.UpdatedAt)
	return err
}

// Commit applies m in one transaction. The occurrence row is locked first so
// the version comparison and every write below it see the same state.
func (r *VenueRepository) Commit(ctx context.Context, m venue.Mutation) (model.Occurrence, error) {
	var out model.Occurrence
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanOccurrence(tx.QueryRow(ctx, `
			SELECT `+occurrenceColumns+` FROM occurrences WHERE id = $1 FOR UPDATE
		`, m.OccurrenceID))
		if err != nil {
			return translate(err, "occurrence "+m.OccurrenceID)
		}
		if cur.Version != m.ExpectedVersion {
			return fmt.Errorf("%w: expected version %d, found %d", model.ErrConcurrentModification, m.ExpectedVersion, cur.Version)
		}

		if m.ProviderEventID != "" {
			tag, err := tx.Exec(ctx, `
				INSERT INTO provider_events (event_id, provider) VALUES ($1, 'stripe')
				ON CONFLICT (event_id) DO NOTHING
			`, m.ProviderEventID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return venue.ErrDuplicateEvent
			}
		}

		next := cur
		if m.Occurrence != nil {
			next = *m.Occurrence
		}
		if m.GuardOverlap {
			if err := lockCourt(ctx, tx, next.CourtID); err != nil {
				return err
			}
			if err := overlapping(ctx, tx, next); err != nil {
				return err
			}
		}

		if err := applyCart(ctx, tx, m); err != nil {
			return err
		}
		for _, u := range m.CloseUsages {
			if _, err := tx.Exec(ctx, `
				UPDATE service_usages SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL
			`, u.ID, u.EndedAt); err != nil {
				return err
			}
		}
		if err := applyUsage(ctx, tx, m); err != nil {
			return err
		}
		if m.Payment != nil {
			if err := insertPayment(ctx, tx, *m.Payment); err != nil {
				return err
			}
		}
		if o := m.Order; o != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO orders (id, occurrence_id, booking_id, customer_id, court_total, court_paid, court_remaining,
					items_subtotal, services_subtotal, late_fee_percentage, late_fee, overdue_minutes, total, paid, partial, note, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			`, o.ID, o.OccurrenceID, o.BookingID, o.CustomerID, o.CourtTotal, o.CourtPaid, o.CourtRemaining,
				o.ItemsSubtotal, o.ServicesSubtotal, o.LateFeePercentage, o.LateFee, o.OverdueMinutes, o.Total, o.Paid,
				o.Partial, o.Note, o.CreatedAt); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				UPDATE payments SET order_id = $2, updated_at = now()
				WHERE occurrence_id = $1 AND kind = 'settlement' AND order_id IS NULL
			`, o.OccurrenceID, o.ID); err != nil {
				return err
			}
		}

		out, err = scanOccurrence(tx.QueryRow(ctx, `
			UPDATE occurrences
			SET status = $3,
				check_in_at = $4,
				check_out_at = $5,
				settled_at = $6,
				version = version + 1,
				updated_at = now()
			WHERE id = $1 AND version = $2
			RETURNING `+occurrenceColumns,
			m.OccurrenceID, m.ExpectedVersion, string(next.Status), next.CheckInAt, next.CheckOutAt, next.SettledAt))
		if IsNotFound(err) {
			return model.ErrConcurrentModification
		}
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, m.Events...)
	})
	if err != nil && !errors.Is(err, venue.ErrDuplicateEvent) {
		return model.Occurrence{}, translate(err, "occurrence "+m.OccurrenceID)
	}
	return out, err
}

// applyUsage inserts or deletes a service usage and moves the service's
// shelf count with it. Services with a NULL stock_quantity are not counted.
func applyUsage(ctx context.Context, tx pgx.Tx, m venue.Mutation) error {
	if u := m.NewUsage; u != nil {
		tag, err := tx.Exec(ctx, `
			UPDATE services
			SET stock_quantity = stock_quantity - $2, updated_at = now()
			WHERE id = $1 AND (stock_quantity IS NULL OR stock_quantity >= $2)
		`, u.ServiceID, u.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: service %s needs %d", model.ErrInsufficientStock, u.ServiceID, u.Quantity)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO service_usages (id, occurrence_id, service_id, service_name, quantity, unit_price_per_hour, started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, u.ID, u.OccurrenceID, u.ServiceID, u.ServiceName, u.Quantity, u.UnitPricePerHour, u.StartedAt); err != nil {
			return err
		}
	}
	if u := m.RemoveUsage; u != nil {
		tag, err := tx.Exec(ctx, `
			DELETE FROM service_usages WHERE id = $1 AND occurrence_id = $2
		`, u.ID, m.OccurrenceID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("service usage %s: %w", u.ID, model.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE services
			SET stock_quantity = stock_quantity + $2, updated_at = now()
			WHERE id = $1 AND stock_quantity IS NOT NULL
		`, u.ServiceID, u.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// applyCart moves stock and rewrites the line. Stock is only taken when the
// product still has at least StockDelta available at write time.
func applyCart(ctx context.Context, tx pgx.Tx, m venue.Mutation) error {
	c := m.Cart
	if c == nil {
		return nil
	}
	if c.StockDelta != 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET available_stock = available_stock - $2, updated_at = now()
			WHERE id = $1 AND available_stock >= $2
		`, c.ProductID, c.StockDelta)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s needs %d more", model.ErrInsufficientStock, c.ProductID, c.StockDelta)
		}
	}
	if c.Removes() {
		_, err := tx.Exec(ctx, `
			DELETE FROM order_item_lines WHERE occurrence_id = $1 AND product_id = $2
		`, c.OccurrenceID, c.ProductID)
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO order_item_lines (occurrence_id, product_id, product_name, quantity, unit_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (occurrence_id, product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
			unit_price = EXCLUDED.unit_price,
			product_name = EXCLUDED.product_name,
			updated_at = now()
	`, c.OccurrenceID, c.ProductID, c.ProductName, c.Quantity, c.UnitPrice)
	return err
}
