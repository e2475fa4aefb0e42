//go:build integration

package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/courtdesk/libs/db"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/cart"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/schedule"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run with: TEST_DATABASE_URL=postgres://... go test -tags integration ./...
func openRepo(t *testing.T) (*VenueRepository, *db.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 8})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return NewVenueRepository(pool, outbox.NewRepository()), pool
}

// seedCourt creates a court and returns its id. Ids are random so tests can
// share one database without cleanup.
func seedCourt(t *testing.T, pool *db.Pool) string {
	t.Helper()
	id := "court-" + uuid.NewString()
	_, err := pool.Exec(context.Background(), `INSERT INTO courts (id, name) VALUES ($1, $1)`, id)
	require.NoError(t, err)
	return id
}

func newBooking(courtID string, start time.Time, dur time.Duration, status model.Status) (model.Booking, model.Occurrence) {
	now := time.Now().UTC()
	b := model.Booking{
		ID: uuid.NewString(), CourtID: courtID, CustomerID: "cust-1",
		StartDate: schedule.DateOf(start), EndDate: schedule.DateOf(start),
		StartClock: start.Format("15:04"), EndClock: start.Add(dur).Format("15:04"), CreatedAt: now,
	}
	o := model.Occurrence{
		ID: uuid.NewString(), BookingID: b.ID, CourtID: courtID, CustomerID: b.CustomerID,
		Date: schedule.DateOf(start), StartsAt: start, EndsAt: start.Add(dur),
		Status: status, CourtFee: 120000, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	return b, o
}

func seedOccurrence(t *testing.T, repo *VenueRepository, courtID string, start time.Time, status model.Status) model.Occurrence {
	t.Helper()
	b, o := newBooking(courtID, start, time.Hour, status)
	require.NoError(t, repo.CreateBooking(context.Background(), b, []model.Occurrence{o}, nil))
	return o
}

var slot = time.Date(2030, 6, 3, 18, 0, 0, 0, time.UTC)

// race runs fn twice at once and returns both errors.
func race(fn func(i int) error) []error {
	errs := make([]error, 2)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = fn(i)
		}()
	}
	close(start)
	wg.Wait()
	return errs
}

func exactlyOneFails(t *testing.T, errs []error, want error) {
	t.Helper()
	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, want)
			failed++
		}
	}
	assert.Equal(t, 1, failed, "errors: %v", errs)
}

func TestCommitVersionRace(t *testing.T) {
	repo, _ := openRepo(t)
	ctx := context.Background()
	o := seedOccurrence(t, repo, seedCourt(t, repo.pool), slot, model.StatusBooked)

	errs := race(func(int) error {
		next := o
		next.Status = model.StatusCheckedIn
		at := slot
		next.CheckInAt = &at
		_, err := repo.Commit(ctx, venue.Mutation{OccurrenceID: o.ID, ExpectedVersion: o.Version, Occurrence: &next})
		return err
	})
	exactlyOneFails(t, errs, model.ErrConcurrentModification)

	got, err := repo.Occurrence(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Version+1, got.Version)
	assert.Equal(t, model.StatusCheckedIn, got.Status)
}

func TestCommitProductStockRace(t *testing.T) {
	repo, pool := openRepo(t)
	ctx := context.Background()
	court := seedCourt(t, pool)
	occs := []model.Occurrence{
		seedOccurrence(t, repo, court, slot, model.StatusCheckedIn),
		seedOccurrence(t, repo, court, slot.Add(2*time.Hour), model.StatusCheckedIn),
	}
	productID := "water-" + uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO products (id, name, unit_price, available_stock) VALUES ($1, 'Water', 10000, 5)`, productID)
	require.NoError(t, err)

	errs := race(func(i int) error {
		o := occs[i]
		_, err := repo.Commit(ctx, venue.Mutation{
			OccurrenceID: o.ID, ExpectedVersion: o.Version,
			Cart: &cart.Change{OccurrenceID: o.ID, ProductID: productID, ProductName: "Water", Quantity: 3, UnitPrice: 10000, StockDelta: 3},
		})
		return err
	})
	exactlyOneFails(t, errs, model.ErrInsufficientStock)

	p, err := repo.Product(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.AvailableStock)
}

func TestCommitServiceStockRace(t *testing.T) {
	repo, pool := openRepo(t)
	ctx := context.Background()
	court := seedCourt(t, pool)
	occs := []model.Occurrence{
		seedOccurrence(t, repo, court, slot, model.StatusCheckedIn),
		seedOccurrence(t, repo, court, slot.Add(2*time.Hour), model.StatusCheckedIn),
	}
	serviceID := "ball-" + uuid.NewString()
	_, err := pool.Exec(ctx, `INSERT INTO services (id, name, price_per_hour, stock_quantity) VALUES ($1, 'Ball machine', 50000, 1)`, serviceID)
	require.NoError(t, err)

	usages := make([]model.ServiceUsage, 2)
	errs := race(func(i int) error {
		o := occs[i]
		usages[i] = model.ServiceUsage{
			ID: uuid.NewString(), OccurrenceID: o.ID, ServiceID: serviceID, ServiceName: "Ball machine",
			Quantity: 1, UnitPricePerHour: 50000, StartedAt: slot,
		}
		_, err := repo.Commit(ctx, venue.Mutation{OccurrenceID: o.ID, ExpectedVersion: o.Version, NewUsage: &usages[i]})
		return err
	})
	exactlyOneFails(t, errs, model.ErrInsufficientStock)

	s, err := repo.Service(ctx, serviceID)
	require.NoError(t, err)
	require.NotNil(t, s.StockQuantity)
	assert.Equal(t, 0, *s.StockQuantity)

	winner := 0
	if errs[0] != nil {
		winner = 1
	}
	o, err := repo.Occurrence(ctx, occs[winner].ID)
	require.NoError(t, err)
	_, err = repo.Commit(ctx, venue.Mutation{OccurrenceID: o.ID, ExpectedVersion: o.Version, RemoveUsage: &usages[winner]})
	require.NoError(t, err)
	s, err = repo.Service(ctx, serviceID)
	require.NoError(t, err)
	assert.Equal(t, 1, *s.StockQuantity)
}

func TestOverlappingBookingsConflict(t *testing.T) {
	repo, pool := openRepo(t)
	ctx := context.Background()
	court := seedCourt(t, pool)

	// Concurrent bookings of overlapping slots serialize on the court lock.
	errs := race(func(i int) error {
		b, o := newBooking(court, slot.Add(time.Duration(i)*30*time.Minute), time.Hour, model.StatusBooked)
		return repo.CreateBooking(ctx, b, []model.Occurrence{o}, nil)
	})
	exactlyOneFails(t, errs, model.ErrOverlapConflict)

	// A writer that skips the court lock still hits the exclusion constraint.
	b, o := newBooking(court, slot.Add(15*time.Minute), time.Hour, model.StatusBooked)
	_, err := pool.Exec(ctx, `
		INSERT INTO bookings (id, court_id, customer_id, start_date, end_date, start_clock, end_clock)
		VALUES ($1, $2, $3, $4, $4, $5, $6)
	`, b.ID, b.CourtID, b.CustomerID, dateOnly(b.StartDate), b.StartClock, b.EndClock)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO occurrences (id, booking_id, court_id, customer_id, occurrence_date, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'booked')
	`, o.ID, o.BookingID, o.CourtID, o.CustomerID, dateOnly(o.Date), o.StartsAt, o.EndsAt)
	require.True(t, IsConflict(err), "want sqlstate 23P01, got %v", err)
	assert.ErrorIs(t, translate(err, "occurrence"), model.ErrOverlapConflict)

	// Cancelled occurrences free the slot.
	_, err = pool.Exec(ctx, `
		INSERT INTO occurrences (id, booking_id, court_id, customer_id, occurrence_date, starts_at, ends_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'cancelled')
	`, o.ID, o.BookingID, o.CourtID, o.CustomerID, dateOnly(o.Date), o.StartsAt, o.EndsAt)
	assert.NoError(t, err)
}

func TestDepositBumpsBookingVersions(t *testing.T) {
	repo, pool := openRepo(t)
	ctx := context.Background()
	o := seedOccurrence(t, repo, seedCourt(t, pool), slot, model.StatusBooked)

	now := time.Now().UTC()
	require.NoError(t, repo.InsertDeposit(ctx, model.Payment{
		ID: uuid.NewString(), BookingID: o.BookingID, Kind: model.PaymentDeposit, Amount: 36000,
		Method: "cash", Status: model.PaymentPaid, CreatedAt: now, UpdatedAt: now,
	}, nil))

	agg, err := repo.Load(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Version+1, agg.Occurrence.Version)
	assert.Equal(t, int64(36000), agg.BookingDeposits)
	assert.Equal(t, 1, agg.BookingOccurrences)
}
