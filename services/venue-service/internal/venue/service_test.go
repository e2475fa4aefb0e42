package venue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/pricing"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allDays = []int{2, 3, 4, 5, 6, 7, 8}

type fixture struct {
	svc   *Service
	store *memStore
	now   time.Time
}

func (f *fixture) at(t time.Time) { f.now = t }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: newMemStore(), now: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	f.store.courts["court-1"] = []pricing.Rule{{
		ID: "flat", CourtID: "court-1", DaysOfWeek: allDays,
		Start: schedule.Clock{Hour: 6}, End: schedule.Clock{Hour: 23}, PricePerHour: 120000,
	}}
	f.store.courts["court-2"] = f.store.courts["court-1"]
	f.store.products["water"] = model.Product{ID: "water", Name: "Water", UnitPrice: 10000, AvailableStock: 5}
	f.store.services["racket"] = model.Service{ID: "racket", Name: "Racket", PricePerHour: 30000, Active: true}
	f.svc = NewService(f.store, Options{Now: func() time.Time { return f.now }})
	return f
}

// seed stores an occurrence directly, bypassing booking validation.
func (f *fixture) seed(id, court string, start time.Time, dur time.Duration, fee int64, status model.Status) model.Occurrence {
	o := model.Occurrence{
		ID: id, BookingID: "b-" + id, CourtID: court, CustomerID: "cust-1",
		Date: schedule.DateOf(start), StartsAt: start, EndsAt: start.Add(dur),
		Status: status, CourtFee: fee, Version: 1,
	}
	if status == model.StatusCheckedIn {
		o.CheckInAt = &start
	}
	f.store.occurrences[id] = o
	return o
}

var slotStart = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

func TestCreateBookingExpandsAndPrices(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateBooking(context.Background(), BookingRequest{
		CourtID: "court-1", CustomerID: "cust-1",
		StartDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{6, 2, 4, 2},
		StartClock: "18:00", EndClock: "19:30",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, res.Booking.DaysOfWeek)
	require.Len(t, res.Occurrences, 6)
	for _, o := range res.Occurrences {
		assert.Equal(t, int64(180000), o.CourtFee)
		assert.Equal(t, model.StatusBooked, o.Status)
		assert.Equal(t, 18, o.StartsAt.Hour())
	}
	assert.Equal(t, []string{EventBookingCreated}, f.store.eventTypes())
}

func TestCreateBookingRunsToMidnight(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	res, err := f.svc.CreateBooking(context.Background(), BookingRequest{
		CourtID: "court-1", CustomerID: "cust-1",
		StartDate: day, EndDate: day,
		StartClock: "22:00", EndClock: "24:00",
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1)
	o := res.Occurrences[0]
	assert.Equal(t, day.AddDate(0, 0, 1), o.EndsAt)
	assert.Equal(t, "24:00", res.Booking.EndClock)
	// Pricing stops at 23:00, where the court's only rule ends.
	assert.Equal(t, int64(120000), o.CourtFee)
}

func TestCreateBookingRejectsOverlapAndStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.seed("existing", "court-1", time.Date(2026, 3, 9, 19, 0, 0, 0, time.UTC), time.Hour, 120000, model.StatusBooked)

	_, err := f.svc.CreateBooking(context.Background(), BookingRequest{
		CourtID: "court-1", CustomerID: "cust-2",
		StartDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{2},
		StartClock: "18:30", EndClock: "19:30",
	})
	require.ErrorIs(t, err, model.ErrOverlapConflict)
	assert.Len(t, f.store.occurrences, 1)
	assert.Empty(t, f.store.bookings)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	cases := map[string]BookingRequest{
		"walk-in spanning days":  {StartDate: day, EndDate: day.AddDate(0, 0, 1), StartClock: "18:00", EndClock: "19:00"},
		"clocks reversed":        {StartDate: day, EndDate: day, StartClock: "19:00", EndClock: "18:00"},
		"past start":             {StartDate: day.AddDate(0, 0, -3), EndDate: day, StartClock: "18:00", EndClock: "19:00"},
		"bad weekday":            {StartDate: day, EndDate: day, DaysOfWeek: []int{9}, StartClock: "18:00", EndClock: "19:00"},
		"no matching dates":      {StartDate: day, EndDate: day, DaysOfWeek: []int{3}, StartClock: "18:00", EndClock: "19:00"},
		"starts at midnight end": {StartDate: day, EndDate: day, StartClock: "24:00", EndClock: "24:00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.CourtID, req.CustomerID = "court-1", "cust-1"
			_, err := f.svc.CreateBooking(context.Background(), req)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}

	_, err := f.svc.CreateBooking(context.Background(), BookingRequest{
		CourtID: "nope", CustomerID: "cust-1", StartDate: day, EndDate: day, StartClock: "18:00", EndClock: "19:00",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEstimateLateFeeAfterGrace(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)

	f.at(slotStart.Add(80 * time.Minute))
	est, err := f.svc.Estimate(context.Background(), "occ", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(20), est.OverdueMinutes)
	assert.Equal(t, int64(15000), est.LateFeeSurcharge)
	assert.Equal(t, int64(135000), est.Total)

	f.at(slotStart.Add(75 * time.Minute))
	est, err = f.svc.Estimate(context.Background(), "occ", 0)
	require.NoError(t, err)
	assert.Zero(t, est.LateFeeSurcharge)
}

func TestAddThenUpdateKeepsSingleLine(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()

	_, err := f.svc.AddOrderItem(ctx, Target{OccurrenceID: "occ"}, "water", 3)
	require.NoError(t, err)

	// A price change between add and update must not reprice the line.
	p := f.store.products["water"]
	p.UnitPrice = 12000
	f.store.products["water"] = p

	lines, err := f.svc.UpdateOrderItem(ctx, Target{OccurrenceID: "occ"}, "water", 3)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, int64(10000), lines[0].UnitPrice)
	assert.Equal(t, 2, f.store.products["water"].AvailableStock)

	listed, err := f.svc.ListOrderItems(ctx, "occ")
	require.NoError(t, err)
	assert.Equal(t, lines, listed)
}

func TestUpdateToZeroRemovesLineAndReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()

	_, err := f.svc.AddOrderItem(ctx, Target{OccurrenceID: "occ"}, "water", 4)
	require.NoError(t, err)
	lines, err := f.svc.UpdateOrderItem(ctx, Target{OccurrenceID: "occ"}, "water", 0)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 5, f.store.products["water"].AvailableStock)
}

func TestAddItemRequiresCheckedIn(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)

	_, err := f.svc.AddOrderItem(context.Background(), Target{OccurrenceID: "occ"}, "water", 1)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestConcurrentAddItemOverStockExactlyOneFails(t *testing.T) {
	f := newFixture(t)
	f.seed("occ-a", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	f.seed("occ-b", "court-2", slotStart, time.Hour, 120000, model.StatusCheckedIn)

	// Hold both commits until both callers have passed the stock pre-check.
	var barrier sync.WaitGroup
	barrier.Add(2)
	f.store.beforeCommit = func(Mutation) {
		barrier.Done()
		barrier.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"occ-a", "occ-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.AddOrderItem(context.Background(), Target{OccurrenceID: id}, "water", 3)
		}()
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, model.ErrInsufficientStock)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, f.store.products["water"].AvailableStock)
}

func TestConcurrentCheckInOneLosesVersionRace(t *testing.T) {
	f := newFixture(t)
	f.at(slotStart)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)

	var barrier sync.WaitGroup
	barrier.Add(2)
	f.store.beforeCommit = func(Mutation) {
		barrier.Done()
		barrier.Wait()
	}

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := f.svc.CheckIn(context.Background(), Target{OccurrenceID: "occ"})
			errs <- err
		}()
	}
	var conflicts int
	for range 2 {
		if err := <-errs; err != nil {
			require.ErrorIs(t, err, model.ErrConcurrentModification)
			conflicts++
		}
	}
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, int64(2), f.store.occurrences["occ"].Version)
}

func TestStaleTargetVersionRejected(t *testing.T) {
	f := newFixture(t)
	f.at(slotStart)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)

	_, err := f.svc.CheckIn(context.Background(), Target{OccurrenceID: "occ", Version: 7})
	require.ErrorIs(t, err, model.ErrConcurrentModification)
	assert.Equal(t, model.StatusBooked, f.store.occurrences["occ"].Status)
}

func TestCheckInOverlapConflict(t *testing.T) {
	f := newFixture(t)
	f.at(slotStart)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)
	f.seed("other", "court-1", slotStart.Add(30*time.Minute), time.Hour, 120000, model.StatusBooked)

	_, err := f.svc.CheckIn(context.Background(), Target{OccurrenceID: "occ"})
	require.ErrorIs(t, err, model.ErrOverlapConflict)

	f.seed("other", "court-1", slotStart.Add(30*time.Minute), time.Hour, 120000, model.StatusCancelled)
	o, err := f.svc.CheckIn(context.Background(), Target{OccurrenceID: "occ"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, o.Status)
	assert.Equal(t, slotStart, *o.CheckInAt)
}

func TestMarkNoShowTooEarly(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)

	f.at(slotStart.Add(time.Hour))
	_, err := f.svc.MarkNoShow(context.Background(), Target{OccurrenceID: "occ"})
	require.ErrorIs(t, err, model.ErrTooEarly)

	f.at(slotStart.Add(time.Hour + time.Minute))
	o, err := f.svc.MarkNoShow(context.Background(), Target{OccurrenceID: "occ"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNoShow, o.Status)
	assert.Contains(t, f.store.eventTypes(), EventOccurrenceNoShow)
}

func TestCancelWarnsOnlyAfterCheckIn(t *testing.T) {
	f := newFixture(t)
	f.seed("booked", "court-1", slotStart, time.Hour, 120000, model.StatusBooked)
	f.seed("in", "court-2", slotStart, time.Hour, 120000, model.StatusCheckedIn)

	res, err := f.svc.Cancel(context.Background(), Target{OccurrenceID: "booked"}, "rain")
	require.NoError(t, err)
	assert.Empty(t, res.Warning)

	res, err = f.svc.Cancel(context.Background(), Target{OccurrenceID: "in"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warning)
	assert.Equal(t, model.StatusCancelled, res.Occurrence.Status)

	_, err = f.svc.Cancel(context.Background(), Target{OccurrenceID: "in"}, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestCancelStopsServiceMeters(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()

	f.at(slotStart)
	_, err := f.svc.StartService(ctx, Target{OccurrenceID: "occ"}, "racket", 1)
	require.NoError(t, err)

	f.at(slotStart.Add(time.Hour))
	res, err := f.svc.Cancel(ctx, Target{OccurrenceID: "occ"}, "rain")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, res.Occurrence.Status)

	usages, err := f.svc.ListServiceUsages(ctx, "occ")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.False(t, usages[0].Open())

	for _, later := range []time.Duration{2 * time.Hour, 25 * time.Hour, 721 * time.Hour} {
		f.at(slotStart.Add(later))
		est, err := f.svc.Estimate(ctx, "occ", 0)
		require.NoError(t, err)
		assert.Equal(t, int64(30000), est.ServicesSubtotal, "meter frozen at cancel, %s later", later)
	}
}

func stock(n int) *int { return &n }

func TestServiceStockTakenOnStartReturnedOnRemove(t *testing.T) {
	f := newFixture(t)
	f.store.services["ball"] = model.Service{ID: "ball", Name: "Ball machine", PricePerHour: 50000, Active: true, StockQuantity: stock(3)}
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()
	target := Target{OccurrenceID: "occ"}

	f.at(slotStart)
	first, err := f.svc.StartService(ctx, target, "ball", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, *f.store.services["ball"].StockQuantity)

	_, err = f.svc.StartService(ctx, target, "ball", 2)
	require.ErrorIs(t, err, model.ErrInsufficientStock)

	f.at(slotStart.Add(10 * time.Minute))
	second, err := f.svc.StartService(ctx, target, "racket", 1)
	require.NoError(t, err)
	assert.Nil(t, f.store.services["racket"].StockQuantity, "untracked service stays untracked")

	usages, err := f.svc.ListServiceUsages(ctx, "occ")
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, first.ID, usages[0].ID)
	assert.Equal(t, second.ID, usages[1].ID)

	require.NoError(t, f.svc.RemoveServiceUsage(ctx, target, first.ID))
	assert.Equal(t, 3, *f.store.services["ball"].StockQuantity)

	usages, err = f.svc.ListServiceUsages(ctx, "occ")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, second.ID, usages[0].ID)

	f.at(slotStart.Add(70 * time.Minute))
	est, err := f.svc.Estimate(ctx, "occ", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), est.ServicesSubtotal, "removed usage is not billed")
}

func TestRemoveServiceUsageErrors(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()
	f.at(slotStart)

	err := f.svc.RemoveServiceUsage(ctx, Target{OccurrenceID: "occ"}, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	usage, err := f.svc.StartService(ctx, Target{OccurrenceID: "occ"}, "racket", 1)
	require.NoError(t, err)
	_, err = f.svc.CheckOut(ctx, Target{OccurrenceID: "occ"})
	require.NoError(t, err)

	err = f.svc.RemoveServiceUsage(ctx, Target{OccurrenceID: "occ"}, usage.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Len(t, f.store.usages["occ"], 1)
}

func TestConcurrentStartServiceLastUnitExactlyOneFails(t *testing.T) {
	f := newFixture(t)
	f.store.services["ball"] = model.Service{ID: "ball", Name: "Ball machine", PricePerHour: 50000, Active: true, StockQuantity: stock(1)}
	f.seed("occ-a", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	f.seed("occ-b", "court-2", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	f.at(slotStart)

	var barrier sync.WaitGroup
	barrier.Add(2)
	f.store.beforeCommit = func(Mutation) {
		barrier.Done()
		barrier.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"occ-a", "occ-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.StartService(context.Background(), Target{OccurrenceID: id}, "ball", 1)
		}()
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, model.ErrInsufficientStock)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, *f.store.services["ball"].StockQuantity)
}

func TestCheckOutClosesRunningServices(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 120000, model.StatusCheckedIn)
	ctx := context.Background()

	f.at(slotStart)
	usage, err := f.svc.StartService(ctx, Target{OccurrenceID: "occ"}, "racket", 2)
	require.NoError(t, err)

	f.at(slotStart.Add(time.Hour))
	o, err := f.svc.CheckOut(ctx, Target{OccurrenceID: "occ"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedOut, o.Status)

	agg, err := f.store.Load(ctx, "occ")
	require.NoError(t, err)
	require.Len(t, agg.Usages, 1)
	assert.Equal(t, usage.ID, agg.Usages[0].ID)
	assert.False(t, agg.Usages[0].Open())

	f.at(slotStart.Add(3 * time.Hour))
	est, err := f.svc.Estimate(ctx, "occ", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), est.ServicesSubtotal, "meter stopped at check-out")
}

func TestRecordPaymentRejectsNonPositive(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)

	for _, amount := range []int64{0, -100} {
		_, err := f.svc.RecordPayment(context.Background(), PaymentRequest{Ref: "occ", Amount: amount})
		assert.ErrorIs(t, err, model.ErrInvalidAmount)
	}
}

func TestPaymentSettlesBalanceAndFinalizes(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)
	f.at(slotStart.Add(50 * time.Minute))
	ctx := context.Background()

	res, err := f.svc.RecordPayment(ctx, PaymentRequest{Ref: "occ", Amount: 50000, Method: "Cash"})
	require.NoError(t, err)
	assert.Equal(t, "cash", res.Payment.Method)
	assert.Zero(t, res.Ledger.Balance)

	fin, err := f.svc.Finalize(ctx, FinalizeRequest{Target: Target{OccurrenceID: "occ"}})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedOut, fin.Occurrence.Status)
	assert.True(t, fin.Occurrence.Settled())
	assert.Equal(t, int64(50000), fin.Order.Total)
	assert.False(t, fin.Order.Partial)
	assert.Equal(t, fin.Order.ID, f.store.payments[res.Payment.ID].OrderID)
	assert.Equal(t, []string{EventPaymentRecorded, EventOccurrenceCheckedOut, EventCheckoutFinalized}, f.store.eventTypes())

	// The order id is a valid payment reference too.
	_, err = f.svc.RecordPayment(ctx, PaymentRequest{Ref: fin.Order.ID, Amount: 1000})
	assert.NoError(t, err)
}

func TestFinalizeOutstandingBalanceWritesNothing(t *testing.T) {
	f := newFixture(t)
	o := f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)
	f.at(slotStart.Add(50 * time.Minute))

	_, err := f.svc.Finalize(context.Background(), FinalizeRequest{Target: Target{OccurrenceID: "occ"}})
	require.ErrorIs(t, err, model.ErrOutstandingBalance)
	assert.Equal(t, o, f.store.occurrences["occ"])
	assert.Empty(t, f.store.orders)

	fin, err := f.svc.Finalize(context.Background(), FinalizeRequest{Target: Target{OccurrenceID: "occ"}, AllowPartial: true})
	require.NoError(t, err)
	assert.True(t, fin.Order.Partial)
	assert.Equal(t, int64(50000), fin.Ledger.Balance)

	_, err = f.svc.Finalize(context.Background(), FinalizeRequest{Target: Target{OccurrenceID: "occ"}, AllowPartial: true})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestDepositReducesEachOccurrenceCourtFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateBooking(ctx, BookingRequest{
		CourtID: "court-1", CustomerID: "cust-1",
		StartDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{2},
		StartClock: "18:00", EndClock: "19:00",
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 2)

	dep, err := f.svc.RecordDeposit(ctx, DepositRequest{BookingID: res.Booking.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(72000), dep.Amount)

	est, err := f.svc.Estimate(ctx, res.Occurrences[0].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(36000), est.CourtPaid)
	assert.Equal(t, int64(84000), est.CourtRemaining)

	_, err = f.svc.RecordDeposit(ctx, DepositRequest{BookingID: res.Booking.ID, Amount: -1})
	assert.ErrorIs(t, err, model.ErrInvalidAmount)
}

func TestDepositInvalidatesOccurrenceVersions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateBooking(ctx, BookingRequest{
		CourtID: "court-1", CustomerID: "cust-1",
		StartDate:  time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{2},
		StartClock: "18:00", EndClock: "19:00",
	})
	require.NoError(t, err)
	occ := res.Occurrences[0]

	f.at(occ.StartsAt)
	in, err := f.svc.CheckIn(ctx, Target{OccurrenceID: occ.ID})
	require.NoError(t, err)

	_, err = f.svc.RecordDeposit(ctx, DepositRequest{BookingID: res.Booking.ID})
	require.NoError(t, err)

	// A cashier still holding the pre-deposit version must re-read the
	// balance before settling.
	f.at(occ.StartsAt.Add(50 * time.Minute))
	_, err = f.svc.Finalize(ctx, FinalizeRequest{Target: Target{OccurrenceID: occ.ID, Version: in.Version}, AllowPartial: true})
	require.ErrorIs(t, err, model.ErrConcurrentModification)

	fresh, err := f.store.Occurrence(ctx, occ.ID)
	require.NoError(t, err)
	assert.Equal(t, in.Version+1, fresh.Version)

	fin, err := f.svc.Finalize(ctx, FinalizeRequest{Target: Target{OccurrenceID: occ.ID, Version: fresh.Version}, AllowPartial: true})
	require.NoError(t, err)
	assert.Equal(t, int64(36000), fin.Order.CourtPaid)
}

type fakeCards struct {
	err  error
	reqs []CardCheckout
}

func (c *fakeCards) CreateCheckout(_ context.Context, req CardCheckout) (CardSession, error) {
	c.reqs = append(c.reqs, req)
	if c.err != nil {
		return CardSession{}, c.err
	}
	return CardSession{ID: "cs_test_1", URL: "https://pay.example/cs_test_1"}, nil
}

func TestCardPaymentConfirmedByWebhookEvent(t *testing.T) {
	f := newFixture(t)
	cards := &fakeCards{}
	f.svc.cards = cards
	f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)
	f.at(slotStart.Add(30 * time.Minute))
	ctx := context.Background()

	started, err := f.svc.StartCardPayment(ctx, Target{OccurrenceID: "occ"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), started.Payment.Amount)
	assert.Equal(t, "https://pay.example/cs_test_1", started.CheckoutURL)
	assert.Equal(t, "cs_test_1", f.store.payments[started.Payment.ID].ProviderRef)

	summary, err := f.svc.Ledger(ctx, "occ", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), summary.Pending)
	assert.Equal(t, int64(50000), summary.Balance)

	p, err := f.svc.ConfirmCardPayment(ctx, "evt_1", started.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPaid, p.Status)

	_, err = f.svc.ConfirmCardPayment(ctx, "evt_1", started.Payment.ID)
	require.NoError(t, err)

	summary, err = f.svc.Ledger(ctx, "occ", 0)
	require.NoError(t, err)
	assert.Zero(t, summary.Balance)
}

func TestCardPaymentGatewayFailureCancelsPending(t *testing.T) {
	f := newFixture(t)
	f.svc.cards = &fakeCards{err: errors.New("gateway down")}
	f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)

	_, err := f.svc.StartCardPayment(context.Background(), Target{OccurrenceID: "occ"}, 20000)
	require.Error(t, err)
	require.Len(t, f.store.payments, 1)
	for _, p := range f.store.payments {
		assert.Equal(t, model.PaymentCancelled, p.Status)
	}
}

func TestCardPaymentDisabled(t *testing.T) {
	f := newFixture(t)
	f.seed("occ", "court-1", slotStart, time.Hour, 50000, model.StatusCheckedIn)
	_, err := f.svc.StartCardPayment(context.Background(), Target{OccurrenceID: "occ"}, 0)
	assert.ErrorIs(t, err, ErrCardsDisabled)
}

func TestListOccurrencesFiltersAndValidates(t *testing.T) {
	f := newFixture(t)
	f.seed("o-1", "court-1", slotStart, 90*time.Minute, 180000, model.StatusBooked)
	f.seed("o-2", "court-1", slotStart.Add(2*time.Hour), time.Hour, 120000, model.StatusCheckedIn)
	f.seed("o-3", "court-2", slotStart, time.Hour, 120000, model.StatusBooked)
	ctx := context.Background()

	got, err := f.svc.ListOccurrences(ctx, OccurrenceFilter{CourtID: "court-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o-1", got[0].ID)

	got, err = f.svc.ListOccurrences(ctx, OccurrenceFilter{Status: model.StatusBooked, EndsBefore: slotStart.Add(100 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = f.svc.ListOccurrences(ctx, OccurrenceFilter{Status: "paused"})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = f.svc.ListOccurrences(ctx, OccurrenceFilter{From: slotStart, To: slotStart.Add(-time.Hour)})
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	o, err := f.svc.GetOccurrence(ctx, "o-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCheckedIn, o.Status)

	_, err = f.svc.GetOccurrence(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
