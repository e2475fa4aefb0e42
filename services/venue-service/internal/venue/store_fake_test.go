package venue

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/pricing"
)

// memStore is a mutex-serialized Store with the same version and stock
// guarantees as the Postgres repository.
type memStore struct {
	mu             sync.Mutex
	courts         map[string][]pricing.Rule
	bookings       map[string]model.Booking
	occurrences    map[string]model.Occurrence
	lines          map[string]map[string]model.OrderItemLine
	usages         map[string][]model.ServiceUsage
	payments       map[string]model.Payment
	orders         map[string]model.Order
	products       map[string]model.Product
	services       map[string]model.Service
	providerEvents map[string]bool
	events         []outbox.Event

	// beforeCommit, when set, runs inside Commit before the lock is taken.
	beforeCommit func(Mutation)
}

func newMemStore() *memStore {
	return &memStore{
		courts:         map[string][]pricing.Rule{},
		bookings:       map[string]model.Booking{},
		occurrences:    map[string]model.Occurrence{},
		lines:          map[string]map[string]model.OrderItemLine{},
		usages:         map[string][]model.ServiceUsage{},
		payments:       map[string]model.Payment{},
		orders:         map[string]model.Order{},
		products:       map[string]model.Product{},
		services:       map[string]model.Service{},
		providerEvents: map[string]bool{},
	}
}

func (m *memStore) PricingRules(_ context.Context, courtID string) ([]pricing.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.courts[courtID]), nil
}

func (m *memStore) CourtExists(_ context.Context, courtID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.courts[courtID]
	return ok, nil
}

func (m *memStore) overlapsLocked(o model.Occurrence) error {
	for _, other := range m.occurrences {
		if other.ID != o.ID && other.Status.Blocks() && o.Overlaps(other) {
			return fmt.Errorf("%w: %s", model.ErrOverlapConflict, other.ID)
		}
	}
	return nil
}

func (m *memStore) CreateBooking(_ context.Context, b model.Booking, occurrences []model.Occurrence, events []outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range occurrences {
		if err := m.overlapsLocked(o); err != nil {
			return err
		}
	}
	m.bookings[b.ID] = b
	for _, o := range occurrences {
		m.occurrences[o.ID] = o
	}
	m.events = append(m.events, events...)
	return nil
}

func (m *memStore) Booking(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, fmt.Errorf("booking %s: %w", id, model.ErrNotFound)
	}
	return b, nil
}

func (m *memStore) BookingCourtTotal(_ context.Context, bookingID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, o := range m.occurrences {
		if o.BookingID == bookingID {
			total += o.CourtFee
		}
	}
	return total, nil
}

func (m *memStore) InsertDeposit(_ context.Context, p model.Payment, events []outbox.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
	m.events = append(m.events, events...)
	for id, o := range m.occurrences {
		if o.BookingID == p.BookingID {
			o.Version++
			m.occurrences[id] = o
		}
	}
	return nil
}

func (m *memStore) Load(_ context.Context, occurrenceID string) (Aggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.occurrences[occurrenceID]
	if !ok {
		return Aggregate{}, fmt.Errorf("occurrence %s: %w", occurrenceID, model.ErrNotFound)
	}
	agg := Aggregate{Occurrence: o, Usages: slices.Clone(m.usages[o.ID])}
	for _, l := range m.lines[o.ID] {
		agg.Lines = append(agg.Lines, l)
	}
	for _, p := range m.payments {
		switch {
		case p.Kind == model.PaymentSettlement && p.OccurrenceID == o.ID:
			agg.Payments = append(agg.Payments, p)
		case p.Kind == model.PaymentDeposit && p.BookingID == o.BookingID && p.Status == model.PaymentPaid:
			agg.BookingDeposits += p.Amount
		}
	}
	for _, other := range m.occurrences {
		if other.BookingID == o.BookingID {
			agg.BookingOccurrences++
		}
	}
	return agg, nil
}

func (m *memStore) Occurrence(_ context.Context, id string) (model.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.occurrences[id]
	if !ok {
		return model.Occurrence{}, fmt.Errorf("occurrence %s: %w", id, model.ErrNotFound)
	}
	return o, nil
}

func (m *memStore) ListOccurrences(_ context.Context, f OccurrenceFilter) ([]model.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Occurrence
	for _, o := range m.occurrences {
		if f.CourtID != "" && o.CourtID != f.CourtID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if !f.EndsBefore.IsZero() && !o.EndsAt.Before(f.EndsBefore) {
			continue
		}
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b model.Occurrence) int { return a.StartsAt.Compare(b.StartsAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) CourtOccurrences(_ context.Context, courtID string, from, to time.Time) ([]model.Occurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Occurrence
	for _, o := range m.occurrences {
		if o.CourtID == courtID && o.StartsAt.Before(to) && from.Before(o.EndsAt) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) Product(_ context.Context, id string) (model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return model.Product{}, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (m *memStore) Service(_ context.Context, id string) (model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[id]
	if !ok {
		return model.Service{}, fmt.Errorf("service %s: %w", id, model.ErrNotFound)
	}
	return s, nil
}

func (m *memStore) Payment(_ context.Context, id string) (model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return model.Payment{}, fmt.Errorf("payment %s: %w", id, model.ErrNotFound)
	}
	return p, nil
}

func (m *memStore) ResolvePaymentRef(_ context.Context, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.occurrences[ref]; ok {
		return ref, nil
	}
	if o, ok := m.orders[ref]; ok {
		return o.OccurrenceID, nil
	}
	return "", fmt.Errorf("payment reference %s: %w", ref, model.ErrNotFound)
}

func (m *memStore) SetPaymentProviderRef(_ context.Context, paymentID, providerRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment %s: %w", paymentID, model.ErrNotFound)
	}
	p.ProviderRef = providerRef
	m.payments[paymentID] = p
	return nil
}

func (m *memStore) Commit(_ context.Context, mut Mutation) (model.Occurrence, error) {
	if m.beforeCommit != nil {
		m.beforeCommit(mut)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.occurrences[mut.OccurrenceID]
	if !ok {
		return model.Occurrence{}, model.ErrNotFound
	}
	if cur.Version != mut.ExpectedVersion {
		return model.Occurrence{}, model.ErrConcurrentModification
	}
	if mut.ProviderEventID != "" && m.providerEvents[mut.ProviderEventID] {
		return model.Occurrence{}, ErrDuplicateEvent
	}
	next := cur
	if mut.Occurrence != nil {
		next = *mut.Occurrence
	}
	if mut.GuardOverlap {
		if err := m.overlapsLocked(next); err != nil {
			return model.Occurrence{}, err
		}
	}
	if u := mut.NewUsage; u != nil {
		if svc := m.services[u.ServiceID]; !svc.HasStock(u.Quantity) {
			return model.Occurrence{}, model.ErrInsufficientStock
		}
	}
	if c := mut.Cart; c != nil {
		p := m.products[c.ProductID]
		if c.StockDelta > p.AvailableStock {
			return model.Occurrence{}, model.ErrInsufficientStock
		}
		p.AvailableStock -= c.StockDelta
		m.products[c.ProductID] = p
		if m.lines[c.OccurrenceID] == nil {
			m.lines[c.OccurrenceID] = map[string]model.OrderItemLine{}
		}
		if c.Removes() {
			delete(m.lines[c.OccurrenceID], c.ProductID)
		} else {
			m.lines[c.OccurrenceID][c.ProductID] = c.Line()
		}
	}
	usages := m.usages[next.ID]
	for _, closed := range mut.CloseUsages {
		for i := range usages {
			if usages[i].ID == closed.ID {
				usages[i] = closed
			}
		}
	}
	if u := mut.NewUsage; u != nil {
		usages = append(usages, *u)
		m.moveServiceStockLocked(u.ServiceID, -u.Quantity)
	}
	if u := mut.RemoveUsage; u != nil {
		usages = slices.DeleteFunc(usages, func(x model.ServiceUsage) bool { return x.ID == u.ID })
		m.moveServiceStockLocked(u.ServiceID, u.Quantity)
	}
	m.usages[next.ID] = usages
	if mut.ProviderEventID != "" {
		m.providerEvents[mut.ProviderEventID] = true
	}
	if mut.Payment != nil {
		m.payments[mut.Payment.ID] = *mut.Payment
	}
	if mut.Order != nil {
		m.orders[mut.Order.ID] = *mut.Order
		for id, p := range m.payments {
			if p.OccurrenceID == next.ID && p.Kind == model.PaymentSettlement && p.OrderID == "" {
				p.OrderID = mut.Order.ID
				m.payments[id] = p
			}
		}
	}
	m.events = append(m.events, mut.Events...)

	next.Version = cur.Version + 1
	m.occurrences[next.ID] = next
	return next, nil
}

func (m *memStore) moveServiceStockLocked(serviceID string, delta int) {
	svc, ok := m.services[serviceID]
	if !ok || svc.StockQuantity == nil {
		return
	}
	n := *svc.StockQuantity + delta
	svc.StockQuantity = &n
	m.services[serviceID] = svc
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}
