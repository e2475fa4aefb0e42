package venue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/cart"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/checkout"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/ledger"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/lifecycle"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/outbox"
)

// Estimate prices the occurrence as of now without changing anything.
// latePct <= 0 uses the configured late-fee percentage.
func (s *Service) Estimate(ctx context.Context, occurrenceID string, latePct int64) (checkout.Estimate, error) {
	agg, err := s.load(ctx, Target{OccurrenceID: occurrenceID})
	if err != nil {
		return checkout.Estimate{}, err
	}
	return s.estimate(agg, agg.Occurrence, agg.Usages, latePct, s.clock()), nil
}

// Ledger is Estimate netted against the settlement payments taken so far.
func (s *Service) Ledger(ctx context.Context, occurrenceID string, latePct int64) (ledger.Summary, error) {
	agg, err := s.load(ctx, Target{OccurrenceID: occurrenceID})
	if err != nil {
		return ledger.Summary{}, err
	}
	est := s.estimate(agg, agg.Occurrence, agg.Usages, latePct, s.clock())
	return ledger.Summarize(est, agg.Payments), nil
}

func (s *Service) ListOrderItems(ctx context.Context, occurrenceID string) ([]model.OrderItemLine, error) {
	agg, err := s.load(ctx, Target{OccurrenceID: occurrenceID})
	if err != nil {
		return nil, err
	}
	return cart.Active(agg.Lines), nil
}

// AddOrderItem sets the product's line to quantity at the current catalog
// price. Calling it twice with the same quantity leaves one line, not two.
func (s *Service) AddOrderItem(ctx context.Context, t Target, productID string, quantity int) ([]model.OrderItemLine, error) {
	return s.changeItem(ctx, cart.Add, t, productID, quantity)
}

// UpdateOrderItem sets the line's quantity keeping its price snapshot.
// Quantity 0 removes the line and returns its stock.
func (s *Service) UpdateOrderItem(ctx context.Context, t Target, productID string, quantity int) ([]model.OrderItemLine, error) {
	return s.changeItem(ctx, cart.Update, t, productID, quantity)
}

func (s *Service) changeItem(ctx context.Context, mode cart.Mode, t Target, productID string, quantity int) ([]model.OrderItemLine, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fmt.Errorf("%w: product id required", model.ErrInvalidInput)
	}
	product, err := s.store.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	change, err := cart.Plan(mode, agg.Occurrence, agg.Lines, product, quantity)
	if err != nil {
		return nil, err
	}
	if _, err := s.commit(ctx, agg, Mutation{Cart: &change}); err != nil {
		return nil, err
	}
	return cart.Apply(agg.Lines, change), nil
}

// StartService starts a metered rental on a checked-in occurrence.
func (s *Service) StartService(ctx context.Context, t Target, serviceID string, quantity int) (model.ServiceUsage, error) {
	if quantity <= 0 {
		return model.ServiceUsage{}, fmt.Errorf("%w: quantity must be positive", model.ErrInvalidInput)
	}
	agg, err := s.load(ctx, t)
	if err != nil {
		return model.ServiceUsage{}, err
	}
	if agg.Occurrence.Status != model.StatusCheckedIn {
		return model.ServiceUsage{}, fmt.Errorf("%w: services start only while checked in (status %s)", model.ErrInvalidState, agg.Occurrence.Status)
	}
	svc, err := s.store.Service(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		return model.ServiceUsage{}, err
	}
	if !svc.Active {
		return model.ServiceUsage{}, fmt.Errorf("%w: service %s is not active", model.ErrInvalidInput, svc.ID)
	}
	if !svc.HasStock(quantity) {
		return model.ServiceUsage{}, fmt.Errorf("%w: service %s has %d left", model.ErrInsufficientStock, svc.ID, *svc.StockQuantity)
	}
	usage := model.ServiceUsage{
		ID:               uuid.NewString(),
		OccurrenceID:     agg.Occurrence.ID,
		ServiceID:        svc.ID,
		ServiceName:      svc.Name,
		Quantity:         quantity,
		UnitPricePerHour: svc.PricePerHour,
		StartedAt:        s.clock(),
	}
	if _, err := s.commit(ctx, agg, Mutation{NewUsage: &usage}); err != nil {
		return model.ServiceUsage{}, err
	}
	return usage, nil
}

// ListServiceUsages returns the occurrence's usages, running and stopped, in
// start order.
func (s *Service) ListServiceUsages(ctx context.Context, occurrenceID string) ([]model.ServiceUsage, error) {
	agg, err := s.load(ctx, Target{OccurrenceID: occurrenceID})
	if err != nil {
		return nil, err
	}
	usages := slices.Clone(agg.Usages)
	slices.SortStableFunc(usages, func(a, b model.ServiceUsage) int { return a.StartedAt.Compare(b.StartedAt) })
	return usages, nil
}

// RemoveServiceUsage deletes a usage entered by mistake. Nothing is billed
// for it and its quantity goes back to the service's stock.
func (s *Service) RemoveServiceUsage(ctx context.Context, t Target, usageID string) error {
	agg, err := s.load(ctx, t)
	if err != nil {
		return err
	}
	if agg.Occurrence.Status != model.StatusCheckedIn {
		return fmt.Errorf("%w: services are removed only while checked in (status %s)", model.ErrInvalidState, agg.Occurrence.Status)
	}
	i := slices.IndexFunc(agg.Usages, func(u model.ServiceUsage) bool { return u.ID == usageID })
	if i < 0 {
		return fmt.Errorf("service usage %s: %w", usageID, model.ErrNotFound)
	}
	usage := agg.Usages[i]
	if _, err := s.commit(ctx, agg, Mutation{RemoveUsage: &usage}); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "service usage removed",
		"occurrence_id", agg.Occurrence.ID, "usage_id", usage.ID, "service_id", usage.ServiceID, "quantity", usage.Quantity)
	return nil
}

func (s *Service) StopService(ctx context.Context, t Target, usageID string) (model.ServiceUsage, error) {
	agg, err := s.load(ctx, t)
	if err != nil {
		return model.ServiceUsage{}, err
	}
	i := slices.IndexFunc(agg.Usages, func(u model.ServiceUsage) bool { return u.ID == usageID })
	if i < 0 {
		return model.ServiceUsage{}, fmt.Errorf("service usage %s: %w", usageID, model.ErrNotFound)
	}
	usage := agg.Usages[i]
	if !usage.Open() {
		return model.ServiceUsage{}, fmt.Errorf("%w: service usage already stopped", model.ErrInvalidState)
	}
	now := s.clock()
	usage.EndedAt = &now
	if _, err := s.commit(ctx, agg, Mutation{CloseUsages: []model.ServiceUsage{usage}}); err != nil {
		return model.ServiceUsage{}, err
	}
	return usage, nil
}

type PaymentRequest struct {
	// Ref is an occurrence id or the id of an order written at finalize.
	Ref    string
	Amount int64
	Method string
	Note   string
}

type PaymentResult struct {
	Payment model.Payment
	Ledger  ledger.Summary
}

func payable(o model.Occurrence) error {
	if o.Status == model.StatusCancelled || o.Status == model.StatusNoShow {
		return fmt.Errorf("%w: cannot take payment on a %s occurrence", model.ErrInvalidState, o.Status)
	}
	return nil
}

// RecordPayment records a Paid settlement payment at the counter and returns
// the balance left afterwards.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	if err := ledger.ValidateAmount(req.Amount); err != nil {
		return PaymentResult{}, err
	}
	occurrenceID, err := s.store.ResolvePaymentRef(ctx, strings.TrimSpace(req.Ref))
	if err != nil {
		return PaymentResult{}, err
	}
	agg, err := s.load(ctx, Target{OccurrenceID: occurrenceID})
	if err != nil {
		return PaymentResult{}, err
	}
	if err := payable(agg.Occurrence); err != nil {
		return PaymentResult{}, err
	}

	now := s.clock()
	p := model.Payment{
		ID:           uuid.NewString(),
		BookingID:    agg.Occurrence.BookingID,
		OccurrenceID: agg.Occurrence.ID,
		Kind:         model.PaymentSettlement,
		Amount:       req.Amount,
		Method:       methodOrDefault(req.Method),
		Status:       model.PaymentPaid,
		Note:         strings.TrimSpace(req.Note),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	evt, err := paymentEvent(p)
	if err != nil {
		return PaymentResult{}, err
	}
	if _, err := s.commit(ctx, agg, Mutation{Payment: &p, Events: []outbox.Event{evt}}); err != nil {
		return PaymentResult{}, err
	}

	payments := append(slices.Clone(agg.Payments), p)
	est := s.estimate(agg, agg.Occurrence, agg.Usages, 0, now)
	return PaymentResult{Payment: p, Ledger: ledger.Summarize(est, payments)}, nil
}

type CardPaymentResult struct {
	Payment     model.Payment
	CheckoutURL string
}

// StartCardPayment opens a hosted card checkout for amount, or for the whole
// balance when amount is zero. The payment stays Pending until the gateway
// reports back through ConfirmCardPayment or CancelCardPayment.
func (s *Service) StartCardPayment(ctx context.Context, t Target, amount int64) (CardPaymentResult, error) {
	if s.cards == nil {
		return CardPaymentResult{}, ErrCardsDisabled
	}
	if amount < 0 {
		return CardPaymentResult{}, ledger.ValidateAmount(amount)
	}
	agg, err := s.load(ctx, t)
	if err != nil {
		return CardPaymentResult{}, err
	}
	if err := payable(agg.Occurrence); err != nil {
		return CardPaymentResult{}, err
	}
	now := s.clock()
	if amount == 0 {
		est := s.estimate(agg, agg.Occurrence, agg.Usages, 0, now)
		amount = ledger.Summarize(est, agg.Payments).Balance
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return CardPaymentResult{}, err
	}

	p := model.Payment{
		ID:           uuid.NewString(),
		BookingID:    agg.Occurrence.BookingID,
		OccurrenceID: agg.Occurrence.ID,
		Kind:         model.PaymentSettlement,
		Amount:       amount,
		Method:       "card",
		Status:       model.PaymentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.commit(ctx, agg, Mutation{Payment: &p}); err != nil {
		return CardPaymentResult{}, err
	}

	session, err := s.cards.CreateCheckout(ctx, CardCheckout{
		PaymentID:    p.ID,
		OccurrenceID: p.OccurrenceID,
		Description:  fmt.Sprintf("Court %s %s", agg.Occurrence.CourtID, agg.Occurrence.StartsAt.Format("2006-01-02 15:04")),
		Amount:       amount,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "card checkout failed", "payment_id", p.ID, "err", err)
		if _, cerr := s.settleCard(ctx, p.ID, "", model.PaymentCancelled); cerr != nil {
			s.logger.ErrorContext(ctx, "failed to cancel pending card payment", "payment_id", p.ID, "err", cerr)
		}
		return CardPaymentResult{}, fmt.Errorf("create card checkout: %w", err)
	}
	if err := s.store.SetPaymentProviderRef(ctx, p.ID, session.ID); err != nil {
		return CardPaymentResult{}, err
	}
	p.ProviderRef = session.ID
	return CardPaymentResult{Payment: p, CheckoutURL: session.URL}, nil
}

// ErrCardsDisabled is returned by StartCardPayment when no card gateway is
// configured.
var ErrCardsDisabled = errors.New("card payments are not configured")

// ConfirmCardPayment marks a pending card payment Paid. eventID is the
// gateway's event id; a replayed event is a no-op.
func (s *Service) ConfirmCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error) {
	return s.settleCard(ctx, paymentID, eventID, model.PaymentPaid)
}

// CancelCardPayment marks a pending card payment Cancelled.
func (s *Service) CancelCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error) {
	return s.settleCard(ctx, paymentID, eventID, model.PaymentCancelled)
}

func (s *Service) settleCard(ctx context.Context, paymentID, eventID string, status model.PaymentStatus) (model.Payment, error) {
	p, err := s.store.Payment(ctx, paymentID)
	if err != nil {
		return model.Payment{}, err
	}
	if p.Status != model.PaymentPending {
		// Already resolved by an earlier delivery.
		return p, nil
	}
	agg, err := s.load(ctx, Target{OccurrenceID: p.OccurrenceID})
	if err != nil {
		return model.Payment{}, err
	}
	p.Status = status
	p.UpdatedAt = s.clock()
	m := Mutation{Payment: &p, ProviderEventID: eventID}
	if status == model.PaymentPaid {
		evt, err := paymentEvent(p)
		if err != nil {
			return model.Payment{}, err
		}
		m.Events = []outbox.Event{evt}
	}
	if _, err := s.commit(ctx, agg, m); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			return s.store.Payment(ctx, paymentID)
		}
		return model.Payment{}, err
	}
	return p, nil
}

type FinalizeRequest struct {
	Target
	AllowPartial   bool
	LatePercentage int64
	Note           string
}

type FinalizeResult struct {
	Occurrence model.Occurrence
	Order      model.Order
	Ledger     ledger.Summary
}

// Finalize checks the occurrence out if it is still checked in, prices it and
// settles it. Unless AllowPartial is set the balance must already be zero;
// otherwise it fails with ErrOutstandingBalance and nothing is written.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error) {
	agg, err := s.load(ctx, req.Target)
	if err != nil {
		return FinalizeResult{}, err
	}
	now := s.clock()
	o := agg.Occurrence
	usages := agg.Usages

	var events []outbox.Event
	var closed []model.ServiceUsage
	if o.Status == model.StatusCheckedIn {
		if o, closed, err = lifecycle.CheckOut(o, usages, now); err != nil {
			return FinalizeResult{}, err
		}
		usages = mergeUsages(usages, closed)
		evt, err := statusEvent(o, map[string]any{"closed_services": len(closed)})
		if err != nil {
			return FinalizeResult{}, err
		}
		events = append(events, evt)
	}

	est := s.estimate(agg, o, usages, req.LatePercentage, now)
	summary := ledger.Summarize(est, agg.Payments)
	if err := ledger.CheckFinalize(summary, req.AllowPartial); err != nil {
		return FinalizeResult{}, err
	}
	if o, err = lifecycle.Settle(o, now); err != nil {
		return FinalizeResult{}, err
	}

	order := model.Order{
		ID:                uuid.NewString(),
		OccurrenceID:      o.ID,
		BookingID:         o.BookingID,
		CustomerID:        o.CustomerID,
		CourtTotal:        est.CourtFee,
		CourtPaid:         est.CourtPaid,
		CourtRemaining:    est.CourtRemaining,
		ItemsSubtotal:     est.ItemsSubtotal,
		ServicesSubtotal:  est.ServicesSubtotal,
		LateFeePercentage: est.LatePercentage,
		LateFee:           est.LateFeeSurcharge,
		OverdueMinutes:    est.OverdueMinutes,
		Total:             est.Total,
		Paid:              summary.Paid,
		Partial:           !summary.Settled(),
		Note:              strings.TrimSpace(req.Note),
		CreatedAt:         now,
	}
	evt, err := finalizedEvent(o, order)
	if err != nil {
		return FinalizeResult{}, err
	}
	events = append(events, evt)

	committed, err := s.commit(ctx, agg, Mutation{
		Occurrence:  &o,
		CloseUsages: closed,
		Order:       &order,
		Events:      events,
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	s.logger.InfoContext(ctx, "checkout finalized",
		"occurrence_id", o.ID, "order_id", order.ID, "total", order.Total, "paid", order.Paid, "partial", order.Partial)
	return FinalizeResult{Occurrence: committed, Order: order, Ledger: summary}, nil
}

func mergeUsages(usages, closed []model.ServiceUsage) []model.ServiceUsage {
	out := slices.Clone(usages)
	for _, c := range closed {
		if i := slices.IndexFunc(out, func(u model.ServiceUsage) bool { return u.ID == c.ID }); i >= 0 {
			out[i] = c
		}
	}
	return out
}
