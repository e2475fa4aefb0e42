// Package reconcile settles card payments whose Stripe webhook never arrived.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/courtdesk/libs/otel"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/stripe/stripe-go/v79"
	"go.opentelemetry.io/otel/attribute"
)

// SessionGetter is the part of the Checkout Session client the reconciler
// uses. *checkoutsession.Client satisfies it.
type SessionGetter interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type PendingPayments interface {
	PendingCardPayments(ctx context.Context, cutoff time.Time, limit int) ([]model.Payment, error)
}

type Settler interface {
	ConfirmCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error)
	CancelCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error)
}

// Locker hands out a cluster-wide lock; *db.Pool satisfies it with a
// Postgres advisory lock.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

type CardConfig struct {
	Interval time.Duration
	// PendingAfter is how long a payment may stay Pending before it is
	// checked against Stripe.
	PendingAfter    time.Duration
	BatchSize       int
	AdvisoryLockKey int64
}

// CardReconciler polls Stripe for card payments that stayed Pending and
// confirms or cancels them the way the webhook would have.
type CardReconciler struct {
	locker   Locker
	payments PendingPayments
	settler  Settler
	sessions SessionGetter
	logger   *slog.Logger
	cfg      CardConfig
	now      func() time.Time
}

func NewCardReconciler(locker Locker, payments PendingPayments, settler Settler, sessions SessionGetter, logger *slog.Logger, cfg CardConfig) *CardReconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.PendingAfter <= 0 {
		cfg.PendingAfter = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.AdvisoryLockKey == 0 {
		cfg.AdvisoryLockKey = 4242101
	}
	return &CardReconciler{
		locker:   locker,
		payments: payments,
		settler:  settler,
		sessions: sessions,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run blocks until ctx is done. Only the instance holding the advisory lock
// reconciles; the others keep retrying in case the leader goes away.
func (r *CardReconciler) Run(ctx context.Context) {
	var release func()
	for release == nil {
		unlock, ok, err := r.locker.TryAdvisoryLock(ctx, r.cfg.AdvisoryLockKey)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("card reconcile: failed to acquire advisory lock", "err", err)
			if !sleep(ctx, 5*time.Second) {
				return
			}
		case !ok:
			r.logger.Info("card reconcile: advisory lock held by another instance", "lock_key", r.cfg.AdvisoryLockKey)
			if !sleep(ctx, 30*time.Second) {
				return
			}
		default:
			release = unlock
		}
	}
	defer release()
	r.logger.Info("card reconcile: advisory lock acquired", "lock_key", r.cfg.AdvisoryLockKey)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	// Catch up straight away after downtime.
	r.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *CardReconciler) runOnce(ctx context.Context) {
	res, err := r.ReconcileOnce(ctx)
	if err != nil {
		r.logger.Error("card reconcile: batch failed", "err", err)
		return
	}
	if res != (Result{}) {
		r.logger.Info("card reconcile", "confirmed", res.Confirmed, "cancelled", res.Cancelled, "still_open", res.StillOpen, "failed", res.Failed)
	}
}

type Result struct {
	Confirmed int
	Cancelled int
	StillOpen int
	Failed    int
}

// ReconcileOnce checks one batch of stale pending card payments. A failure
// on one payment is logged and counted; it does not stop the batch.
func (r *CardReconciler) ReconcileOnce(ctx context.Context) (Result, error) {
	ctx, span := otelx.Tracer("reconcile").Start(ctx, "card.reconcile")
	defer span.End()

	stale, err := r.payments.PendingCardPayments(ctx, r.now().Add(-r.cfg.PendingAfter), r.cfg.BatchSize)
	if err != nil {
		return Result{}, err
	}
	var res Result
	for _, p := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome, err := r.reconcile(ctx, p)
		switch {
		case err != nil:
			res.Failed++
			r.logger.Warn("card reconcile: payment not settled", "payment_id", p.ID, "session_id", p.ProviderRef, "err", err)
		case outcome == model.PaymentPaid:
			res.Confirmed++
		case outcome == model.PaymentCancelled:
			res.Cancelled++
		default:
			res.StillOpen++
		}
	}
	span.SetAttributes(
		attribute.Int("reconcile.checked", len(stale)),
		attribute.Int("reconcile.confirmed", res.Confirmed),
		attribute.Int("reconcile.cancelled", res.Cancelled),
	)
	return res, nil
}

var errAmountMismatch = errors.New("checkout session amount does not match payment")

// reconcile returns the status it moved p to, or Pending when the session is
// still open.
func (r *CardReconciler) reconcile(ctx context.Context, p model.Payment) (model.PaymentStatus, error) {
	sessionID := strings.TrimSpace(p.ProviderRef)
	if sessionID == "" {
		// The checkout was never opened; nobody can pay it.
		_, err := r.settler.CancelCardPayment(ctx, "reconcile:"+p.ID, p.ID)
		return model.PaymentCancelled, err
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := r.sessions.Get(sessionID, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == http.StatusNotFound {
			_, err := r.settler.CancelCardPayment(ctx, "reconcile:"+sessionID, p.ID)
			return model.PaymentCancelled, err
		}
		return model.PaymentPending, err
	}

	eventID := "reconcile:" + sess.ID
	switch {
	case sess.Status == stripe.CheckoutSessionStatusComplete &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid:
		if sess.AmountTotal != 0 && sess.AmountTotal != p.Amount {
			return model.PaymentPending, errAmountMismatch
		}
		_, err := r.settler.ConfirmCardPayment(ctx, eventID, p.ID)
		return model.PaymentPaid, err
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		_, err := r.settler.CancelCardPayment(ctx, eventID, p.ID)
		return model.PaymentCancelled, err
	default:
		return model.PaymentPending, nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
