package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/payments"
)

// StripeWebhook settles card payments. The signature is the only
// authentication, so the route must stay reachable without other auth.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(h.stripe.Secret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "webhook_disabled", "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		badRequest(w, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		badRequest(w, "failed to read request body")
		return
	}

	evt, err := payments.ParseWebhook(body, sigHeader, h.stripe.Secret, h.stripe.Tolerance)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
			return
		}
		badRequest(w, err.Error())
		return
	}

	logger := httpx.LoggerFromContext(r.Context(), h.logger).With(
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evt.Type,
	)
	logger.Info("payment provider event received", "payment_id", evt.PaymentID)
	if !evt.Relevant() {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	settle := h.venue.ConfirmCardPayment
	if evt.Type == payments.EventSessionExpired {
		settle = h.venue.CancelCardPayment
	}
	p, err := settle(r.Context(), evt.ID, evt.PaymentID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Warn("payment provider event for unknown payment", "payment_id", evt.PaymentID)
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "payment_status": string(p.Status)})
}
