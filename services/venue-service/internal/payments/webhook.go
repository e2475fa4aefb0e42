package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	MetadataPaymentID    = "payment_id"
	MetadataOccurrenceID = "occurrence_id"

	EventSessionCompleted = "checkout.session.completed"
	EventSessionExpired   = "checkout.session.expired"
)

var ErrInvalidSignature = errors.New("invalid stripe signature")

// WebhookEvent is the part of a Stripe event the venue acts on.
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
	PaymentID string
	Created   time.Time
}

// Relevant reports whether the event settles or abandons a card payment.
func (e WebhookEvent) Relevant() bool {
	return (e.Type == EventSessionCompleted || e.Type == EventSessionExpired) && e.PaymentID != ""
}

// ParseWebhook verifies the Stripe-Signature header and extracts the payment
// id from checkout session events. Other event types parse without a
// PaymentID.
func ParseWebhook(body []byte, sigHeader, secret string, tolerance time.Duration) (WebhookEvent, error) {
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := WebhookEvent{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: time.Unix(evt.Created, 0).UTC(),
	}
	if out.Type != EventSessionCompleted && out.Type != EventSessionExpired {
		return out, nil
	}
	if evt.Data == nil {
		return out, errors.New("stripe event has no data")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		return out, fmt.Errorf("decode checkout session: %w", err)
	}
	out.SessionID = session.ID
	out.PaymentID = strings.TrimSpace(session.Metadata[MetadataPaymentID])
	if out.PaymentID == "" {
		out.PaymentID = strings.TrimSpace(session.ClientReferenceID)
	}
	return out, nil
}
