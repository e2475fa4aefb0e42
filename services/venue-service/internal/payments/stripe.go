// Package payments connects card payments to Stripe Checkout.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
)

type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// StripeGateway opens one-off Checkout Sessions for pending payments. The
// payment id travels in the session metadata and comes back on the webhook.
type StripeGateway struct {
	sessions   checkoutsession.Client
	currency   string
	successURL string
	cancelURL  string
}

var _ venue.CardGateway = (*StripeGateway)(nil)

// NewStripeGateway returns nil when no secret key is configured, which
// leaves card payments disabled.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, nil
	}
	if cfg.SuccessURL == "" || cfg.CancelURL == "" {
		return nil, errors.New("stripe checkout requires CHECKOUT_SUCCESS_URL and CHECKOUT_CANCEL_URL")
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyVND)
	}
	return &StripeGateway{
		sessions:   *NewSessionClient(cfg.SecretKey),
		currency:   currency,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}, nil
}

// NewSessionClient is a Checkout Session client bound to secretKey rather
// than the package-level stripe.Key.
func NewSessionClient(secretKey string) *checkoutsession.Client {
	return &checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req venue.CardCheckout) (venue.CardSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.PaymentID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataPaymentID: req.PaymentID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataPaymentID, req.PaymentID)
	params.AddMetadata(MetadataOccurrenceID, req.OccurrenceID)
	params.IdempotencyKey = stripe.String("checkout-" + req.PaymentID)

	sess, err := g.sessions.New(params)
	if err != nil {
		return venue.CardSession{}, fmt.Errorf("stripe checkout session: %w", err)
	}
	return venue.CardSession{ID: sess.ID, URL: sess.URL}, nil
}
