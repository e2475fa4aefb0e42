// Command stripe-webhook-sim signs a Checkout Session event with the webhook
// secret and posts it to a running venue service, so card settlement can be
// exercised without the Stripe CLI.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/courtdesk/libs/config"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	eventCompleted = "checkout.session.completed"
	eventExpired   = "checkout.session.expired"
)

func main() {
	var (
		baseURL    = flag.String("base-url", config.String("BASE_URL", "http://localhost:8085"), "venue service base url")
		evtType    = flag.String("type", config.String("STRIPE_EVENT_TYPE", eventCompleted), "checkout.session.completed or checkout.session.expired")
		paymentID  = flag.String("payment-id", config.String("PAYMENT_ID", ""), "pending card payment id")
		occurrence = flag.String("occurrence-id", config.String("OCCURRENCE_ID", ""), "occurrence id metadata")
		secret     = flag.String("secret", config.String("STRIPE_WEBHOOK_SECRET", ""), "stripe webhook signing secret (whsec_...)")
	)
	flag.Parse()

	if strings.TrimSpace(*secret) == "" {
		fatal("STRIPE_WEBHOOK_SECRET is required")
	}
	if strings.TrimSpace(*paymentID) == "" {
		fatal("PAYMENT_ID is required")
	}

	now := time.Now().UTC()
	payload, err := buildEventJSON(fmt.Sprintf("evt_test_%d", now.UnixNano()), *evtType, now, *paymentID, *occurrence)
	if err != nil {
		fatal(err.Error())
	}

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    *secret,
		Timestamp: now,
		Scheme:    "v1",
	})

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(*baseURL, "/")+"/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signed.Header)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	fmt.Printf("status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}

func buildEventJSON(eventID, eventType string, t time.Time, paymentID, occurrenceID string) ([]byte, error) {
	status := "complete"
	switch eventType {
	case eventCompleted:
	case eventExpired:
		status = "expired"
	default:
		return nil, fmt.Errorf("unsupported event type: %s", eventType)
	}
	return json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"created":     t.Unix(),
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_test_" + paymentID,
				"object":              "checkout.session",
				"status":              status,
				"client_reference_id": paymentID,
				"metadata": map[string]any{
					"payment_id":    paymentID,
					"occurrence_id": occurrenceID,
				},
			},
		},
	})
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
