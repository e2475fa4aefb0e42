package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/checkout"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/ledger"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
)

// Venue is the set of venue operations the HTTP API exposes.
type Venue interface {
	CreateBooking(ctx context.Context, req venue.BookingRequest) (venue.BookingResult, error)
	RecordDeposit(ctx context.Context, req venue.DepositRequest) (model.Payment, error)

	GetOccurrence(ctx context.Context, id string) (model.Occurrence, error)
	ListOccurrences(ctx context.Context, f venue.OccurrenceFilter) ([]model.Occurrence, error)
	CheckIn(ctx context.Context, t venue.Target) (model.Occurrence, error)
	CheckOut(ctx context.Context, t venue.Target) (model.Occurrence, error)
	MarkNoShow(ctx context.Context, t venue.Target) (model.Occurrence, error)
	Cancel(ctx context.Context, t venue.Target, reason string) (venue.CancelResult, error)

	Estimate(ctx context.Context, occurrenceID string, latePct int64) (checkout.Estimate, error)
	Ledger(ctx context.Context, occurrenceID string, latePct int64) (ledger.Summary, error)
	ListOrderItems(ctx context.Context, occurrenceID string) ([]model.OrderItemLine, error)
	AddOrderItem(ctx context.Context, t venue.Target, productID string, quantity int) ([]model.OrderItemLine, error)
	UpdateOrderItem(ctx context.Context, t venue.Target, productID string, quantity int) ([]model.OrderItemLine, error)
	StartService(ctx context.Context, t venue.Target, serviceID string, quantity int) (model.ServiceUsage, error)
	StopService(ctx context.Context, t venue.Target, usageID string) (model.ServiceUsage, error)
	ListServiceUsages(ctx context.Context, occurrenceID string) ([]model.ServiceUsage, error)
	RemoveServiceUsage(ctx context.Context, t venue.Target, usageID string) error

	RecordPayment(ctx context.Context, req venue.PaymentRequest) (venue.PaymentResult, error)
	StartCardPayment(ctx context.Context, t venue.Target, amount int64) (venue.CardPaymentResult, error)
	ConfirmCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error)
	CancelCardPayment(ctx context.Context, eventID, paymentID string) (model.Payment, error)
	Finalize(ctx context.Context, req venue.FinalizeRequest) (venue.FinalizeResult, error)
}

type StripeWebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

type Handler struct {
	venue  Venue
	logger *slog.Logger
	stripe StripeWebhookConfig
}

func New(v Venue, logger *slog.Logger, stripeCfg StripeWebhookConfig) *Handler {
	if stripeCfg.Tolerance <= 0 {
		stripeCfg.Tolerance = 5 * time.Minute
	}
	return &Handler{venue: v, logger: logger, stripe: stripeCfg}
}

// Register mounts the API on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/bookings", h.CreateBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/deposits", h.RecordDeposit)

	mux.HandleFunc("GET /api/v1/occurrences", h.ListOccurrences)
	mux.HandleFunc("GET /api/v1/occurrences/{id}", h.GetOccurrence)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/check-in", h.CheckIn)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/check-out", h.CheckOut)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/no-show", h.MarkNoShow)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/cancel", h.Cancel)

	mux.HandleFunc("GET /api/v1/occurrences/{id}/estimate", h.Estimate)
	mux.HandleFunc("GET /api/v1/occurrences/{id}/ledger", h.Ledger)
	mux.HandleFunc("GET /api/v1/occurrences/{id}/items", h.ListItems)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/items", h.AddItem)
	mux.HandleFunc("PUT /api/v1/occurrences/{id}/items/{product_id}", h.UpdateItem)
	mux.HandleFunc("GET /api/v1/occurrences/{id}/services", h.ListServices)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/services", h.StartService)
	mux.HandleFunc("DELETE /api/v1/occurrences/{id}/services/{usage_id}", h.RemoveService)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/services/{usage_id}/stop", h.StopService)

	mux.HandleFunc("POST /api/v1/payments", h.RecordPayment)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/card-payments", h.StartCardPayment)
	mux.HandleFunc("POST /api/v1/occurrences/{id}/finalize", h.Finalize)
	mux.HandleFunc("POST /api/v1/webhooks/stripe", h.StripeWebhook)
}

type errorKind struct {
	err    error
	status int
	code   string
}

var errorKinds = []errorKind{
	{model.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{model.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{model.ErrTooEarly, http.StatusConflict, "too_early"},
	{model.ErrOverlapConflict, http.StatusConflict, "overlap_conflict"},
	{model.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{model.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{model.ErrOutstandingBalance, http.StatusPaymentRequired, "outstanding_balance"},
	{model.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{model.ErrNotFound, http.StatusNotFound, "not_found"},
	{model.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{venue.ErrCardsDisabled, http.StatusServiceUnavailable, "card_payments_disabled"},
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			httpx.WriteJSON(w, k.status, httpx.ErrorBody{
				Error:     k.code,
				Message:   err.Error(),
				Retryable: k.err == model.ErrConcurrentModification,
			})
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		httpx.WriteError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	}
	httpx.LoggerFromContext(r.Context(), h.logger).Error("request failed", "err", err, "path", r.URL.Path)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, "invalid_input", msg)
}

// target reads the occurrence id from the path and the expected version from
// an optional If-Match header.
func target(r *http.Request) (venue.Target, error) {
	t := venue.Target{OccurrenceID: strings.TrimSpace(r.PathValue("id"))}
	raw := strings.Trim(strings.TrimSpace(r.Header.Get("If-Match")), `"`)
	if raw == "" {
		return t, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return t, errors.New("If-Match must be a positive occurrence version")
	}
	t.Version = v
	return t, nil
}

// setETag hands the occurrence version back so the client can send it as
// If-Match on its next write.
func setETag(w http.ResponseWriter, version int64) {
	w.Header().Set("ETag", `"`+strconv.FormatInt(version, 10)+`"`)
}

func writeOccurrence(w http.ResponseWriter, o model.Occurrence) {
	setETag(w, o.Version)
	httpx.WriteJSON(w, http.StatusOK, toOccurrence(o))
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func optionalTime(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := parseDate(raw)
	if err != nil {
		return time.Time{}, errors.New("invalid " + key)
	}
	return t, nil
}
