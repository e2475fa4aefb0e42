package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
)

func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	pct, err := queryInt64(r, "late_percentage")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	est, err := h.venue.Estimate(r.Context(), strings.TrimSpace(r.PathValue("id")), pct)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, est)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	pct, err := queryInt64(r, "late_percentage")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	summary, err := h.venue.Ledger(r.Context(), strings.TrimSpace(r.PathValue("id")), pct)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	lines, err := h.venue.ListOrderItems(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toItems(lines)})
}

type itemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Quantity == nil {
		badRequest(w, "quantity required")
		return
	}
	lines, err := h.venue.AddOrderItem(r.Context(), t, req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toItems(lines)})
}

// UpdateItem sets the line quantity. Quantity 0 removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req itemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Quantity == nil {
		badRequest(w, "quantity required")
		return
	}
	lines, err := h.venue.UpdateOrderItem(r.Context(), t, r.PathValue("product_id"), *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toItems(lines)})
}

type startServiceRequest struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) StartService(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req startServiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	u, err := h.venue.StartService(r.Context(), t, req.ServiceID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toUsage(u))
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	usages, err := h.venue.ListServiceUsages(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]usageResponse, 0, len(usages))
	for _, u := range usages {
		out = append(out, toUsage(u))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": out})
}

// RemoveService deletes a usage entered by mistake and restocks it.
func (h *Handler) RemoveService(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.venue.RemoveServiceUsage(r.Context(), t, strings.TrimSpace(r.PathValue("usage_id"))); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) StopService(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	u, err := h.venue.StopService(r.Context(), t, strings.TrimSpace(r.PathValue("usage_id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUsage(u))
}

type paymentRequest struct {
	// ReferenceID is an occurrence id or an order id.
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	Method      string `json:"method"`
	Note        string `json:"note"`
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.ReferenceID) == "" {
		badRequest(w, "reference_id required")
		return
	}
	res, err := h.venue.RecordPayment(r.Context(), venue.PaymentRequest{
		Ref:    req.ReferenceID,
		Amount: req.Amount,
		Method: req.Method,
		Note:   req.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"payment": toPayment(res.Payment),
		"ledger":  res.Ledger,
	})
}

type cardPaymentRequest struct {
	Amount int64 `json:"amount"`
}

// StartCardPayment opens a hosted card checkout. Amount 0 charges the whole
// outstanding balance.
func (h *Handler) StartCardPayment(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req cardPaymentRequest
	if err := httpx.DecodeOptionalJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.venue.StartCardPayment(r.Context(), t, req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"payment":      toPayment(res.Payment),
		"checkout_url": res.CheckoutURL,
	})
}

type finalizeRequest struct {
	AllowPartial   bool   `json:"allow_partial"`
	LatePercentage int64  `json:"late_percentage"`
	Note           string `json:"note"`
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req finalizeRequest
	if err := httpx.DecodeOptionalJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.LatePercentage < 0 {
		badRequest(w, "late_percentage must not be negative")
		return
	}
	res, err := h.venue.Finalize(r.Context(), venue.FinalizeRequest{
		Target:         t,
		AllowPartial:   req.AllowPartial,
		LatePercentage: req.LatePercentage,
		Note:           req.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, res.Occurrence.Version)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"occurrence": toOccurrence(res.Occurrence),
		"order":      toOrder(res.Order),
		"ledger":     res.Ledger,
	})
}
