package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/model"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
)

func (h *Handler) ListOccurrences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := optionalTime(r, "from")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	to, err := optionalTime(r, "to")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	list, err := h.venue.ListOccurrences(r.Context(), venue.OccurrenceFilter{
		CourtID:    strings.TrimSpace(q.Get("court_id")),
		CustomerID: strings.TrimSpace(q.Get("customer_id")),
		Status:     model.Status(strings.TrimSpace(q.Get("status"))),
		From:       from,
		To:         to,
		Limit:      int(limit),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"occurrences": toOccurrences(list)})
}

func (h *Handler) GetOccurrence(w http.ResponseWriter, r *http.Request) {
	o, err := h.venue.GetOccurrence(r.Context(), strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOccurrence(w, o)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, venue.Target) (model.Occurrence, error)) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	o, err := fn(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeOccurrence(w, o)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.venue.CheckIn)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.venue.CheckOut)
}

// MarkNoShow is refused with 409 too_early until the slot has ended.
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.venue.MarkNoShow)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	t, err := target(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	var req cancelRequest
	if err := httpx.DecodeOptionalJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	res, err := h.venue.Cancel(r.Context(), t, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	setETag(w, res.Occurrence.Version)
	body := map[string]any{"occurrence": toOccurrence(res.Occurrence)}
	if res.Warning != "" {
		body["warning"] = res.Warning
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}
