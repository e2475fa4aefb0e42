package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/courtdesk/libs/httpx"
	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/venue"
)

type createBookingRequest struct {
	CourtID    string `json:"court_id"`
	CustomerID string `json:"customer_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	DaysOfWeek []int  `json:"days_of_week"`
	StartClock string `json:"start_clock"`
	EndClock   string `json:"end_clock"`
	Note       string `json:"note"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	start, err := parseDate(strings.TrimSpace(req.StartDate))
	if err != nil {
		badRequest(w, "invalid start_date, want YYYY-MM-DD")
		return
	}
	end := start
	if strings.TrimSpace(req.EndDate) != "" {
		if end, err = parseDate(strings.TrimSpace(req.EndDate)); err != nil {
			badRequest(w, "invalid end_date, want YYYY-MM-DD")
			return
		}
	}

	res, err := h.venue.CreateBooking(r.Context(), venue.BookingRequest{
		CourtID:    req.CourtID,
		CustomerID: req.CustomerID,
		StartDate:  start,
		EndDate:    end,
		DaysOfWeek: req.DaysOfWeek,
		StartClock: req.StartClock,
		EndClock:   req.EndClock,
		Note:       req.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	b := res.Booking
	resp := bookingResponse{
		ID:          b.ID,
		CourtID:     b.CourtID,
		CustomerID:  b.CustomerID,
		StartDate:   b.StartDate.Format("2006-01-02"),
		EndDate:     b.EndDate.Format("2006-01-02"),
		DaysOfWeek:  b.DaysOfWeek,
		StartClock:  b.StartClock,
		EndClock:    b.EndClock,
		WalkIn:      b.WalkIn(),
		Occurrences: toOccurrences(res.Occurrences),
	}
	for _, o := range res.Occurrences {
		resp.CourtTotal += o.CourtFee
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

type depositRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method"`
	Note   string `json:"note"`
}

// RecordDeposit takes a deposit against a booking. An omitted amount takes the
// configured share of the booking's court total.
func (h *Handler) RecordDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	p, err := h.venue.RecordDeposit(r.Context(), venue.DepositRequest{
		BookingID: strings.TrimSpace(r.PathValue("id")),
		Amount:    req.Amount,
		Method:    req.Method,
		Note:      req.Note,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPayment(p))
}
