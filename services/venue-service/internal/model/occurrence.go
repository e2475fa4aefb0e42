package model

import "time"

type Status string

const (
	StatusBooked     Status = "booked"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"
	StatusNoShow     Status = "no_show"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCheckedOut, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Blocks reports whether an occurrence in this status still holds its court.
func (s Status) Blocks() bool {
	return s != StatusCancelled
}

func (s Status) Valid() bool {
	switch s {
	case StatusBooked, StatusCheckedIn, StatusCheckedOut, StatusNoShow, StatusCancelled:
		return true
	}
	return false
}

// Occurrence is one dated, bookable slot instance on a court.
type Occurrence struct {
	ID         string
	BookingID  string
	CourtID    string
	CustomerID string
	Date       time.Time // midnight in the venue location
	StartsAt   time.Time
	EndsAt     time.Time
	Status     Status
	CourtFee   int64
	CheckInAt  *time.Time
	CheckOutAt *time.Time
	SettledAt  *time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (o Occurrence) Duration() time.Duration {
	return o.EndsAt.Sub(o.StartsAt)
}

// Overlaps uses half-open intervals: [a,b) and [c,d) overlap iff a < d && c < b.
func (o Occurrence) Overlaps(other Occurrence) bool {
	return o.CourtID == other.CourtID && o.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(o.EndsAt)
}

func (o Occurrence) Settled() bool {
	return o.SettledAt != nil
}

type Booking struct {
	ID         string
	CourtID    string
	CustomerID string
	StartDate  time.Time
	EndDate    time.Time
	DaysOfWeek []int // 2=Mon .. 8=Sun; empty for a walk-in
	StartClock string
	EndClock   string
	Note       string
	CreatedAt  time.Time
}

func (b Booking) WalkIn() bool {
	return len(b.DaysOfWeek) == 0
}
