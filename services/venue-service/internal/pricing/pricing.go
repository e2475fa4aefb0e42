// Package pricing prices court time from a court's hourly rate table.
package pricing

import (
	"slices"
	"time"

	"github.com/md-rashed-zaman/courtdesk/services/venue-service/internal/schedule"
	"github.com/shopspring/decimal"
)

// Rule charges PricePerHour for [Start, End) on the listed venue days.
// Lower Order wins when rules overlap.
type Rule struct {
	ID           string
	CourtID      string
	DaysOfWeek   []int
	Start        schedule.Clock
	End          schedule.Clock
	PricePerHour int64
	Order        int
}

func (r Rule) appliesOn(venueDay int) bool {
	return slices.Contains(r.DaysOfWeek, venueDay)
}

func (r Rule) covers(minute int) bool {
	return minute >= r.Start.Minutes() && minute < r.End.Minutes()
}

// CourtFee walks [start, end) on date, charging each stretch at the first rule
// covering it. The walk stops at the first minute no rule covers, so an
// unpriced gap is free rather than an error.
func CourtFee(rules []Rule, date time.Time, start, end schedule.Clock) int64 {
	day := schedule.VenueDay(date.Weekday())
	var applicable []Rule
	for _, r := range rules {
		if r.appliesOn(day) && r.Start.Before(r.End) {
			applicable = append(applicable, r)
		}
	}
	slices.SortStableFunc(applicable, func(a, b Rule) int { return a.Order - b.Order })

	total := decimal.Zero
	cursor, stop := start.Minutes(), end.Minutes()
	for cursor < stop {
		i := slices.IndexFunc(applicable, func(r Rule) bool { return r.covers(cursor) })
		if i < 0 {
			break
		}
		r := applicable[i]
		segEnd := min(r.End.Minutes(), stop)
		hours := decimal.NewFromInt(int64(segEnd - cursor)).Div(decimal.NewFromInt(60))
		total = total.Add(decimal.NewFromInt(r.PricePerHour).Mul(hours))
		cursor = segEnd
	}
	return total.Round(0).IntPart()
}
