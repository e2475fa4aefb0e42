package schedule

import (
	"fmt"
	"time"
)

// Clock is a time of day with minute precision. EndOfDay (24:00) is only
// meaningful as the end of a range.
type Clock struct {
	Hour   int
	Minute int
}

var EndOfDay = Clock{Hour: 24}

// ParseClock reads HH:MM. "24:00" parses as EndOfDay.
func ParseClock(s string) (Clock, error) {
	if s == "24:00" {
		return EndOfDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(o Clock) bool {
	return c.Minutes() < o.Minutes()
}

// On places c on the calendar day of date, in date's location. EndOfDay lands
// on the following midnight.
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

// ShiftKey is the Template.Shift value for a clock range.
func ShiftKey(start, end Clock) string {
	return start.String() + "-" + end.String()
}
