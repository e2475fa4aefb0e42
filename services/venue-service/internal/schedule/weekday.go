package schedule

import (
	"fmt"
	"slices"
	"time"
)

// The venue numbers weekdays the way its paper timetables do:
// 2 = Monday ... 7 = Saturday, 8 = Sunday.
const (
	VenueMonday = 2
	VenueSunday = 8
)

func VenueDay(wd time.Weekday) int {
	if wd == time.Sunday {
		return VenueSunday
	}
	return int(wd) + 1
}

func Weekday(venueDay int) (time.Weekday, error) {
	if venueDay < VenueMonday || venueDay > VenueSunday {
		return 0, fmt.Errorf("day of week %d out of range %d..%d", venueDay, VenueMonday, VenueSunday)
	}
	if venueDay == VenueSunday {
		return time.Sunday, nil
	}
	return time.Weekday(venueDay - 1), nil
}

// NormalizeDays validates, deduplicates and sorts venue day numbers.
func NormalizeDays(days []int) ([]int, error) {
	out := make([]int, 0, len(days))
	for _, d := range days {
		if _, err := Weekday(d); err != nil {
			return nil, err
		}
		if !slices.Contains(out, d) {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}

func Weekdays(venueDays []int) ([]time.Weekday, error) {
	out := make([]time.Weekday, 0, len(venueDays))
	for _, d := range venueDays {
		wd, err := Weekday(d)
		if err != nil {
			return nil, err
		}
		out = append(out, wd)
	}
	return out, nil
}
