// Package schedule turns reservation templates into dated occurrence
// candidates. It is pure: nothing here reads or writes storage.
package schedule

import (
	"time"
)

// Template is a reusable slot assignment. Assignee is the court (or staff
// member) the slot belongs to and Shift identifies the time of day, for
// example "18:00-20:00".
type Template struct {
	ID         string
	Assignee   string
	Shift      string
	Recurring  bool
	Weekdays   []time.Weekday
	SingleDate time.Time
}

// Candidate is one dated slot produced by Expand.
type Candidate struct {
	TemplateID string
	Assignee   string
	Shift      string
	Date       time.Time
}

type dedupKey struct {
	assignee string
	shift    string
	date     string
}

// Expand emits every candidate of templates that falls inside [from, to]
// (both inclusive, compared as calendar dates in from's location).
//
// Candidates are deduplicated on (assignee, shift, date). When two templates
// produce the same key the one earlier in templates wins and later ones are
// dropped.
func Expand(templates []Template, from, to time.Time) []Candidate {
	start := DateOf(from)
	end := DateOf(to.In(from.Location()))
	if end.Before(start) {
		return nil
	}

	seen := make(map[dedupKey]struct{})
	var out []Candidate
	emit := func(t Template, day time.Time) {
		k := dedupKey{assignee: t.Assignee, shift: t.Shift, date: day.Format(time.DateOnly)}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, Candidate{TemplateID: t.ID, Assignee: t.Assignee, Shift: t.Shift, Date: day})
	}

	for _, t := range templates {
		if !t.Recurring {
			if t.SingleDate.IsZero() {
				continue
			}
			day := DateOf(t.SingleDate.In(from.Location()))
			if day.Before(start) || day.After(end) {
				continue
			}
			emit(t, day)
			continue
		}

		var days [7]bool
		for _, wd := range t.Weekdays {
			days[wd%7] = true
		}
		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			if days[day.Weekday()] {
				emit(t, day)
			}
		}
	}
	return out
}

// DateOf truncates t to midnight of its calendar day in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
