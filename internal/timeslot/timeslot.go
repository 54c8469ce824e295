// Package timeslot holds the calendar arithmetic shared by the admission
// logic and the reporting code: half-open time intervals and Monday-start
// week bounds.
package timeslot

import "time"

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether two intervals share at least one instant.
// Half-open semantics: back-to-back intervals (i.End == o.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && i.End.After(o.Start)
}

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekBounds returns the Monday 00:00:00 and Sunday 23:59:59.999999999 of
// the week containing date, in the date's location.
func WeekBounds(date time.Time) (time.Time, time.Time) {
	offset := int(date.Weekday()) - 1
	if date.Weekday() == time.Sunday {
		offset = 6
	}
	monday := DayOf(date).AddDate(0, 0, -offset)
	sunday := monday.AddDate(0, 0, 7).Add(-time.Nanosecond)
	return monday, sunday
}
