// Package free decides whether a room is occupied during a time window.
package free

import (
	"time"

	"roomfinder/internal/model"
)

// Window is the half-open local interval [Start, End) a search asks about.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a window in loc. A start after end collapses to an empty
// window at end.
func NewWindow(start, end time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.Local
	}
	start, end = start.In(loc), end.In(loc)
	if start.After(end) {
		start = end
	}
	return Window{Start: start, End: end}
}

// Location is the reference zone of the window.
func (w Window) Location() *time.Location {
	return w.Start.Location()
}

// Day returns the calendar day containing the window start, as
// [midnight, next midnight).
func (w Window) Day() (time.Time, time.Time) {
	y, m, d := w.Start.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, w.Location())
	return from, from.AddDate(0, 0, 1)
}

// IsFree reports whether no event occupies the room for w.
func IsFree(events []model.Event, w Window) bool {
	for _, ev := range events {
		if occupies(ev, w) {
			return false
		}
	}
	return true
}

// Busy returns the events that occupy the room for w.
func Busy(events []model.Event, w Window) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if occupies(ev, w) {
			out = append(out, ev)
		}
	}
	return out
}

// occupies applies the same-day rule: an event blocks the room when it ends
// on the window's start date and has not ended before the window starts.
// Date-only bounds block the whole day they name.
func occupies(ev model.Event, w Window) bool {
	loc := w.Location()

	if ev.Start.IsDate() {
		return sameDate(ev.Start.In(loc), w.Start)
	}
	if ev.End.IsDate() {
		return sameDate(ev.End.In(loc), w.Start)
	}

	start := ev.Start.In(loc)
	end := ev.End.In(loc)
	return (!start.Before(w.Start) || !end.Before(w.Start)) && sameDate(end, w.Start)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
