package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "roomfinder/internal/log"
	"roomfinder/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// Expand turns parsed events into concrete events for the range
// [from, to]. It handles:
//
//   - Single non-recurring events (passed through unchanged)
//   - RRULE-based recurrence
//   - EXDATE for exception removal
//   - RECURRENCE-ID overrides
//
// Floating and date values are anchored in loc.
func Expand(events []ParsedEvent, from, to time.Time, loc *time.Location) []model.Event {
	if loc == nil {
		loc = time.Local
	}

	recurring := make(map[string]bool)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.RawRRule != "" && !ev.IsOverride() {
			recurring[ev.UID] = true
		}
		if ev.IsOverride() {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		}
	}

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		switch {
		case ev.IsOverride() && recurring[ev.UID]:
			// Substituted while expanding its base event.
			continue
		case ev.RawRRule == "":
			out = append(out, ev.Event())
		default:
			occ, hitCap := expandRecurring(ev, overridesByUID[ev.UID], from, to, loc)
			if hitCap {
				appLog.Error("expand: truncated occurrences for UID due to cap",
					errors.New("max occurrences reached"),
					"uid", ev.UID,
					"cap", defaultMaxOccurrencesPerEvent,
				)
			}
			out = append(out, occ...)
		}
	}

	return out
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, from, to time.Time, loc *time.Location) ([]model.Event, bool) {
	out := make([]model.Event, 0)
	used := make([]bool, len(overrides))

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		// Keep the first instance rather than losing the event.
		out = append(out, ev.Event())
		return appendMoved(out, overrides, used, from, to, loc), false
	}

	dtstart := anchor(ev.Start, loc)
	dur := anchor(ev.End, loc).Sub(anchor(ev.Start, loc))
	if dur < 0 {
		dur = 0
	}
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(dtstart.Location()))
	}

	// Occurrences that start before the range but are still running count.
	rangeStart := from.Add(-dur).In(dtstart.Location())
	rangeEnd := to.In(dtstart.Location())

	starts := set.Between(rangeStart, rangeEnd, true)
	hitCap := false
	if len(starts) > defaultMaxOccurrencesPerEvent {
		starts = starts[:defaultMaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, s := range starts {
		if i, ok := findOverride(overrides, s); ok {
			used[i] = true
			if overlaps(overrides[i], from, to, loc) {
				out = append(out, overrides[i].Event())
			}
			continue
		}

		e := ev.Event()
		e.Start = model.Instant{Kind: ev.Start.Kind, Time: s, TZID: ev.Start.TZID}
		e.End = model.Instant{Kind: ev.End.Kind, Time: s.Add(dur), TZID: ev.End.TZID}
		out = append(out, e)
	}

	return appendMoved(out, overrides, used, from, to, loc), hitCap
}

// appendMoved adds overrides whose original occurrence lies outside the
// range but which were rescheduled into it.
func appendMoved(out []model.Event, overrides []ParsedEvent, used []bool, from, to time.Time, loc *time.Location) []model.Event {
	for i, ov := range overrides {
		if used[i] || !overlaps(ov, from, to, loc) {
			continue
		}
		out = append(out, ov.Event())
	}
	return out
}

// overlaps reports whether ev touches [from, to].
func overlaps(ev ParsedEvent, from, to time.Time, loc *time.Location) bool {
	start, end := anchor(ev.Start, loc), anchor(ev.End, loc)
	if end.Before(start) {
		end = start
	}
	return !start.After(to) && !end.Before(from)
}

// anchor places an instant on the time line. Absolute values keep their own
// zone so recurrences follow its DST rules.
func anchor(i model.Instant, loc *time.Location) time.Time {
	switch i.Kind {
	case model.KindUTC, model.KindZoned:
		return i.Time
	default:
		return i.In(loc)
	}
}

// findOverride returns the index of the override whose RECURRENCE-ID
// equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (int, bool) {
	for i, ov := range overrides {
		if ov.Recurrence == nil {
			continue
		}
		if ov.Recurrence.In(start.Location()).Equal(start) {
			return i, true
		}
	}
	return -1, false
}

// OnDate returns the events starting on the calendar date of day (in loc),
// ordered by start.
func OnDate(events []model.Event, day time.Time, loc *time.Location) []model.Event {
	if loc == nil {
		loc = time.Local
	}
	day = day.In(loc)
	y, m, d := day.Date()

	out := make([]model.Event, 0)
	for _, ev := range events {
		sy, sm, sd := ev.Start.In(loc).Date()
		if sy == y && sm == m && sd == d {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.In(loc).Before(out[j].Start.In(loc))
	})
	return out
}
