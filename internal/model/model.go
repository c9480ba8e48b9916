package model

import "time"

// Kind tells how the wall clock of an Instant must be interpreted.
type Kind int

const (
	// KindFloating is a local date-time with no zone ("20240501T100000").
	KindFloating Kind = iota
	// KindUTC is an absolute instant ("20240501T100000Z").
	KindUTC
	// KindZoned is a date-time qualified by a TZID parameter.
	KindZoned
	// KindDate is a date with no time of day (all-day events).
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindFloating:
		return "floating"
	case KindUTC:
		return "utc"
	case KindZoned:
		return "zoned"
	case KindDate:
		return "date"
	default:
		return "unknown"
	}
}

// Instant is one bound of an event as it appeared in the calendar.
//
// For KindFloating and KindDate only the wall clock fields of Time are
// meaningful; the location it carries is incidental.
type Instant struct {
	Kind Kind
	Time time.Time
	TZID string
}

// IsDate reports whether the instant is a date without a time of day.
func (i Instant) IsDate() bool {
	return i.Kind == KindDate
}

// In resolves the instant into loc. Absolute instants are converted;
// floating and date values keep their wall clock.
func (i Instant) In(loc *time.Location) time.Time {
	switch i.Kind {
	case KindUTC, KindZoned:
		return i.Time.In(loc)
	default:
		t := i.Time
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
}

// Event is a single calendar entry of one room (after recurrence expansion).
type Event struct {
	UID      string
	Summary  string
	Location string

	Start Instant
	End   Instant
}

// AllDay reports whether the event has date-only bounds.
func (e Event) AllDay() bool {
	return e.Start.IsDate()
}
