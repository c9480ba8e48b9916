package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "roomfinder/internal/log"
	"roomfinder/internal/model"
)

var errEmptyBody = errors.New("empty ICS body")

// ParsedEvent is the normalized representation of a VEVENT before
// recurrence expansion.
type ParsedEvent struct {
	UID      string
	Summary  string
	Location string

	Start model.Instant
	End   model.Instant

	RawRRule   string
	ExDates    []model.Instant
	Recurrence *model.Instant // RECURRENCE-ID, set on overridden instances
}

// IsOverride reports whether the VEVENT replaces one instance of a
// recurring event.
func (p ParsedEvent) IsOverride() bool {
	return p.Recurrence != nil
}

// Event returns the event without any recurrence information.
func (p ParsedEvent) Event() model.Event {
	return model.Event{
		UID:      p.UID,
		Summary:  p.Summary,
		Location: p.Location,
		Start:    p.Start,
		End:      p.End,
	}
}

// Parse parses an ICS document into its events.
//
//   - The kind of each bound (UTC, floating, TZID, date) is kept so the
//     caller can resolve it against its own reference zone.
//   - A VEVENT without DTSTART is logged and skipped.
//   - A VEVENT without DTEND ends at its start.
//   - RRULE/EXDATE/RECURRENCE-ID are recorded; see Expand.
func Parse(body []byte) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			appLog.Debug("ics vevent skipped", "reason", perr.Error(), "uid", ev.UID)
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (ParsedEvent, error) {
	var out ParsedEvent

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := parseInstant(startProp.Value, startProp.ICalParameters)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start = start
	out.End = start

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, err := parseInstant(endProp.Value, endProp.ICalParameters)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	// EXDATE can appear multiple times, each with a comma separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if ex, err := parseInstant(part, p.ICalParameters); err == nil {
				out.ExDates = append(out.ExDates, ex)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if rid, err := parseInstant(p.Value, p.ICalParameters); err == nil {
			out.Recurrence = &rid
		}
	}

	return out, nil
}

const (
	layoutUTC      = "20060102T150405Z"
	layoutDateTime = "20060102T150405"
	layoutDate     = "20060102"
)

// parseInstant parses a DATE or DATE-TIME value using its VALUE/TZID
// parameters.
func parseInstant(v string, params map[string][]string) (model.Instant, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return model.Instant{}, errors.New("empty time value")
	}

	if strings.EqualFold(param(params, "VALUE"), "DATE") || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation(layoutDate, v, time.UTC)
		if err != nil {
			return model.Instant{}, err
		}
		return model.Instant{Kind: model.KindDate, Time: t}, nil
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutUTC, v)
		if err != nil {
			return model.Instant{}, err
		}
		return model.Instant{Kind: model.KindUTC, Time: t}, nil
	}

	if tzid := strings.Trim(param(params, "TZID"), `"`); tzid != "" {
		loc, err := time.LoadLocation(tzid)
		if err == nil {
			t, err := time.ParseInLocation(layoutDateTime, v, loc)
			if err != nil {
				return model.Instant{}, err
			}
			return model.Instant{Kind: model.KindZoned, Time: t, TZID: tzid}, nil
		}
		// Unknown zone names (e.g. Windows names) degrade to floating time.
		appLog.Debug("ics unknown TZID, treating as floating", "tzid", tzid)
	}

	t, err := time.ParseInLocation(layoutDateTime, v, time.UTC)
	if err != nil {
		return model.Instant{}, err
	}
	return model.Instant{Kind: model.KindFloating, Time: t}, nil
}

func param(params map[string][]string, key string) string {
	if params == nil {
		return ""
	}
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
