package ics

import (
	"bytes"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	ical "github.com/arran4/golang-ical"

	"roomfinder/internal/room"
)

const productID = "-//roomfinder//room calendar//EN"

// roomCalendar accumulates the events of one room.
type roomCalendar struct {
	cal   *ical.Calendar
	tzids map[string]bool
}

// SplitByRoom regroups course calendars into one calendar per room, keyed by
// the room codes named in each event's LOCATION. Documents that fail to
// parse are reported in failed and contribute nothing.
func SplitByRoom(docs map[string][]byte) (rooms map[string][]byte, failed map[string]error) {
	failed = make(map[string]error)
	byRoom := make(map[string]*roomCalendar)

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		body := docs[name]
		if len(bytes.TrimSpace(body)) == 0 {
			failed[name] = errEmptyBody
			continue
		}
		cal, err := ical.ParseCalendar(bytes.NewReader(body))
		if err != nil {
			failed[name] = err
			continue
		}

		timezones := make(map[string]ical.Component)
		for _, c := range cal.Components {
			tz, ok := c.(*ical.VTimezone)
			if !ok {
				continue
			}
			if p := tz.GetProperty("TZID"); p != nil && p.Value != "" {
				timezones[p.Value] = tz
			}
		}

		for _, ve := range cal.Events() {
			loc := ve.GetProperty(ical.ComponentPropertyLocation)
			if loc == nil {
				continue
			}
			for _, code := range RoomCodes(loc.Value) {
				rc, ok := byRoom[code]
				if !ok {
					rc = newRoomCalendar()
					byRoom[code] = rc
				}
				for tzid, tz := range timezones {
					if !rc.tzids[tzid] {
						rc.tzids[tzid] = true
						rc.cal.Components = append(rc.cal.Components, tz)
					}
				}
				rc.cal.Components = append(rc.cal.Components, ve)
			}
		}
	}

	rooms = make(map[string][]byte, len(byRoom))
	for code, rc := range byRoom {
		rooms[code] = []byte(rc.cal.Serialize())
	}
	return rooms, failed
}

func newRoomCalendar() *roomCalendar {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	return &roomCalendar{cal: cal, tzids: make(map[string]bool)}
}

// RoomCodes extracts room names from a LOCATION value such as
// "A266, Hörsaal B212". Parseable codes are returned with an upper-case
// block and their digits as written;
// other names are kept verbatim when they are usable as file names.
func RoomCodes(location string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)

	location = strings.NewReplacer(`\,`, ",", `\;`, ",").Replace(location)
	for _, token := range strings.Split(location, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		code, ok := roomCode(token)
		if !ok || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out
}

func roomCode(token string) (string, bool) {
	if code, ok := parseCode(token); ok {
		return code, true
	}
	for _, field := range strings.Fields(token) {
		if code, ok := parseCode(field); ok {
			return code, true
		}
	}
	if !safeName(token) {
		return "", false
	}
	return token, true
}

// parseCode accepts only codes that start with a block letter.
func parseCode(s string) (string, bool) {
	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(r) {
		return "", false
	}
	if _, err := room.Parse(s); err != nil {
		return "", false
	}
	return room.Normalize(s), true
}

func safeName(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") {
		return false
	}
	return !strings.ContainsAny(s, `/\:*?"<>|`)
}
