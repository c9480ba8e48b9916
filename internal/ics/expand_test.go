package ics

import (
	"testing"
	"time"

	"roomfinder/internal/model"
)

func dayRange(loc *time.Location, y int, m time.Month, d int) (time.Time, time.Time) {
	from := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, 1)
}

func weeklyEvents(t *testing.T) []ParsedEvent {
	t.Helper()
	events, err := Parse(calendar(
		vevent("UID:weekly", "SUMMARY:Math", "DTSTART:20240501T100000", "DTEND:20240501T110000",
			"RRULE:FREQ=WEEKLY;COUNT=5", "EXDATE:20240515T100000"),
		vevent("UID:weekly", "SUMMARY:Math (moved)", "RECURRENCE-ID:20240522T100000",
			"DTSTART:20240522T140000", "DTEND:20240522T150000"),
		vevent("UID:single", "DTSTART:20240508T080000", "DTEND:20240508T090000"),
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return events
}

func TestExpandRecurring(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	events := weeklyEvents(t)

	from, to := dayRange(loc, 2024, time.May, 8)
	got := Expand(events, from, to, loc)

	var weekly []model.Event
	for _, ev := range got {
		if ev.UID == "weekly" {
			weekly = append(weekly, ev)
		}
	}
	if len(weekly) != 1 {
		t.Fatalf("got %d weekly occurrences on May 8, want 1", len(weekly))
	}
	start := weekly[0].Start.In(loc)
	if start.Day() != 8 || start.Hour() != 10 {
		t.Errorf("occurrence start = %v", start)
	}
	if end := weekly[0].End.In(loc); end.Sub(start) != time.Hour {
		t.Errorf("occurrence duration = %v", end.Sub(start))
	}

	// The single event passes through whatever the range.
	if len(got) != 2 {
		t.Errorf("got %d events, want 2", len(got))
	}
}

func TestExpandExDate(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	from, to := dayRange(loc, 2024, time.May, 15)
	for _, ev := range Expand(weeklyEvents(t), from, to, loc) {
		if ev.UID == "weekly" {
			t.Fatalf("excluded occurrence returned: %+v", ev)
		}
	}
}

func TestExpandOverride(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	from, to := dayRange(loc, 2024, time.May, 22)

	var found []model.Event
	for _, ev := range Expand(weeklyEvents(t), from, to, loc) {
		if ev.UID == "weekly" {
			found = append(found, ev)
		}
	}
	if len(found) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(found))
	}
	if found[0].Summary != "Math (moved)" || found[0].Start.In(loc).Hour() != 14 {
		t.Fatalf("override not applied: %+v", found[0])
	}
}

func TestExpandOverrideMovedToAnotherDay(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	events, err := Parse(calendar(
		vevent("UID:lab", "SUMMARY:Lab", "DTSTART:20240501T100000", "DTEND:20240501T120000",
			"RRULE:FREQ=WEEKLY;COUNT=5"),
		vevent("UID:lab", "SUMMARY:Lab (Thursday)", "RECURRENCE-ID:20240522T100000",
			"DTSTART:20240523T100000", "DTEND:20240523T120000"),
	))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		day  int
		want []string
	}{
		{22, nil},
		{23, []string{"Lab (Thursday)"}},
		{29, []string{"Lab"}},
	}
	for _, tt := range tests {
		from, to := dayRange(loc, 2024, time.May, tt.day)
		got := OnDate(Expand(events, from, to, loc), from, loc)
		if len(got) != len(tt.want) {
			t.Fatalf("May %d: got %d events, want %d: %+v", tt.day, len(got), len(tt.want), got)
		}
		for i, ev := range got {
			if ev.Summary != tt.want[i] {
				t.Errorf("May %d: event %d = %q, want %q", tt.day, i, ev.Summary, tt.want[i])
			}
		}
	}
}

func TestExpandAfterCount(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	from, to := dayRange(loc, 2024, time.June, 5)
	for _, ev := range Expand(weeklyEvents(t), from, to, loc) {
		if ev.UID == "weekly" {
			t.Fatalf("occurrence after COUNT returned: %+v", ev)
		}
	}
}

func TestOnDate(t *testing.T) {
	t.Parallel()

	loc := mustLoc(t, "Europe/Berlin")
	day := time.Date(2024, 5, 8, 12, 0, 0, 0, loc)
	from, to := dayRange(loc, 2024, time.May, 8)

	got := OnDate(Expand(weeklyEvents(t), from, to, loc), day, loc)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].UID != "single" || got[1].UID != "weekly" {
		t.Fatalf("events not ordered by start: %s, %s", got[0].UID, got[1].UID)
	}
}
