package free

import (
	"testing"
	"time"
	_ "time/tzdata"

	"roomfinder/internal/model"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return loc
}

func floating(y int, m time.Month, d, hh, mm int) model.Instant {
	return model.Instant{Kind: model.KindFloating, Time: time.Date(y, m, d, hh, mm, 0, 0, time.UTC)}
}

func date(y int, m time.Month, d int) model.Instant {
	return model.Instant{Kind: model.KindDate, Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func event(start, end model.Instant) model.Event {
	return model.Event{UID: "ev", Start: start, End: end}
}

func TestIsFree(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	w := NewWindow(
		time.Date(2024, 5, 1, 10, 0, 0, 0, loc),
		time.Date(2024, 5, 1, 12, 0, 0, 0, loc),
		loc,
	)

	tests := []struct {
		name   string
		events []model.Event
		want   bool
	}{
		{name: "no events", events: nil, want: true},
		{
			name:   "overlapping event",
			events: []model.Event{event(floating(2024, 5, 1, 9, 0), floating(2024, 5, 1, 11, 0))},
			want:   false,
		},
		{
			name:   "later the same day",
			events: []model.Event{event(floating(2024, 5, 1, 13, 0), floating(2024, 5, 1, 14, 0))},
			want:   false,
		},
		{
			name:   "ended before window the same day",
			events: []model.Event{event(floating(2024, 5, 1, 7, 0), floating(2024, 5, 1, 8, 0))},
			want:   true,
		},
		{
			name:   "ends exactly at window start",
			events: []model.Event{event(floating(2024, 5, 1, 8, 0), floating(2024, 5, 1, 10, 0))},
			want:   false,
		},
		{
			name:   "other day",
			events: []model.Event{event(floating(2024, 5, 2, 10, 0), floating(2024, 5, 2, 11, 0))},
			want:   true,
		},
		{
			name:   "multi-day event ending the next day",
			events: []model.Event{event(floating(2024, 5, 1, 9, 0), floating(2024, 5, 2, 9, 0))},
			want:   true,
		},
		{
			name:   "all-day event on window date",
			events: []model.Event{event(date(2024, 5, 1), date(2024, 5, 2))},
			want:   false,
		},
		{
			name:   "all-day event other date",
			events: []model.Event{event(date(2024, 4, 30), date(2024, 5, 1))},
			want:   true,
		},
		{
			name:   "date-time start with date end on window date",
			events: []model.Event{event(floating(2024, 4, 30, 9, 0), date(2024, 5, 1))},
			want:   false,
		},
		{
			name: "one busy among free",
			events: []model.Event{
				event(floating(2024, 5, 1, 7, 0), floating(2024, 5, 1, 8, 0)),
				event(floating(2024, 5, 2, 10, 0), floating(2024, 5, 2, 11, 0)),
				event(floating(2024, 5, 1, 10, 30), floating(2024, 5, 1, 11, 30)),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsFree(tt.events, w); got != tt.want {
				t.Fatalf("IsFree = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllDayIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	events := []model.Event{event(date(2024, 5, 1), date(2024, 5, 2))}
	for _, hh := range []int{0, 6, 12, 23} {
		start := time.Date(2024, 5, 1, hh, 59, 0, 0, loc)
		w := NewWindow(start, start.Add(time.Minute), loc)
		if IsFree(events, w) {
			t.Errorf("room free at %02d:59 despite all-day event", hh)
		}
	}
}

func TestZoneNormalization(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	w := NewWindow(
		time.Date(2024, 5, 1, 10, 0, 0, 0, loc),
		time.Date(2024, 5, 1, 12, 0, 0, 0, loc),
		loc,
	)

	// 06:00-07:30 UTC is 08:00-09:30 in Berlin: finished before 10:00.
	utc := event(
		model.Instant{Kind: model.KindUTC, Time: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)},
		model.Instant{Kind: model.KindUTC, Time: time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC)},
	)
	if !IsFree([]model.Event{utc}, w) {
		t.Error("UTC event before the window should leave the room free")
	}

	// 09:00-10:30 UTC is 11:00-12:30 in Berlin.
	busy := event(
		model.Instant{Kind: model.KindUTC, Time: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		model.Instant{Kind: model.KindUTC, Time: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
	)
	if IsFree([]model.Event{busy}, w) {
		t.Error("UTC event inside the window should make the room busy")
	}

	// 23:30 New York on Apr 30 is 05:30 Berlin on May 1, before the window.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	zoned := event(
		model.Instant{Kind: model.KindZoned, TZID: "America/New_York", Time: time.Date(2024, 4, 30, 22, 0, 0, 0, ny)},
		model.Instant{Kind: model.KindZoned, TZID: "America/New_York", Time: time.Date(2024, 4, 30, 23, 30, 0, 0, ny)},
	)
	if !IsFree([]model.Event{zoned}, w) {
		t.Error("zoned event ending before the window should leave the room free")
	}
}

func TestNewWindowNormalizesReversedBounds(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	start := time.Date(2024, 5, 1, 14, 0, 0, 0, loc)
	end := time.Date(2024, 5, 1, 12, 0, 0, 0, loc)

	w := NewWindow(start, end, loc)
	if !w.Start.Equal(end) || !w.End.Equal(end) {
		t.Fatalf("window = %v..%v, want empty window at %v", w.Start, w.End, end)
	}
}

func TestWindowDay(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	w := NewWindow(time.Date(2024, 5, 1, 10, 0, 0, 0, loc), time.Date(2024, 5, 1, 12, 0, 0, 0, loc), loc)
	from, to := w.Day()
	if !from.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, loc)) || !to.Equal(time.Date(2024, 5, 2, 0, 0, 0, 0, loc)) {
		t.Fatalf("Day = %v..%v", from, to)
	}
}

func TestBusy(t *testing.T) {
	t.Parallel()

	loc := berlin(t)
	w := NewWindow(time.Date(2024, 5, 1, 10, 0, 0, 0, loc), time.Date(2024, 5, 1, 12, 0, 0, 0, loc), loc)
	events := []model.Event{
		event(floating(2024, 5, 1, 7, 0), floating(2024, 5, 1, 8, 0)),
		{UID: "blocking", Start: floating(2024, 5, 1, 11, 0), End: floating(2024, 5, 1, 12, 0)},
	}
	got := Busy(events, w)
	if len(got) != 1 || got[0].UID != "blocking" {
		t.Fatalf("Busy = %+v", got)
	}
}
