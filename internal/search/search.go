// Package search finds free rooms near a destination room.
package search

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"roomfinder/internal/acquire"
	"roomfinder/internal/free"
	"roomfinder/internal/ics"
	appLog "roomfinder/internal/log"
	"roomfinder/internal/model"
	"roomfinder/internal/progress"
	"roomfinder/internal/room"
)

var (
	ErrInvalidRoomIdentifier = errors.New("invalid room identifier")
	ErrNoCalendarData        = errors.New("no calendar data")
	ErrCacheUnavailable      = errors.New("calendar cache unavailable")
)

// Store is the read side of the calendar cache.
type Store interface {
	ListRooms() ([]string, error)
	Load(code string) ([]byte, error)
}

// Refresher brings the cache up to date; see acquire.Pipeline.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (acquire.Report, error)
}

// RoomError is the evaluation failure of a single room.
type RoomError struct {
	Room string
	Err  error
}

func (e *RoomError) Error() string {
	return fmt.Sprintf("room %s: %v", e.Room, e.Err)
}

func (e *RoomError) Unwrap() error {
	return e.Err
}

// Result is one ranked room. Distance is room.MaxDistance for busy rooms
// and for rooms that failed to evaluate (Err set).
type Result struct {
	Room     string
	Distance uint64
	Err      error
}

// Free reports whether the room is a ranked candidate.
func (r Result) Free() bool {
	return r.Distance != room.MaxDistance
}

// Query describes one search.
type Query struct {
	Destination string
	Window      free.Window
	// Limit caps the result; zero or less returns every room.
	Limit int
	// Refresh forces a cache refresh (stale or user requested).
	Refresh bool
}

// Finder evaluates every cached room against a query.
type Finder struct {
	store     Store
	refresher Refresher
	progress  progress.Sink
	workers   int
}

// NewFinder creates a Finder. refresher may be nil to search the cache as
// is; workers defaults to GOMAXPROCS.
func NewFinder(store Store, refresher Refresher, sink progress.Sink, workers int) *Finder {
	if sink == nil {
		sink = progress.Nop{}
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Finder{store: store, refresher: refresher, progress: sink, workers: workers}
}

// FindRooms returns the free rooms closest to q.Destination, best first.
func (f *Finder) FindRooms(ctx context.Context, q Query) ([]Result, error) {
	dst, err := room.Parse(q.Destination)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoomIdentifier, err)
	}

	if f.refresher != nil {
		report, err := f.refresher.Refresh(ctx, q.Refresh)
		if err != nil {
			// Whatever is still cached is searched; an empty cache fails below.
			appLog.Error("calendar refresh failed", err)
		}
		for _, fe := range report.Failures {
			appLog.Error("calendar source skipped", fe.Err, "source", fe.Source, "attempts", fe.Attempts)
		}
	}

	codes, err := f.store.ListRooms()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCacheUnavailable, err)
	}
	if len(codes) == 0 {
		return nil, ErrNoCalendarData
	}

	results := f.evaluate(ctx, dst, codes, q.Window)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Rank(results, q.Limit), nil
}

// evaluate scores every room concurrently. Each worker writes only its own
// slot, so a failing room cannot affect another.
func (f *Finder) evaluate(ctx context.Context, dst room.ID, codes []string, w free.Window) []Result {
	results := make([]Result, len(codes))
	f.progress.Start("Finding rooms", len(codes))

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, code := range codes {
		g.Go(func() error {
			defer f.progress.Advance()
			results[i] = f.evaluateRoom(ctx, dst, code, w)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (f *Finder) evaluateRoom(ctx context.Context, dst room.ID, code string, w free.Window) Result {
	res := Result{Room: code, Distance: room.MaxDistance}
	if err := ctx.Err(); err != nil {
		res.Err = &RoomError{Room: code, Err: err}
		return res
	}

	events, err := f.roomEvents(code, w)
	if err != nil {
		appLog.Debug("room evaluation failed", "room", code, "err", err)
		res.Err = &RoomError{Room: code, Err: err}
		return res
	}

	if free.IsFree(events, w) {
		res.Distance = room.Distance(dst, code)
	}
	return res
}

// roomEvents loads a room calendar and expands it over the window's day.
func (f *Finder) roomEvents(code string, w free.Window) ([]model.Event, error) {
	body, err := f.store.Load(code)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.Parse(body)
	if err != nil {
		return nil, err
	}
	from, to := w.Day()
	return ics.Expand(parsed, from, to, w.Location()), nil
}

// RoomEvents lists the events of one cached room on the day of t.
func (f *Finder) RoomEvents(ctx context.Context, code string, t time.Time) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code = room.Normalize(code)
	w := free.NewWindow(t, t, t.Location())
	events, err := f.roomEvents(code, w)
	if err != nil {
		return nil, &RoomError{Room: code, Err: err}
	}
	return ics.OnDate(events, t, t.Location()), nil
}

// Rank orders results by (distance, room code) and keeps the first limit
// entries (all when limit <= 0). Equal distances are ordered by room code,
// not by the order rooms were enumerated in. The input slice is reordered.
func Rank(results []Result, limit int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Room < results[j].Room
	})
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
