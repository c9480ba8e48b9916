// Package acquire refreshes the room calendar cache from the remote source
// listing and the per-source calendar feeds.
package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"roomfinder/internal/ics"
	appLog "roomfinder/internal/log"
	"roomfinder/internal/progress"
)

var (
	// ErrListing means the source listing could not be fetched or decoded.
	ErrListing = errors.New("source listing unavailable")
	// ErrNoDocuments means no source produced a usable calendar.
	ErrNoDocuments = errors.New("no usable calendar documents")
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Store is the part of the cache the pipeline writes to.
type Store interface {
	SaveSources(names []string) error
	ReplaceAll(docs map[string][]byte) error
	RefreshedAt() (time.Time, error)
}

// Options configures a Pipeline.
type Options struct {
	// SourcesURL returns a JSON array of source names.
	SourcesURL string
	// CalendarURL is the feed of one source; "%s" is replaced by the
	// escaped source name, otherwise the name is appended as a path segment.
	CalendarURL string

	MaxRetries int
	RetryDelay time.Duration
	// Workers bounds concurrent downloads (GOMAXPROCS when zero).
	Workers int
	// StaleAfter is the maximum cache age; zero disables age checks.
	StaleAfter time.Duration
}

func (o *Options) normalize() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// SourceError is the failure of one source after all attempts.
type SourceError struct {
	Source   string
	Attempts int
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed after %d attempt(s): %v", e.Source, e.Attempts, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Report summarizes one Refresh.
type Report struct {
	Ran        bool
	Sources    int
	Downloaded int
	Rooms      int
	Failures   []*SourceError
}

// Pipeline downloads all calendar sources and rebuilds the room cache.
type Pipeline struct {
	opts      Options
	transport Transport
	store     Store
	progress  progress.Sink

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a pipeline. A nil sink discards progress.
func New(opts Options, transport Transport, store Store, sink progress.Sink) *Pipeline {
	opts.normalize()
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Pipeline{
		opts:      opts,
		transport: transport,
		store:     store,
		progress:  sink,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// NeedsRefresh reports whether Refresh(force) would run: forced, cache
// absent, or cache older than StaleAfter.
func (p *Pipeline) NeedsRefresh(force bool) bool {
	if force {
		return true
	}
	at, err := p.store.RefreshedAt()
	if err != nil {
		appLog.Error("cache refresh time unreadable", err)
		return true
	}
	if at.IsZero() {
		return true
	}
	return p.opts.StaleAfter > 0 && p.now().Sub(at) >= p.opts.StaleAfter
}

// Refresh rebuilds the cache when NeedsRefresh(force) holds. Per-source
// failures are collected in the report; the error is reserved for failures
// that leave the cache untouched.
func (p *Pipeline) Refresh(ctx context.Context, force bool) (Report, error) {
	var report Report
	if !p.NeedsRefresh(force) {
		appLog.Debug("calendar cache is fresh; skipping refresh")
		return report, nil
	}
	report.Ran = true

	names, err := p.listSources(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrListing, err)
	}
	if err := p.store.SaveSources(names); err != nil {
		return report, fmt.Errorf("persist source listing: %w", err)
	}
	report.Sources = len(names)
	appLog.Info("calendar refresh start", "sources", len(names), "workers", p.opts.Workers)

	docs, failures := p.downloadAll(ctx, names)
	report.Downloaded = len(docs)
	report.Failures = failures

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(docs) == 0 {
		return report, ErrNoDocuments
	}

	rooms, failed := ics.SplitByRoom(docs)
	for name, perr := range failed {
		appLog.Error("calendar parse failed", perr, "source", name)
		report.Failures = append(report.Failures, &SourceError{Source: name, Attempts: 1, Err: perr})
	}
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Source < report.Failures[j].Source
	})

	report.Rooms = len(rooms)
	if len(rooms) == 0 {
		return report, ErrNoDocuments
	}
	if err := p.store.ReplaceAll(rooms); err != nil {
		return report, fmt.Errorf("replace room cache: %w", err)
	}

	appLog.Info("calendar refresh completed",
		"sources", report.Sources,
		"downloaded", report.Downloaded,
		"rooms", report.Rooms,
		"failures", len(report.Failures),
	)
	return report, nil
}

func (p *Pipeline) listSources(ctx context.Context) ([]string, error) {
	status, body, err := p.transport.Get(ctx, p.opts.SourcesURL)
	if err != nil {
		return nil, err
	}
	if !successful(status) {
		return nil, &StatusError{Code: status}
	}

	var names []string
	if err := json.Unmarshal(body, &names); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return names, nil
}

// downloadAll fans the sources out over a bounded pool. One source's
// failure never stops the others.
func (p *Pipeline) downloadAll(ctx context.Context, names []string) (map[string][]byte, []*SourceError) {
	var (
		mu       sync.Mutex
		docs     = make(map[string][]byte, len(names))
		failures = make([]*SourceError, 0)
	)

	p.progress.Start("Loading calendars", len(names))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for _, name := range names {
		g.Go(func() error {
			p.progress.Announce("Downloading: " + name + ".ics")
			body, attempts, err := p.download(ctx, name)

			mu.Lock()
			if err != nil {
				failures = append(failures, &SourceError{Source: name, Attempts: attempts, Err: err})
			} else {
				docs[name] = body
			}
			mu.Unlock()

			p.progress.Advance()
			return nil
		})
	}
	_ = g.Wait()

	return docs, failures
}

// download fetches one source with up to MaxRetries sequential attempts,
// waiting RetryDelay after each failed attempt but the last.
func (p *Pipeline) download(ctx context.Context, name string) ([]byte, int, error) {
	u := p.calendarURL(name)

	for attempt := 1; ; attempt++ {
		body, err := p.fetch(ctx, u)
		if err == nil {
			return body, attempt, nil
		}
		appLog.Error("calendar download failed", err,
			"source", name,
			"attempt", attempt,
			"max_retries", p.opts.MaxRetries,
		)
		if attempt >= p.opts.MaxRetries {
			return nil, attempt, err
		}
		if err := p.sleep(ctx, p.opts.RetryDelay); err != nil {
			return nil, attempt, err
		}
	}
}

func (p *Pipeline) fetch(ctx context.Context, u string) ([]byte, error) {
	status, body, err := p.transport.Get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !successful(status) {
		return nil, &StatusError{Code: status}
	}
	return body, nil
}

func (p *Pipeline) calendarURL(name string) string {
	escaped := url.PathEscape(name)
	if strings.Contains(p.opts.CalendarURL, "%s") {
		return fmt.Sprintf(p.opts.CalendarURL, escaped)
	}
	return strings.TrimRight(p.opts.CalendarURL, "/") + "/" + escaped
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
