package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"

	"roomfinder/internal/acquire"
	"roomfinder/internal/cache"
	"roomfinder/internal/config"
	"roomfinder/internal/free"
	appLog "roomfinder/internal/log"
	"roomfinder/internal/progress"
	"roomfinder/internal/room"
	"roomfinder/internal/search"
)

const version = "0.1.0"

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newCommand(os.Stdout).Run(ctx, os.Args)
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "roomfinder:", err)
		os.Exit(1)
	}
}

func newCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "roomfinder",
		Usage:   "find free rooms close to your room",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to config file"},
			&cli.StringFlag{Name: "cache-dir", Usage: "calendar cache directory (overrides config)"},
			&cli.StringFlag{Name: "room", Aliases: []string{"r"}, Usage: "destination room, saved as the new default"},
			&cli.BoolFlag{Name: "refetch", Aliases: []string{"f"}, Usage: "download all calendars again"},
			&cli.StringFlag{Name: "day", Aliases: []string{"d"}, Usage: "day to search (YYYY-MM-DD or DD.MM.YYYY)"},
			&cli.StringFlag{Name: "start", Aliases: []string{"t", "startTime"}, Usage: "window start (HH:MM), defaults to now"},
			&cli.StringFlag{Name: "end", Aliases: []string{"e", "endTime"}, Usage: "window end (HH:MM), defaults to midnight"},
			&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Usage: "number of rooms to list (overrides config)"},
			&cli.BoolFlag{Name: "debug", Usage: "verbose logging"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("debug") {
				appLog.SetLevel(appLog.LevelDebug)
			}
			return ctx, nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runFind(ctx, cmd, stdout)
		},
		Commands: []*cli.Command{
			{
				Name:      "events",
				Usage:     "list the events of one room on a day",
				ArgsUsage: "<room>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runEvents(ctx, cmd, stdout)
				},
			},
		},
	}
}

// app bundles what both commands need.
type app struct {
	cfgPath string
	cfg     *config.Config
	store   *cache.Store
	bar     *progress.Bar
}

func newApp(cmd *cli.Command, stdout io.Writer) (*app, error) {
	cfgPath := cmd.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if dir := cmd.String("cache-dir"); dir != "" {
		cfg.CacheDir = dir
	}

	appLog.Debug("effective config",
		"room", cfg.Room,
		"timezone", cfg.Timezone,
		"cache_dir", cfg.CacheDir,
		"last_updated", cfg.LastUpdated.Format(time.RFC3339),
		"refresh", cfg.Refresh,
		"stale_after", cfg.StaleAfter,
		"workers", cfg.Workers,
	)

	return &app{
		cfgPath: cfgPath,
		cfg:     cfg,
		store:   cache.NewOS(cfg.CacheDir),
		bar:     progress.NewBar(stdout),
	}, nil
}

func runFind(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	a, err := newApp(cmd, stdout)
	if err != nil {
		return err
	}
	cfg := a.cfg

	if r := cmd.String("room"); r != "" {
		if _, err := room.Parse(r); err != nil {
			return err
		}
		cfg.Room = room.Normalize(r)
		if err := cfg.Save(a.cfgPath); err != nil {
			appLog.Error("failed to save config", err, "config_path", a.cfgPath)
		}
	}

	loc := cfg.Location()
	now := time.Now().In(loc)
	w, err := buildWindow(now, cmd.String("day"), cmd.String("start"), cmd.String("end"))
	if err != nil {
		return err
	}

	count := cfg.Count
	if n := int(cmd.Int("count")); n > 0 {
		count = n
	}

	refresh := cmd.Bool("refetch") || cfg.IsStale(time.Now())

	pipeline := acquire.New(acquire.Options{
		SourcesURL:  cfg.SourcesURL,
		CalendarURL: cfg.CalendarURL,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Workers:     cfg.Workers,
		StaleAfter:  cfg.StaleAfter,
	}, acquire.NewHTTPTransport(0), a.store, a.bar)

	finder := search.NewFinder(a.store, refreshRecorder{pipeline: pipeline, app: a}, a.bar, cfg.Workers)

	appLog.Info("searching rooms",
		"destination", cfg.Room,
		"start", w.Start.Format(time.RFC3339),
		"end", w.End.Format(time.RFC3339),
		"count", count,
		"refresh", refresh,
	)

	results, err := finder.FindRooms(ctx, search.Query{
		Destination: cfg.Room,
		Window:      w,
		Limit:       count,
		Refresh:     refresh,
	})
	a.bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "nearest free rooms to %s (%s - %s):\n",
		cfg.Room, w.Start.Format("2006-01-02 15:04"), w.End.Format("15:04"))
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(stdout, "%s (unavailable: %v)\n", r.Room, r.Err)
		case !r.Free():
			fmt.Fprintf(stdout, "%s (busy)\n", r.Room)
		default:
			fmt.Fprintf(stdout, "%s (distance: %d)\n", r.Room, r.Distance)
		}
	}
	return nil
}

// refreshRecorder stamps LastUpdated in the config after a refresh that
// actually replaced the cache.
type refreshRecorder struct {
	pipeline *acquire.Pipeline
	app      *app
}

func (r refreshRecorder) Refresh(ctx context.Context, force bool) (acquire.Report, error) {
	report, err := r.pipeline.Refresh(ctx, force)
	if err == nil && report.Ran {
		r.app.cfg.LastUpdated = time.Now().UTC()
		if serr := r.app.cfg.Save(r.app.cfgPath); serr != nil {
			appLog.Error("failed to save config", serr, "config_path", r.app.cfgPath)
		}
	}
	return report, err
}

func runEvents(ctx context.Context, cmd *cli.Command, stdout io.Writer) error {
	if cmd.Args().Len() != 1 {
		return errors.New("events: expected exactly one room")
	}
	a, err := newApp(cmd, stdout)
	if err != nil {
		return err
	}

	loc := a.cfg.Location()
	day := time.Now().In(loc)
	if d := cmd.String("day"); d != "" {
		parsed, err := parseDate(d, loc)
		if err != nil {
			return err
		}
		day = parsed
	}

	finder := search.NewFinder(a.store, nil, nil, a.cfg.Workers)
	events, err := finder.RoomEvents(ctx, cmd.Args().First(), day)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s on %s:\n", room.Normalize(cmd.Args().First()), day.Format("2006-01-02"))
	if len(events) == 0 {
		fmt.Fprintln(stdout, "no events")
	}
	for _, ev := range events {
		if ev.AllDay() {
			fmt.Fprintf(stdout, "all day      %s\n", ev.Summary)
			continue
		}
		fmt.Fprintf(stdout, "%s-%s  %s\n",
			ev.Start.In(loc).Format("15:04"), ev.End.In(loc).Format("15:04"), ev.Summary)
	}
	return nil
}

// buildWindow applies the CLI overrides to the default window
// [now, next midnight).
func buildWindow(now time.Time, day, start, end string) (free.Window, error) {
	loc := now.Location()
	startAt := now
	y, m, d := now.Date()
	endAt := time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)

	if day != "" {
		date, err := parseDate(day, loc)
		if err != nil {
			return free.Window{}, err
		}
		startAt = onDate(date, startAt)
		endAt = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	}
	if start != "" {
		clock, err := parseClock(start)
		if err != nil {
			return free.Window{}, err
		}
		startAt = onDate(startAt, clock)
	}
	if end != "" {
		clock, err := parseClock(end)
		if err != nil {
			return free.Window{}, err
		}
		endAt = onDate(startAt, clock)
	}

	return free.NewWindow(startAt, endAt, loc), nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s", s)
}

func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time: %s", s)
	}
	return t, nil
}

// onDate combines the date of date with the clock of clock, in date's zone.
func onDate(date, clock time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, date.Location())
}
