package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// NOTE: viper reads the file (plus ROOMFINDER_* environment overrides);
// writes go through yaml.v3 so the saved file only ever contains the
// fields below, with 0600 permissions.

const envPrefix = "ROOMFINDER"

// Config is the persisted user configuration.
type Config struct {
	// Room is the preferred (destination) room code, e.g. "A266".
	Room string `yaml:"room" mapstructure:"room"`

	// LastUpdated is when the calendar cache was last refreshed.
	LastUpdated time.Time `yaml:"last_updated" mapstructure:"last_updated"`

	// Timezone is the IANA zone the search window is expressed in.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`

	// SourcesURL lists the calendar sources as a JSON array of names.
	SourcesURL string `yaml:"sources_url" mapstructure:"sources_url"`

	// CalendarURL is the per-source feed; "%s" is replaced by the name.
	CalendarURL string `yaml:"calendar_url" mapstructure:"calendar_url"`

	// CacheDir holds the downloaded room calendars.
	CacheDir string `yaml:"cache_dir" mapstructure:"cache_dir"`

	// Refresh is an optional cron expression (e.g. "0 5 * * *"). When set,
	// the cache is stale once a scheduled time has passed since LastUpdated.
	Refresh string `yaml:"refresh,omitempty" mapstructure:"refresh"`

	// StaleAfter is the maximum cache age when Refresh is empty.
	StaleAfter time.Duration `yaml:"stale_after" mapstructure:"stale_after"`

	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`

	// Workers bounds concurrent downloads and room evaluations
	// (0 = number of CPUs).
	Workers int `yaml:"workers" mapstructure:"workers"`

	// Count is how many rooms a search returns.
	Count int `yaml:"count" mapstructure:"count"`
}

const (
	defaultRoom        = "C000"
	defaultTimezone    = "Europe/Berlin"
	defaultSourcesURL  = "https://api.dhbw.app/courses/KA/"
	defaultCalendarURL = "https://dhbw.app/ical/%s"
	defaultCacheDir    = "./var/roomfinder"
	defaultStaleAfter  = 24 * time.Hour
	defaultMaxRetries  = 3
	defaultRetryDelay  = 2 * time.Second
	defaultCount       = 10
)

// DefaultConfig returns an in-memory default configuration. LastUpdated is
// zero, so the first search refreshes.
func DefaultConfig() *Config {
	return &Config{
		Room:        defaultRoom,
		Timezone:    defaultTimezone,
		SourcesURL:  defaultSourcesURL,
		CalendarURL: defaultCalendarURL,
		CacheDir:    defaultCacheDir,
		StaleAfter:  defaultStaleAfter,
		MaxRetries:  defaultMaxRetries,
		RetryDelay:  defaultRetryDelay,
		Count:       defaultCount,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Room == "" {
		c.Room = defaultRoom
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.SourcesURL == "" {
		c.SourcesURL = defaultSourcesURL
	}
	if c.CalendarURL == "" {
		c.CalendarURL = defaultCalendarURL
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.Count <= 0 {
		c.Count = defaultCount
	}
	c.Refresh = strings.TrimSpace(c.Refresh)
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	if c.Refresh != "" {
		if _, err := cron.ParseStandard(c.Refresh); err != nil {
			return fmt.Errorf("refresh schedule %q: %w", c.Refresh, err)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// IsStale reports whether the calendar cache should be refreshed at now.
func (c *Config) IsStale(now time.Time) bool {
	if c.LastUpdated.IsZero() {
		return true
	}
	if c.Refresh != "" {
		sched, err := cron.ParseStandard(c.Refresh)
		if err == nil {
			return !now.Before(sched.Next(c.LastUpdated))
		}
	}
	return !now.Before(c.LastUpdated.Add(c.StaleAfter))
}

// Load loads configuration from the given YAML path on the OS filesystem.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs loads configuration from path on fsys.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read it with viper, applying ROOMFINDER_* environment overrides
//   - normalize defaults and validate
func LoadFs(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := fsys.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := SaveFs(fsys, path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	v := viper.New()
	v.SetFs(fsys)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range []string{
		"room", "last_updated", "timezone", "sources_url", "calendar_url", "cache_dir",
		"refresh", "stale_after", "max_retries", "retry_delay", "workers", "count",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path on the OS filesystem.
func Save(path string, cfg *Config) error {
	return SaveFs(afero.NewOsFs(), path, cfg)
}

// SaveFs normalizes cfg and replaces path on fsys with its YAML form. The
// file is staged next to path and renamed into place, so readers never see
// a partial config. The parent directory is created 0700, the file 0600.
func SaveFs(fsys afero.Fs, path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := afero.TempFile(fsys, dir, ".roomfinder-config-*.tmp")
	if err != nil {
		return fmt.Errorf("stage config: %w", err)
	}
	staged := tmp.Name()

	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if err := errors.Join(werr, tmp.Close()); err != nil {
		_ = fsys.Remove(staged)
		return fmt.Errorf("write config: %w", err)
	}

	if err := fsys.Chmod(staged, 0o600); err != nil {
		_ = fsys.Remove(staged)
		return err
	}
	if err := fsys.Rename(staged, path); err != nil {
		_ = fsys.Remove(staged)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
