package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidationError describes a configuration value the engine cannot run
// with. It aborts a refresh pass before any feed is touched; the previous
// cached result stays authoritative.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Reason
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration. It is loaded once,
// validated, and then treated as immutable: the engine receives it by
// value-semantics convention and never mutates it mid-pass.
type Config struct {
	// Listen is the HTTP listen address for the Web API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone all feed instants are normalized into
	// (e.g. "Australia/Sydney").
	Timezone string `yaml:"timezone" json:"timezone"`

	// CalendarURLs is the ordered list of ICS feed endpoints. Free time
	// is only reported when every listed feed confirms it.
	CalendarURLs []string `yaml:"calendar_urls" json:"calendar_urls"`

	// StartOfDay / EndOfDay bound the daily working window, as whole
	// hours 0-23. Slots are derived inside [StartOfDay, EndOfDay).
	StartOfDay int `yaml:"start_of_day" json:"start_of_day"`
	EndOfDay   int `yaml:"end_of_day" json:"end_of_day"`

	// LookaheadDays is how many days ahead (starting today) to scan.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// IncludeCurrentDay includes today's remaining slots in the output.
	IncludeCurrentDay bool `yaml:"include_current_day" json:"include_current_day"`

	// ExcludeWeekends skips Saturdays and Sundays entirely.
	ExcludeWeekends bool `yaml:"exclude_weekends" json:"exclude_weekends"`

	// IgnoreAllDayEvents drops all-day and multi-day events instead of
	// treating them as busy blocks.
	IgnoreAllDayEvents bool `yaml:"ignore_all_day_events" json:"ignore_all_day_events"`

	// CustomText is the header line prefixed to the formatted output.
	CustomText string `yaml:"custom_text" json:"custom_text"`

	// RefreshCron is a cron-style schedule string (e.g. "*/5 * * * *")
	// driving the periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheFile is where the common free-slot map is persisted between
	// runs so the read path has a value before the first pass completes.
	CacheFile string `yaml:"cache_file" json:"cache_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "Australia/Sydney",
		CalendarURLs:       []string{},
		StartOfDay:         9,
		EndOfDay:           16,
		LookaheadDays:      7,
		IncludeCurrentDay:  false,
		ExcludeWeekends:    true,
		IgnoreAllDayEvents: true,
		CustomText:         "I'm free at the following times...",
		RefreshCron:        "*/5 * * * *",
		CacheFile:          "calendar_cache.json",
		LogLevel:           "info",
		BasicAuth:          nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Australia/Sydney"
	}
	if c.CalendarURLs == nil {
		c.CalendarURLs = []string{}
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = 7
	}
	if c.CustomText == "" {
		c.CustomText = "I'm free at the following times..."
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/5 * * * *"
	}
	if c.CacheFile == "" {
		c.CacheFile = "calendar_cache.json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first invalid field as a *ValidationError, or nil.
func (c *Config) Validate() error {
	if c.StartOfDay < 0 || c.StartOfDay > 23 {
		return &ValidationError{Field: "start_of_day", Reason: fmt.Sprintf("must be an hour 0-23, got %d", c.StartOfDay)}
	}
	if c.EndOfDay < 0 || c.EndOfDay > 23 {
		return &ValidationError{Field: "end_of_day", Reason: fmt.Sprintf("must be an hour 0-23, got %d", c.EndOfDay)}
	}
	if c.EndOfDay <= c.StartOfDay {
		return &ValidationError{Field: "end_of_day", Reason: fmt.Sprintf("must exceed start_of_day (%d <= %d)", c.EndOfDay, c.StartOfDay)}
	}
	if c.LookaheadDays < 1 {
		return &ValidationError{Field: "lookahead_days", Reason: fmt.Sprintf("must be at least 1, got %d", c.LookaheadDays)}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ValidationError{Field: "timezone", Reason: "unknown IANA timezone " + c.Timezone}
	}
	for _, raw := range c.CalendarURLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return &ValidationError{Field: "calendar_urls", Reason: "not an http(s) URL: " + raw}
		}
	}
	return nil
}

// Location resolves the configured timezone. Call Validate first; an
// invalid zone surfaces there as a ValidationError.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - unmarshal YAML over a default config, so absent keys keep their
//     defaults (this is what lets the boolean options default to true)
//   - normalize remaining zero values
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".freeslotd-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
