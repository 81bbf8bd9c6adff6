package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"roomcal/internal/atomicfile"
)

// The config file is JSON (config.json). yaml.v3 reads it because JSON is
// a subset of YAML, which also lets operators write the same keys as YAML.

const (
	DefaultDataDir             = "data"
	DefaultSchedule            = "0 6 * * *"
	DefaultLocale              = "en"
	DefaultCurrency            = "USD"
	DefaultCalendarMonths      = 12
	DefaultHTTPTimeoutSeconds  = 60
	DefaultFirestoreCollection = "calendar_days"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the status server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// ListingIDs are the rooms whose calendars are fetched, in order.
	ListingIDs []string `yaml:"listing_ids" json:"listing_ids"`

	// MonthsAhead is the size of the window starting at the current month.
	// Zero produces a header-only CSV.
	MonthsAhead int `yaml:"months_ahead" json:"months_ahead"`

	// DataDir is where airbnb_<date>.csv files are written. Relative paths
	// are resolved against the directory holding the config file.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`

	// Timezone is the IANA zone that decides "today". Empty means local.
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`

	// Schedule is the cron spec used in daemon mode.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	Locale   string `yaml:"locale,omitempty" json:"locale,omitempty"`
	Currency string `yaml:"currency,omitempty" json:"currency,omitempty"`

	// CalendarMonths is how many months the calendar query asks for. It is
	// raised to MonthsAhead when smaller.
	CalendarMonths int `yaml:"calendar_months,omitempty" json:"calendar_months,omitempty"`

	ProxyURL           string `yaml:"proxy_url,omitempty" json:"proxy_url,omitempty"`
	APIKey             string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BrowserKey         bool   `yaml:"browser_key,omitempty" json:"browser_key,omitempty"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds,omitempty" json:"http_timeout_seconds,omitempty"`

	// Optional sinks. Each is disabled while its key is empty.
	ICSDir              string `yaml:"ics_dir,omitempty" json:"ics_dir,omitempty"`
	GCSBucket           string `yaml:"gcs_bucket,omitempty" json:"gcs_bucket,omitempty"`
	GCSPrefix           string `yaml:"gcs_prefix,omitempty" json:"gcs_prefix,omitempty"`
	FirestoreProject    string `yaml:"firestore_project,omitempty" json:"firestore_project,omitempty"`
	FirestoreCollection string `yaml:"firestore_collection,omitempty" json:"firestore_collection,omitempty"`

	// Listen enables the status server in daemon mode.
	Listen    string           `yaml:"listen,omitempty" json:"listen,omitempty"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		ListingIDs:  []string{},
		MonthsAhead: 3,
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g. the two-key config.json) still work.
func (c *Config) Normalize() {
	if c.ListingIDs == nil {
		c.ListingIDs = []string{}
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.Currency == "" {
		c.Currency = DefaultCurrency
	}
	if c.CalendarMonths <= 0 {
		c.CalendarMonths = DefaultCalendarMonths
	}
	if c.CalendarMonths < c.MonthsAhead {
		c.CalendarMonths = c.MonthsAhead
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = DefaultHTTPTimeoutSeconds
	}
	if c.FirestoreCollection == "" {
		c.FirestoreCollection = DefaultFirestoreCollection
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.MonthsAhead < 0 {
		return fmt.Errorf("months_ahead must not be negative, got %d", c.MonthsAhead)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone, or time.Local when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// HTTPTimeout returns the per-request timeout for the calendar client.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ApplyEnv overrides secrets and deployment-specific keys from the
// environment. Call it after .env has been loaded.
func (c *Config) ApplyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.APIKey, "ROOMCAL_API_KEY")
	override(&c.ProxyURL, "ROOMCAL_PROXY_URL")
	override(&c.GCSBucket, "ROOMCAL_GCS_BUCKET")
	override(&c.FirestoreProject, "ROOMCAL_FIRESTORE_PROJECT")
	override(&c.Listen, "ROOMCAL_LISTEN")
}

// resolvePaths anchors relative directories at the config file location,
// so the tool behaves the same whatever the working directory.
func (c *Config) resolvePaths(configPath string) {
	base := filepath.Dir(configPath)
	if !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Join(base, c.DataDir)
	}
	if c.ICSDir != "" && !filepath.IsAbs(c.ICSDir) {
		c.ICSDir = filepath.Join(base, c.ICSDir)
	}
}

// Load reads, normalizes and validates the config at path. A missing file
// is an error; use Save (or the -init flag) to create one.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists.
//   - Marshals cfg as indented JSON for *.json paths, YAML otherwise.
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

	data, err := marshal(path, cfg)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, data, 0o600)
}

func marshal(path string, cfg *Config) ([]byte, error) {
	if filepath.Ext(path) == ".json" {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(cfg)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
