package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"

	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "Asia/Kolkata"
	defaultHorizonMonths  = 3
	defaultPreviewCount   = 5
	defaultConcurrency    = 4
	defaultAutoGenCron    = "0 3 * * *"
	defaultMaxOpenConns   = 10
	defaultCalendarProdID = "-//faith-admin//recurring events//EN"
	defaultCalendarName   = "Church Events"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the admin API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// DatabaseConfig selects the event store.
type DatabaseConfig struct {
	// Driver is "memory" (default) or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a lib/pq connection string, used when Driver is "postgres".
	DSN          string `yaml:"dsn" json:"-"`
	MaxOpenConns int    `yaml:"max_open_conns" json:"max_open_conns"`
}

// AutoGenerateConfig controls the background materialization job.
type AutoGenerateConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Cron is a standard 5-field cron expression.
	Cron string `yaml:"cron" json:"cron"`
}

// CalendarConfig describes the exported iCalendar feed.
type CalendarConfig struct {
	ProductID string `yaml:"product_id" json:"product_id"`
	Name      string `yaml:"name" json:"name"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the admin API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone that anchors recurring series and "today".
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// HorizonMonths is the default generation window when a caller gives no
	// explicit horizon.
	HorizonMonths int `yaml:"horizon_months" json:"horizon_months"`

	// PreviewCount is the number of occurrences returned by the preview
	// endpoint.
	PreviewCount int `yaml:"preview_count" json:"preview_count"`

	// MaterializeConcurrency bounds how many series are generated in parallel
	// by bulk runs.
	MaterializeConcurrency int `yaml:"materialize_concurrency" json:"materialize_concurrency"`

	Database     DatabaseConfig     `yaml:"database" json:"database"`
	AutoGenerate AutoGenerateConfig `yaml:"auto_generate" json:"auto_generate"`
	Calendar     CalendarConfig     `yaml:"calendar" json:"calendar"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on the admin
	// endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// JWTSecret, if set, makes the admin endpoints accept HS256 bearer tokens
	// instead of basic auth.
	JWTSecret string `yaml:"jwt_secret,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 defaultListen,
		Timezone:               defaultTimezone,
		LogLevel:               "INFO",
		HorizonMonths:          defaultHorizonMonths,
		PreviewCount:           defaultPreviewCount,
		MaterializeConcurrency: defaultConcurrency,
		Database: DatabaseConfig{
			Driver:       DriverMemory,
			MaxOpenConns: defaultMaxOpenConns,
		},
		AutoGenerate: AutoGenerateConfig{
			Enabled: false,
			Cron:    defaultAutoGenCron,
		},
		Calendar: CalendarConfig{
			ProductID: defaultCalendarProdID,
			Name:      defaultCalendarName,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.HorizonMonths <= 0 {
		c.HorizonMonths = defaultHorizonMonths
	}
	if c.PreviewCount <= 0 {
		c.PreviewCount = defaultPreviewCount
	}
	if c.MaterializeConcurrency <= 0 {
		c.MaterializeConcurrency = defaultConcurrency
	}

	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres:
		c.Database.Driver = DriverPostgres
	default:
		// Unknown drivers fall back to memory rather than failing at boot.
		c.Database.Driver = DriverMemory
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaultMaxOpenConns
	}

	if c.AutoGenerate.Cron == "" {
		c.AutoGenerate.Cron = defaultAutoGenCron
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = defaultCalendarProdID
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = defaultCalendarName
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to time.Local when it is unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	return time.Local
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - In both cases environment overrides (see ApplyEnv) are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// caller decides whether an unwritable default is fatal
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides selected fields from FAITH_* environment variables.
// Secrets are expected to come from here rather than from the YAML file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("FAITH_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("FAITH_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
		c.Database.Driver = DriverPostgres
	}
	if v := os.Getenv("FAITH_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("FAITH_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
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

	tmp, err := os.CreateTemp(dir, ".faithadmin-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
