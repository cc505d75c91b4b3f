// Package config holds the server's YAML configuration: model, defaults,
// load/save and validation.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// CronParser accepts standard five-field expressions and descriptors
// ("@daily", "@every 1h").
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Format is "console" (human readable) or "json".
	Format string `yaml:"format" json:"format"`
}

// SweepConfig controls the background reconciliation sweep.
type SweepConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Cron is evaluated in UTC. Default: midnight every day.
	Cron string `yaml:"cron" json:"cron"`
	// RunOnStart runs one sweep right after startup.
	RunOnStart bool `yaml:"run_on_start" json:"run_on_start"`
}

// RedisConfig enables the cross-instance sweep lease. An empty Addr
// disables it (single instance).
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password,omitempty" json:"-"`
	DB       int           `yaml:"db" json:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl" json:"lock_ttl"`
}

// FiscalYearConfig sets the month the default scheduling window starts in.
type FiscalYearConfig struct {
	StartMonth int `yaml:"start_month" json:"start_month"`
}

// CORSConfig lists browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Database is the SQLite file path (":memory:" for ephemeral).
	Database string `yaml:"database" json:"database"`

	Log        LogConfig        `yaml:"log" json:"log"`
	Sweep      SweepConfig      `yaml:"sweep" json:"sweep"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
	FiscalYear FiscalYearConfig `yaml:"fiscal_year" json:"fiscal_year"`
	CORS       CORSConfig       `yaml:"cors" json:"cors"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   ":8080",
		Database: "./data/timeline.db",
		Log:      LogConfig{Level: "info", Format: "console"},
		Sweep: SweepConfig{
			Enabled:    true,
			Cron:       "0 0 * * *",
			RunOnStart: true,
		},
		Redis:      RedisConfig{LockTTL: 5 * time.Minute},
		FiscalYear: FiscalYearConfig{StartMonth: int(time.April)},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Database == "" {
		c.Database = def.Database
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		c.Log.Format = def.Log.Format
	}

	if strings.TrimSpace(c.Sweep.Cron) == "" {
		c.Sweep.Cron = def.Sweep.Cron
	}
	if c.Redis.LockTTL <= 0 {
		c.Redis.LockTTL = def.Redis.LockTTL
	}
	if c.FiscalYear.StartMonth == 0 {
		c.FiscalYear.StartMonth = def.FiscalYear.StartMonth
	}
	if c.CORS.AllowedOrigins == nil {
		c.CORS.AllowedOrigins = def.CORS.AllowedOrigins
	}
}

// Validate reports the first setting that cannot be used as given.
func (c *Config) Validate() error {
	if _, err := CronParser.Parse(c.Sweep.Cron); err != nil {
		return fmt.Errorf("sweep.cron %q: %w", c.Sweep.Cron, err)
	}
	if c.FiscalYear.StartMonth < 1 || c.FiscalYear.StartMonth > 12 {
		return fmt.Errorf("fiscal_year.start_month must be 1..12, got %d", c.FiscalYear.StartMonth)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not a known level", c.Log.Level)
	}
	return nil
}

// FiscalYearStart returns the configured start month.
func (c *Config) FiscalYearStart() time.Month {
	return time.Month(c.FiscalYear.StartMonth)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled over the defaults, normalized and
//     validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
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

	tmp, err := os.CreateTemp(dir, ".timeline-config-*.tmp")
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
