// Package config assembles engine settings from defaults, an optional YAML
// file and ADAPTIQ_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abhisek/adaptiq/internal/exposure"
	"github.com/abhisek/adaptiq/internal/logging"
	"github.com/abhisek/adaptiq/internal/selector"
	"github.com/abhisek/adaptiq/internal/session"
)

// Config holds all engine configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error. Default: info.
	LogLevel string `yaml:"log_level"`

	// Seed feeds the selector's random source. Zero draws a seed from the
	// clock at startup.
	Seed uint64 `yaml:"seed"`

	// ItemBank is the path of the YAML item bank.
	ItemBank string `yaml:"item_bank"`

	// WatchItemBank reloads the item bank when the file changes.
	WatchItemBank bool `yaml:"watch_item_bank"`

	// DBPath is the SQLite database. Empty resolves store.DefaultDBPath.
	DBPath string `yaml:"db_path"`

	Selector selector.Config          `yaml:"selector"`
	Session  session.Config           `yaml:"session"`
	Exposure exposure.ForwarderConfig `yaml:"exposure"`
}

// DefaultConfig returns a Config with the standard engine settings.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		ItemBank: "items.yaml",
		Selector: selector.DefaultConfig(),
		Session:  session.DefaultConfig(),
		Exposure: exposure.DefaultForwarderConfig(),
	}
}

// Load reads defaults, then the YAML file at path (if non-empty), then
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ADAPTIQ_* variables. Malformed numeric
// values are reported rather than ignored.
func (c *Config) ApplyEnv() error {
	var errs []error

	if v := os.Getenv("ADAPTIQ_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ADAPTIQ_ITEM_BANK"); v != "" {
		c.ItemBank = v
	}
	if v := os.Getenv("ADAPTIQ_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("ADAPTIQ_SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("ADAPTIQ_SEED: %w", err))
		} else {
			c.Seed = n
		}
	}
	if v := os.Getenv("ADAPTIQ_WATCH_ITEM_BANK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ADAPTIQ_WATCH_ITEM_BANK: %w", err))
		} else {
			c.WatchItemBank = b
		}
	}

	envInt("ADAPTIQ_MIN_ITEMS", &c.Session.Stopping.MinItems, &errs)
	envInt("ADAPTIQ_MAX_ITEMS", &c.Session.Stopping.MaxItems, &errs)
	envFloat("ADAPTIQ_SE_THRESHOLD", &c.Session.Stopping.StandardErrorThreshold, &errs)
	envFloat("ADAPTIQ_CONFIDENCE_LEVEL", &c.Session.Stopping.ConfidenceLevel, &errs)
	envFloat("ADAPTIQ_MAX_EXPOSURE_RATE", &c.Selector.MaxExposureRate, &errs)
	envFloat("ADAPTIQ_RANDOMIZATION_PERCENTILE", &c.Selector.RandomizationPercentile, &errs)
	envDuration("ADAPTIQ_IDLE_TIMEOUT", &c.Session.IdleTimeout, &errs)
	envDuration("ADAPTIQ_SWEEP_INTERVAL", &c.Session.SweepInterval, &errs)

	return errors.Join(errs...)
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := c.Selector.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Session.Stopping.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Session.MLE.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Session.EAP.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("session: idle timeout must be positive, got %s", c.Session.IdleTimeout))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("session: sweep interval must be positive, got %s", c.Session.SweepInterval))
	}
	for area, n := range c.Session.ContentTargets {
		if n < 0 {
			errs = append(errs, fmt.Errorf("session: content target for %q is negative", area))
		}
	}
	if c.Exposure.Retry.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("exposure: retry attempts must be positive, got %d", c.Exposure.Retry.MaxAttempts))
	}
	return errors.Join(errs...)
}

func envInt(key string, dst *int, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func envDuration(key string, dst *time.Duration, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
