// File: internal/config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package config loads the command settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/momentics/unixbridge/internal/logging"
)

// Config holds the settings shared by both commands. Flags override it.
type Config struct {
	Path          string        `env:"UNIXBRIDGE_PATH,default=/tmp/gst-unix.sock"`
	LogLevel      string        `env:"UNIXBRIDGE_LOG_LEVEL,default=info"`
	LogFormat     string        `env:"UNIXBRIDGE_LOG_FORMAT,default=text"`
	MetricsAddr   string        `env:"UNIXBRIDGE_METRICS_ADDR"`
	MaxQueued     int           `env:"UNIXBRIDGE_MAX_QUEUED,default=256"`
	StatsInterval time.Duration `env:"UNIXBRIDGE_STATS_INTERVAL,default=10s"`
	WaitTimeout   time.Duration `env:"UNIXBRIDGE_WAIT_TIMEOUT,default=0s"`
	BusSize       int           `env:"UNIXBRIDGE_BUS_SIZE,default=64"`
}

// Load reads the given dotenv files (".env" when none, ignored if absent)
// into the process environment without overriding it, then decodes Config.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load .env: %w", err)
		}
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("config: load %v: %w", files, err)
	}

	es, err := env.EnvironToEnvSet(os.Environ())
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return FromEnvSet(es)
}

// FromEnvSet decodes and validates a Config from es.
func FromEnvSet(es env.EnvSet) (*Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Path == "" {
		errs = append(errs, errors.New("UNIXBRIDGE_PATH must not be empty"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_LOG_LEVEL: %w", err))
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_LOG_FORMAT must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.LogFormat))
	}
	if c.MaxQueued <= 0 {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_MAX_QUEUED must be positive, got %d", c.MaxQueued))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_STATS_INTERVAL must not be negative, got %s", c.StatsInterval))
	}
	if c.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_WAIT_TIMEOUT must not be negative, got %s", c.WaitTimeout))
	}
	if c.BusSize <= 0 {
		errs = append(errs, fmt.Errorf("UNIXBRIDGE_BUS_SIZE must be positive, got %d", c.BusSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
