// Package config loads engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
)

// Config holds all engine settings.
type Config struct {
	// DataDir is the directory holding the local sync database.
	DataDir string `yaml:"data_dir"`

	// APIBaseURL is the root of the remote workspace API.
	APIBaseURL string `yaml:"api_base_url"`

	// EventsURL is the optional websocket endpoint pushing reachability
	// events. Empty disables the push feed; the probe loop still runs.
	EventsURL string `yaml:"events_url"`

	// RequestTimeout bounds every remote call in a sync pass.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxAttempts is the per-item retry budget.
	MaxAttempts int `yaml:"max_attempts"`

	// ProbeMin/ProbeMax bound the jittered connectivity probe interval.
	ProbeMin time.Duration `yaml:"probe_min"`
	ProbeMax time.Duration `yaml:"probe_max"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir:        "./data",
		APIBaseURL:     "http://localhost:8080",
		RequestTimeout: 15 * time.Second,
		MaxAttempts:    3,
		ProbeMin:       2 * time.Second,
		ProbeMax:       60 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads configuration with precedence: defaults, then the YAML
// file at path (if non-empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "failed to parse config file", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from TEAMGRID_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TEAMGRID_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TEAMGRID_API_BASE_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("TEAMGRID_EVENTS_URL"); v != "" {
		c.EventsURL = v
	}
	if v := os.Getenv("TEAMGRID_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RequestTimeout = d
		}
	}
	if v := os.Getenv("TEAMGRID_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv("TEAMGRID_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return apperrors.New(apperrors.ErrConfig, "data_dir must not be empty")
	}
	if c.APIBaseURL == "" {
		return apperrors.New(apperrors.ErrConfig, "api_base_url must not be empty")
	}
	if c.MaxAttempts < 1 {
		return apperrors.New(apperrors.ErrConfig, fmt.Sprintf("max_attempts must be positive, got %d", c.MaxAttempts))
	}
	if c.RequestTimeout <= 0 {
		return apperrors.New(apperrors.ErrConfig, "request_timeout must be positive")
	}
	if c.ProbeMin <= 0 || c.ProbeMax < c.ProbeMin {
		return apperrors.New(apperrors.ErrConfig, "probe interval bounds are invalid")
	}
	return nil
}
