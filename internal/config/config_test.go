package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/teamgrid
api_base_url: https://api.example.com
events_url: wss://api.example.com/events
request_timeout: 5s
max_attempts: 5
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/teamgrid", cfg.DataDir)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.Equal(t, "wss://api.example.com/events", cfg.EventsURL)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "debug", cfg.LogLevel)

	// unset fields keep defaults
	assert.Equal(t, 2*time.Second, cfg.ProbeMin)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_base_url: https://file.example.com\n"), 0o644))

	t.Setenv("TEAMGRID_API_BASE_URL", "https://env.example.com")
	t.Setenv("TEAMGRID_MAX_ATTEMPTS", "7")
	t.Setenv("TEAMGRID_REQUEST_TIMEOUT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.APIBaseURL)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data_dir", func(c *Config) { c.DataDir = "" }},
		{"empty api_base_url", func(c *Config) { c.APIBaseURL = "" }},
		{"zero max_attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero request_timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"inverted probe bounds", func(c *Config) { c.ProbeMin = time.Minute; c.ProbeMax = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			assert.True(t, apperrors.Is(err, apperrors.ErrConfig))
		})
	}
}
