package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults tests resolution with no file and no environment
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.casestream.ai", cfg.APIEndpoint)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialRetryDelay)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, cfg.MaxRetryDelay)
	assert.Equal(t, 256, cfg.BufferSize)
	assert.False(t, cfg.Debug)
}

// TestLoad_FileOverridesDefaults tests JSON file resolution with
// human-readable durations
func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"api_endpoint": "https://staging.casestream.ai",
		"api_token": "file-token",
		"log_level": "debug",
		"stream_timeout": "45s",
		"max_retries": 8,
		"initial_retry_delay": "500ms",
		"buffer_size": 64
	}`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging.casestream.ai", cfg.APIEndpoint)
	assert.Equal(t, "file-token", cfg.APIToken)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 8, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.InitialRetryDelay)
	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier, "Unset file fields keep defaults")
}

// TestLoad_MalformedFileFails tests that a broken config file is an error
func TestLoad_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs-config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoad_EnvOverridesFile tests the resolution priority order
func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"api_token": "file-token",
		"max_retries": 8
	}`), 0o600))

	t.Setenv("CASESTREAM_API_TOKEN", "env-token")
	t.Setenv("CASESTREAM_MAX_RETRIES", "3")
	t.Setenv("CASESTREAM_STREAM_TIMEOUT", "10s")
	t.Setenv("CASESTREAM_DEBUG", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.APIToken)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.StreamTimeout)
	assert.True(t, cfg.Debug)
}

// TestConfig_Validate tests the resolved-config checks
func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "EmptyEndpoint", mutate: func(c *Config) { c.APIEndpoint = "" }},
		{name: "BadScheme", mutate: func(c *Config) { c.APIEndpoint = "ftp://api.casestream.ai" }},
		{name: "NoHost", mutate: func(c *Config) { c.APIEndpoint = "https://" }},
		{name: "NegativeRetries", mutate: func(c *Config) { c.MaxRetries = -1 }},
		{name: "MultiplierBelowOne", mutate: func(c *Config) { c.BackoffMultiplier = 0.5 }},
		{name: "NonPositiveInitialDelay", mutate: func(c *Config) { c.InitialRetryDelay = 0 }},
		{name: "MaxBelowInitialDelay", mutate: func(c *Config) { c.MaxRetryDelay = time.Millisecond }},
		{name: "NonPositiveBufferSize", mutate: func(c *Config) { c.BufferSize = 0 }},
	}

	assert.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
