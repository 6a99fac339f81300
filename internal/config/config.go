package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the CLI configuration. Values are resolved in priority
// order: defaults, then the JSON config file, then CASESTREAM_*
// environment variables.
type Config struct {
	APIEndpoint string `json:"api_endpoint"`
	APIToken    string `json:"api_token"`
	LogLevel    string `json:"log_level"`
	Debug       bool   `json:"debug"`

	// Streaming options
	StreamTimeout     time.Duration `json:"stream_timeout"`
	MaxRetries        int           `json:"max_retries"`
	InitialRetryDelay time.Duration `json:"initial_retry_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxRetryDelay     time.Duration `json:"max_retry_delay"`
	BufferSize        int           `json:"buffer_size"`
}

// Load resolves configuration from defaults, an optional JSON file and
// CASESTREAM_* environment variables. A missing config file is not an
// error; a malformed one is.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		APIEndpoint:       "https://api.casestream.ai",
		LogLevel:          "info",
		StreamTimeout:     30 * time.Second,
		MaxRetries:        5,
		InitialRetryDelay: time.Second,
		BackoffMultiplier: 2.0,
		MaxRetryDelay:     30 * time.Second,
		BufferSize:        256,
	}

	if configPath == "" {
		configPath = os.Getenv("CASESTREAM_CONFIG_PATH")
		if configPath == "" {
			configPath = "cs-config.json"
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		var file fileConfig
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		file.applyTo(cfg)
	}

	applyEnv(cfg)

	return cfg, nil
}

// fileConfig mirrors Config with durations as strings so the JSON file
// can say "30s" instead of nanosecond counts.
type fileConfig struct {
	APIEndpoint       *string  `json:"api_endpoint"`
	APIToken          *string  `json:"api_token"`
	LogLevel          *string  `json:"log_level"`
	Debug             *bool    `json:"debug"`
	StreamTimeout     *string  `json:"stream_timeout"`
	MaxRetries        *int     `json:"max_retries"`
	InitialRetryDelay *string  `json:"initial_retry_delay"`
	BackoffMultiplier *float64 `json:"backoff_multiplier"`
	MaxRetryDelay     *string  `json:"max_retry_delay"`
	BufferSize        *int     `json:"buffer_size"`
}

func (f *fileConfig) applyTo(cfg *Config) {
	if f.APIEndpoint != nil {
		cfg.APIEndpoint = *f.APIEndpoint
	}
	if f.APIToken != nil {
		cfg.APIToken = *f.APIToken
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
	if f.Debug != nil {
		cfg.Debug = *f.Debug
	}
	if f.StreamTimeout != nil {
		if d, err := time.ParseDuration(*f.StreamTimeout); err == nil {
			cfg.StreamTimeout = d
		}
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	}
	if f.InitialRetryDelay != nil {
		if d, err := time.ParseDuration(*f.InitialRetryDelay); err == nil {
			cfg.InitialRetryDelay = d
		}
	}
	if f.BackoffMultiplier != nil {
		cfg.BackoffMultiplier = *f.BackoffMultiplier
	}
	if f.MaxRetryDelay != nil {
		if d, err := time.ParseDuration(*f.MaxRetryDelay); err == nil {
			cfg.MaxRetryDelay = d
		}
	}
	if f.BufferSize != nil {
		cfg.BufferSize = *f.BufferSize
	}
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("CASESTREAM_API_ENDPOINT", &cfg.APIEndpoint)
	setString("CASESTREAM_API_TOKEN", &cfg.APIToken)
	setString("CASESTREAM_LOG_LEVEL", &cfg.LogLevel)

	if v := os.Getenv("CASESTREAM_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv("CASESTREAM_STREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StreamTimeout = d
		}
	}
	if v := os.Getenv("CASESTREAM_MAX_RETRIES"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = i
		}
	}
	if v := os.Getenv("CASESTREAM_BUFFER_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.BufferSize = i
		}
	}
}

// Validate checks the resolved configuration for values the rest of the
// CLI cannot work with.
func (c *Config) Validate() error {
	if err := validateEndpoint(c.APIEndpoint); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %d", c.MaxRetries)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff_multiplier must be at least 1.0: %g", c.BackoffMultiplier)
	}
	if c.InitialRetryDelay <= 0 {
		return fmt.Errorf("initial_retry_delay must be positive: %s", c.InitialRetryDelay)
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return fmt.Errorf("max_retry_delay %s is below initial_retry_delay %s", c.MaxRetryDelay, c.InitialRetryDelay)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive: %d", c.BufferSize)
	}
	return nil
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("API endpoint cannot be empty")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid API endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme: %s (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("API endpoint must include host")
	}
	if u.Scheme == "http" && !strings.Contains(u.Host, "localhost") && !strings.Contains(u.Host, "127.0.0.1") {
		fmt.Fprintf(os.Stderr, "Warning: using non-HTTPS endpoint for non-localhost URL: %s\n", endpoint)
	}
	return nil
}
