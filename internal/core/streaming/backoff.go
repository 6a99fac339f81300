package streaming

import (
	"fmt"
	"time"
)

// ReconnectionConfig defines the backoff schedule between reconnection
// attempts. Immutable once supplied.
type ReconnectionConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay"`
}

// DefaultReconnectionConfig returns the default reconnection schedule
func DefaultReconnectionConfig() ReconnectionConfig {
	return ReconnectionConfig{
		MaxAttempts:       5,
		InitialDelay:      1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxDelay:          30 * time.Second,
	}
}

// Validate checks the configuration for usable values
func (c ReconnectionConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max attempts cannot be negative, got %d", c.MaxAttempts)
	}
	if c.InitialDelay < 0 {
		return fmt.Errorf("initial delay cannot be negative, got %v", c.InitialDelay)
	}
	if c.BackoffMultiplier < 1.0 {
		return fmt.Errorf("backoff multiplier must be at least 1.0, got %v", c.BackoffMultiplier)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max delay %v is below initial delay %v", c.MaxDelay, c.InitialDelay)
	}
	return nil
}

// Delays returns the full backoff schedule: one delay per attempt, where
// delays[i] = min(initialDelay * multiplier^i, maxDelay). Pure and
// deterministic; the connection manager indexes it by its attempt counter.
func Delays(config ReconnectionConfig) []time.Duration {
	delays := make([]time.Duration, config.MaxAttempts)
	for i := range delays {
		delays[i] = DelayForAttempt(config, i)
	}
	return delays
}

// DelayForAttempt returns the capped geometric delay for a zero-based
// attempt index.
func DelayForAttempt(config ReconnectionConfig, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(config.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= config.BackoffMultiplier
		if time.Duration(delay) >= config.MaxDelay {
			return config.MaxDelay
		}
	}
	if time.Duration(delay) > config.MaxDelay {
		return config.MaxDelay
	}
	return time.Duration(delay)
}
