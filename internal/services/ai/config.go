// File: internal/services/ai/config.go
package ai

import (
	"fmt"
	"time"
)

type Config struct {
	// Backend root, e.g. http://localhost:1234 (no /v1 suffix).
	BaseURL string
	APIKey  string

	// Per-call timeout. Each retry attempt gets a fresh one.
	Timeout       time.Duration
	HealthTimeout time.Duration
	MaxRetries    int
	// Initial backoff; doubles on every further attempt.
	RetryDelay time.Duration

	SystemPrompt string
	Verbose      bool
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("backend base URL is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive")
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://localhost:1234",
		Timeout:       60 * time.Second,
		HealthTimeout: 8 * time.Second,
		MaxRetries:    1,
		RetryDelay:    500 * time.Millisecond,
	}
}

// healthTimeout is min(Timeout, HealthTimeout).
func (c *Config) healthTimeout() time.Duration {
	if c.HealthTimeout > 0 && c.HealthTimeout < c.Timeout {
		return c.HealthTimeout
	}
	return c.Timeout
}
