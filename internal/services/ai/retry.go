// File: internal/services/ai/retry.go
package ai

import (
	"context"
	"time"
)

// RetryConfig bounds the attempts of a single backend call.
type RetryConfig struct {
	// Extra attempts after the first one.
	MaxRetries int
	// Backoff before retry n is Delay * 2^n.
	Delay time.Duration
	// Deadline applied to each attempt separately.
	Timeout time.Duration
	// Sleep waits between attempts; nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 1,
		Delay:      500 * time.Millisecond,
		Timeout:    60 * time.Second,
	}
}

func NewRetryConfig(config *Config) *RetryConfig {
	return &RetryConfig{
		MaxRetries: config.MaxRetries,
		Delay:      config.RetryDelay,
		Timeout:    config.Timeout,
	}
}

// RetryWithBackoff runs fn until it succeeds, fails with a non-transient
// error, or runs out of retries. The last error is returned unchanged.
func RetryWithBackoff(ctx context.Context, config *RetryConfig, label string, logger Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = noopLogger{}
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		lastErr = callWithTimeout(ctx, config.Timeout, fn)
		if lastErr == nil {
			return nil
		}

		if !IsTransient(lastErr) || attempt == config.MaxRetries {
			break
		}

		delay := config.Delay * time.Duration(1<<attempt)
		logger.Warn("retrying backend call",
			"label", label,
			"attempt", attempt+1,
			"max_retries", config.MaxRetries,
			"delay", delay,
			"reason", Detail(lastErr))

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func callWithTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
