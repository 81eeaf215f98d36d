// Package retry runs an operation with exponential backoff.
//
// It is used for the websocket handshake with the remote agent, which is
// often started a moment after the tooling and refuses the first attempts:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    return dial()
//	}, nil)
//
// The wait before attempt n (n >= 1) is InitialBackoff * 2^(n-1), capped at
// MaxBackoff, plus a jitter share that grows with the attempt number.
// Cancelling ctx ends the loop during a wait.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the backoff schedule.
type Config struct {
	// MaxRetries is the maximum number of attempts. Values below 1 mean a
	// single attempt.
	MaxRetries int `yaml:"max_retries" env:"DEVPROF_DIAL_RETRIES"`

	// InitialBackoff is the wait before the second attempt.
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"DEVPROF_DIAL_BACKOFF"`

	// MaxBackoff caps the wait. Zero means no cap.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// Jitter is the fraction (0.0 to 1.0) of the backoff added as spread on
	// the last attempt; earlier attempts get a proportionally smaller share.
	Jitter float64 `yaml:"jitter"`
}

// ShouldRetryFunc reports whether err is worth another attempt. A nil
// ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do calls fn until it succeeds, shouldRetry rejects its error, or the
// attempts are exhausted. The final error wraps the last failure.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(cfg, attempt, attempts)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func backoff(cfg Config, attempt, attempts int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1)) * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && d > cfg.MaxBackoff {
		d = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		d += time.Duration(float64(d) * cfg.Jitter * float64(attempt) / float64(attempts))
	}

	return d
}
