package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential backoff with jitter for retryable
// operations (Stage E step dispatch).
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the step-execution retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// Retry runs op with exponential backoff and jitter until it succeeds,
// the attempt budget is exhausted, or the context is cancelled. The
// attempt count includes the first try: MaxAttempts=1 means no retries.
func Retry(ctx context.Context, cfg *RetryConfig, op func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.Multiplier = cfg.Multiplier
	// RandomizationFactor defaults to 0.5 — jitter prevents synchronized
	// retries across parallel steps.

	retries := uint64(0)
	if cfg.MaxAttempts > 1 {
		retries = uint64(cfg.MaxAttempts - 1)
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
}

// Permanent marks an error as non-retryable: Retry returns it immediately
// without consuming further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
