// Package retry provides exponential-backoff retry for outbound calls
// that fail with a transient amperrors.Kind — currently the embedding
// provider's EmbedBatch call.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/amp-proto/amp/internal/amperrors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts     int              // 0 = unlimited
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64          // jitter, 0-1
	RetryIf         func(error) bool // defaults to DefaultRetryIf
}

// DefaultConfig returns three attempts of exponential backoff starting
// at 100ms; New falls back to it when given a nil config.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}

// Operation is a retryable unit of work.
type Operation func(ctx context.Context) error

// Result carries the outcome of a retry run.
type Result struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Retrier runs an Operation under a Config.
type Retrier struct {
	config *Config
}

// New creates a retrier, normalizing an incomplete or nil config.
func New(config *Config) *Retrier {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	if config.RandomizeFactor < 0 {
		config.RandomizeFactor = 0
	} else if config.RandomizeFactor > 1 {
		config.RandomizeFactor = 1
	}
	if config.RetryIf == nil {
		config.RetryIf = DefaultRetryIf
	}
	return &Retrier{config: config}
}

// Do executes op, retrying per the retrier's config.
func (r *Retrier) Do(ctx context.Context, op Operation) *Result {
	start := time.Now()
	result := &Result{}

	var lastErr error
	delay := r.config.InitialDelay

retryLoop:
	for attempt := 1; r.config.MaxAttempts == 0 || attempt <= r.config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		if err := ctx.Err(); err != nil {
			lastErr = amperrors.Cancelled("retry")
			break
		}

		err := op(ctx)
		if err == nil {
			result.Duration = time.Since(start)
			return result
		}
		lastErr = err

		if !r.config.RetryIf(err) {
			break
		}
		if r.config.MaxAttempts > 0 && attempt >= r.config.MaxAttempts {
			break
		}

		nextDelay := r.jitter(delay)
		select {
		case <-time.After(nextDelay):
			delay = r.grow(delay)
		case <-ctx.Done():
			lastErr = amperrors.Cancelled("retry")
			break retryLoop
		}
	}

	result.Duration = time.Since(start)
	result.Err = lastErr
	return result
}

// jitter randomizes delay within the configured factor.
func (r *Retrier) jitter(delay time.Duration) time.Duration {
	if r.config.RandomizeFactor == 0 {
		return delay
	}
	delta := float64(delay) * r.config.RandomizeFactor
	min := float64(delay) - delta
	max := float64(delay) + delta
	return time.Duration(min + rand.Float64()*(max-min))
}

// grow applies the exponential multiplier, capped at MaxDelay.
func (r *Retrier) grow(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * r.config.Multiplier)
	if next > r.config.MaxDelay {
		return r.config.MaxDelay
	}
	return next
}

// DefaultRetryIf retries everything except a kind that means the
// request itself was wrong — retrying a validation failure or a
// not-found just burns the attempt budget on the same rejection.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	switch amperrors.As(err).Kind {
	case amperrors.KindValidation, amperrors.KindNotFound, amperrors.KindConflict, amperrors.KindAmbiguous, amperrors.KindCancelled:
		return false
	default:
		return true
	}
}

// RetryWithConfig runs op under config, returning the final error.
func RetryWithConfig(ctx context.Context, config *Config, op Operation) error {
	return New(config).Do(ctx, op).Err
}

// ExponentialBackoff builds a config for maxAttempts of doubling delay,
// capped at one minute — the shape every C1 provider call retries with.
func ExponentialBackoff(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:     maxAttempts,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        1 * time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.1,
		RetryIf:         DefaultRetryIf,
	}
}
