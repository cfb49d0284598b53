package homepulse

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"
)

// RetryConfig configures retry behavior for history fetches.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the first).
	// Default: 3.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. Default: 100ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between retries. Default: 10s.
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff after each retry.
	// Default: 2.0.
	BackoffMultiplier float64

	// Jitter adds randomness to backoff, 0..1 where 0.1 means ±10%.
	// Default: 0.1.
	Jitter float64

	// RetryIf determines whether an error should be retried.
	// If nil, IsRetryable is used.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns a retry configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Retryer performs operations with automatic retry on transient failure.
type Retryer struct {
	config RetryConfig
}

// NewRetryer creates a retryer, patching invalid config fields.
func NewRetryer(config RetryConfig) *Retryer {
	def := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = def.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = def.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = def.BackoffMultiplier
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = def.Jitter
	}
	if config.RetryIf == nil {
		config.RetryIf = IsRetryable
	}
	return &Retryer{config: config}
}

// Do runs fn until it succeeds, the retry budget is spent, or the context is
// canceled. The last error is returned.
func (r *Retryer) Do(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}
		if !r.config.RetryIf(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// backoff computes the delay before the given attempt (1-based retries).
func (r *Retryer) backoff(attempt int) time.Duration {
	d := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if max := float64(r.config.MaxBackoff); d > max {
		d = max
	}
	if r.config.Jitter > 0 {
		d += d * r.config.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// IsRetryable classifies fetch errors: network failures and 5xx responses
// are transient; auth and decode failures are not.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Type {
		case FetchErrorTypeNetwork, FetchErrorTypeServer:
			return true
		default:
			return false
		}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
