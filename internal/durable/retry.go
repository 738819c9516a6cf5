package durable

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines step-level retry behavior with exponential backoff.
// Only transient faults are retried; terminal faults abort immediately.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates the default step retry policy.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateBackoff returns the backoff for a zero-based attempt with
// ±25% jitter.
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// Execute runs fn until it succeeds, returns a terminal fault, or the
// attempt budget is exhausted. Exhaustion converts the last transient fault
// into an unavailable fault.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, name string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if IsTerminal(lastErr) {
			logger.Debug().
				Str("step", name).
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Terminal fault, failing immediately")
			return lastErr
		}

		if attempt < p.MaxAttempts-1 {
			backoff := p.CalculateBackoff(attempt)
			// A rate-limiting provider's own delay wins over the
			// computed backoff; retrying earlier just burns an attempt.
			if suggested := RetryAfterOf(lastErr); suggested > backoff {
				backoff = suggested
			}
			logger.Debug().
				Str("step", name).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying after backoff")

			select {
			case <-ctx.Done():
				return WrapFault(KindUnavailable, ctx.Err(), "cancelled while backing off")
			case <-time.After(backoff):
			}
		}
	}

	logger.Warn().
		Str("step", name).
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return Exhausted(lastErr)
}
