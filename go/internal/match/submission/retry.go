package submission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds delivery attempts and spaces them with exponential backoff.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	}
}

// Backoff returns the wait before retry number n (n >= 1).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(n-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it succeeds, returns an unrecoverable error, or the
// attempts run out. Waits are measured on clock. It returns the number of
// attempts made.
func (p RetryPolicy) Do(ctx context.Context, clock clockwork.Clock, op string, fn func(ctx context.Context) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if delay := p.Backoff(attempt - 1); delay > 0 {
				select {
				case <-ctx.Done():
					return attempt - 1, fmt.Errorf("%s: %w", op, ctx.Err())
				case <-clock.After(delay):
				}
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("op", op).
					Int("attempt", attempt).
					Msg("submission succeeded after retry")
			}
			return attempt, nil
		}
		lastErr = err

		if !IsRecoverable(err) || ctx.Err() != nil {
			return attempt, err
		}
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Msg("submission failed, retrying")
	}

	return attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}
