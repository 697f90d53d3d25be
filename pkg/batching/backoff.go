package batching

import (
	"context"
	"math"
	"time"
)

// MaxDelay is the longest delay Delay returns.
const MaxDelay = time.Duration(math.MaxInt64)

// Delay returns base * 2^attempt, saturating at MaxDelay. Attempt 0 returns
// base unchanged.
func Delay(base time.Duration, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return base
	}
	if attempt >= 63 || base > MaxDelay>>attempt {
		return MaxDelay
	}
	return base << attempt
}

// Backoff suspends the calling goroutine before a retry round.
type Backoff interface {
	Wait(ctx context.Context, attempt int) error
}

// BackoffFunc adapts a function to the Backoff interface.
type BackoffFunc func(ctx context.Context, attempt int) error

// Wait calls f.
func (f BackoffFunc) Wait(ctx context.Context, attempt int) error {
	return f(ctx, attempt)
}

// ExponentialBackoff waits Delay(Base, attempt). There is no jitter.
type ExponentialBackoff struct {
	Base time.Duration
}

// Wait blocks for the attempt's delay or until ctx is done, whichever comes
// first. Only the calling goroutine is suspended.
func (b ExponentialBackoff) Wait(ctx context.Context, attempt int) error {
	d := Delay(b.Base, attempt)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
