package usecase

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff is a bounded exponential retry policy.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// DefaultBackoff is used when a usecase is built without an explicit policy.
var DefaultBackoff = Backoff{Attempts: 3, Initial: 500 * time.Millisecond, Max: 30 * time.Second}

func (b Backoff) withDefaults() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = DefaultBackoff.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	return b
}

// delay returns the wait before attempt n+1 with up to 20% jitter.
func (b Backoff) delay(n int) time.Duration {
	d := b.Initial
	for i := 1; i < n && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}

// retry runs fn until it succeeds, reports a non-retryable error, or attempts run out.
// It returns the number of attempts made and the last error.
func retry(ctx context.Context, b Backoff, fn func(attempt int) (retryable bool, err error)) (int, error) {
	b = b.withDefaults()
	var err error
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		var retryable bool
		retryable, err = fn(attempt)
		if err == nil || !retryable || attempt == b.Attempts {
			return attempt, err
		}
		timer := time.NewTimer(b.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
	return b.Attempts, err
}
