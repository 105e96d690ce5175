package lifecycle

import (
	"context"
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with ±20% jitter.
// It is not safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a new backoff with the given initial and max durations.
func NewBackoff(initial, max time.Duration) *Backoff {
	return &Backoff{
		initial: initial,
		max:     max,
		current: initial,
	}
}

// Next returns the jittered delay for this attempt and doubles the base
// delay for the following one, up to max.
func (b *Backoff) Next() time.Duration {
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Wait sleeps for Next() or until ctx is done, whichever comes first.
func (b *Backoff) Wait(ctx context.Context) error {
	t := time.NewTimer(b.Next())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reset resets the backoff to the initial duration.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// Current returns the base delay of the next attempt.
func (b *Backoff) Current() time.Duration {
	return b.current
}
