// Package retry provides the delay policy used when re-establishing a broken
// remote subscription.
package retry

import "time"

// Backoff computes the delay before the next attempt. Attempt numbering is
// 1-based; implementations must tolerate smaller values.
type Backoff interface {
	Next(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay on every failed attempt, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Next returns the delay for the given attempt.
func (b ExponentialBackoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// DefaultBackoff returns the policy the orchestrator falls back to: 100ms
// doubling up to 5s.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Base: 100 * time.Millisecond,
		Max:  5 * time.Second,
	}
}
