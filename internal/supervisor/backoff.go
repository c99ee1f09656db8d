package supervisor

import (
	"math/rand"
	"time"
)

// Backoff produces jittered exponential reconnect delays: the base delay
// doubles per failure up to a cap, with up to 50% additive jitter so the
// delay sequence stays non-decreasing until the cap.
type Backoff struct {
	base time.Duration
	max  time.Duration
	cur  time.Duration
}

// NewBackoff creates a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, cur: base}
}

// Next returns the delay to wait before the next attempt and advances
// the schedule.
func (b *Backoff) Next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d + time.Duration(rand.Int63n(int64(d/2)+1))
}

// Reset restores the base delay after a successful connection.
func (b *Backoff) Reset() {
	b.cur = b.base
}
