package guidance

import "time"

// Backoff computes the delay before the next poll. It starts at Base, doubles
// on each consecutive failure and never exceeds Max. A success resets it.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	failures int64
}

func NewBackoff(base, max time.Duration) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max}
}

func (b *Backoff) Failure() {
	b.failures++
}

func (b *Backoff) Success() {
	b.failures = 0
}

func (b *Backoff) Failures() int64 {
	return b.failures
}

// Interval is the delay to wait before the next poll
func (b *Backoff) Interval() time.Duration {
	interval := b.Base
	for i := int64(0); i < b.failures; i++ {
		interval *= 2
		if interval >= b.Max || interval <= 0 {
			return b.Max
		}
	}
	return interval
}
