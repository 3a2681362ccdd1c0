package channel

import (
	"math/rand"
	"time"
)

// Backoff shapes the reconnect delay curve.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64
	// Jitter randomizes each delay by +/- this fraction so channels
	// sharing an endpoint do not retry in lockstep.
	Jitter float64
}

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

func (b Backoff) zero() bool {
	return b.Min == 0 && b.Max == 0 && b.Factor == 0 && b.Jitter == 0
}

// Next returns the delay before the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	min := b.Min
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	max := b.Max
	if max <= 0 {
		max = 5 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := min
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
