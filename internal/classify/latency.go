package classify

import (
	"context"
	"math/rand/v2"
	"time"
)

// Latency simulates the variable wait of an external computation.
// The zero value does not wait.
type Latency struct {
	Min time.Duration
	Max time.Duration
}

// DefaultLatency matches the pacing of a slow remote model call.
var DefaultLatency = Latency{Min: 800 * time.Millisecond, Max: 1500 * time.Millisecond}

// Duration picks a wait in [Min, Max].
func (l Latency) Duration() time.Duration {
	if l.Max <= l.Min {
		return max(l.Min, 0)
	}
	return l.Min + rand.N(l.Max-l.Min+1)
}

// Wait blocks for Duration or until ctx is done.
func (l Latency) Wait(ctx context.Context) error {
	d := l.Duration()
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
