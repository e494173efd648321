package noise

import (
	"fmt"
	"time"
)

// Gate throttles a stream to at most one sample per Interval of simulation
// time. A zero interval lets every sample through as long as time advances.
type Gate struct {
	Interval time.Duration

	last   time.Duration
	primed bool
}

// NewGate creates a gate with the given minimum interval.
func NewGate(interval time.Duration) *Gate {
	return &Gate{Interval: interval}
}

// Allow reports whether a sample at now may be emitted and, if so, records
// it. It returns ErrSuppressed while the interval has not elapsed and
// ErrClockNonMonotonic when now does not advance past the last emission.
func (g *Gate) Allow(now time.Duration) error {
	if !g.primed {
		g.last = now
		g.primed = true
		return nil
	}
	elapsed := now - g.last
	if elapsed <= 0 {
		return fmt.Errorf("%w: now=%s last=%s", ErrClockNonMonotonic, now, g.last)
	}
	if elapsed < g.Interval {
		return ErrSuppressed
	}
	g.last = now
	return nil
}

// Since returns the time elapsed between now and the last emission, or
// fallback before the first emission.
func (g *Gate) Since(now time.Duration, fallback time.Duration) time.Duration {
	if !g.primed {
		return fallback
	}
	return now - g.last
}

// Last returns the time of the last emission and whether there was one.
func (g *Gate) Last() (time.Duration, bool) {
	return g.last, g.primed
}

// Reset forgets the last emission.
func (g *Gate) Reset() {
	g.last = 0
	g.primed = false
}
