// Package clock abstracts time so rate limiting can be tested without sleeps.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock provides monotonic time in nanoseconds since an arbitrary epoch.
// Only differences between two readings are meaningful.
type Clock interface {
	NowNanos() int64
}

// SystemClock reads the process monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a SystemClock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowNanos returns nanoseconds elapsed since the clock was created. time.Since
// uses the monotonic reading, so wall clock adjustments do not affect it.
func (c *SystemClock) NowNanos() int64 {
	return int64(time.Since(c.start))
}

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a ManualClock starting at startNanos.
func NewManualClock(startNanos int64) *ManualClock {
	return &ManualClock{now: startNanos}
}

// NowNanos returns the current manual time.
func (c *ManualClock) NowNanos() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Negative durations are rejected.
func (c *ManualClock) Advance(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("delta must be >= 0, got: %s", d)
	}
	c.mu.Lock()
	c.now += int64(d)
	c.mu.Unlock()
	return nil
}
