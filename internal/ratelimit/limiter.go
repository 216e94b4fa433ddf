// Package ratelimit bounds outbound paid-detector calls with three token
// buckets (per minute, per hour, per day) behind one lock.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/j-veylop/complyscan/internal/clock"
)

// Window identifies one of the limiter's time windows.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Config holds the per-window quotas. It is copied into the Limiter and
// never changes afterwards.
type Config struct {
	Enabled      bool `json:"enabled"`
	MaxPerMinute int  `json:"max_per_minute"`
	MaxPerHour   int  `json:"max_per_hour"`
	MaxPerDay    int  `json:"max_per_day"`
}

// DefaultConfig returns conservative quotas for a single Anthropic key.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		MaxPerMinute: 50,
		MaxPerHour:   1000,
		MaxPerDay:    10000,
	}
}

// Validate checks that every quota is positive when limiting is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxPerMinute < 1 {
		return fmt.Errorf("max_per_minute must be >= 1, got: %d", c.MaxPerMinute)
	}
	if c.MaxPerHour < 1 {
		return fmt.Errorf("max_per_hour must be >= 1, got: %d", c.MaxPerHour)
	}
	if c.MaxPerDay < 1 {
		return fmt.Errorf("max_per_day must be >= 1, got: %d", c.MaxPerDay)
	}
	return nil
}

// Limiter admits paid calls only when the minute, hour and day buckets all
// have a token. It is shared by every scan in the process. One admission
// covers one outbound request, so callers that retry ask again per retry.
type Limiter struct {
	config Config

	mu      sync.Mutex
	windows []windowBucket
	calls   int64
}

type windowBucket struct {
	window Window
	bucket *TokenBucket
}

// New creates a Limiter from cfg. Buckets start full.
func New(cfg Config, clk clock.Clock) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{config: cfg}
	if !cfg.Enabled {
		return l, nil
	}

	quotas := []struct {
		window Window
		max    int
	}{
		{WindowMinute, cfg.MaxPerMinute},
		{WindowHour, cfg.MaxPerHour},
		{WindowDay, cfg.MaxPerDay},
	}
	for _, q := range quotas {
		rate := float64(q.max) / q.window.Duration().Seconds()
		bucket, err := NewTokenBucket(clk, int64(q.max), rate)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s bucket: %w", q.window, err)
		}
		l.windows = append(l.windows, windowBucket{window: q.window, bucket: bucket})
	}

	return l, nil
}

// Reconfigured returns a Limiter for cfg that keeps the usage already
// recorded by l. Each window present in both starts with its new capacity
// minus the tokens spent under the old one, never below zero, so editing
// quotas does not hand out a fresh window.
func (l *Limiter) Reconfigured(cfg Config, clk clock.Clock) (*Limiter, error) {
	next, err := New(cfg, clk)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next.calls = l.calls
	for _, prev := range l.windows {
		used := float64(prev.bucket.capacity) - prev.bucket.Tokens()
		for _, wb := range next.windows {
			if wb.window == prev.window {
				wb.bucket.tokens = max(0, float64(wb.bucket.capacity)-used)
			}
		}
	}
	return next, nil
}

// CheckAndConsume admits one call or returns a *LimitError. It never blocks
// waiting for tokens.
//
// When several windows are exhausted the reported window is the first of
// minute, hour, day in that order, and WaitSeconds is that window's wait.
// Tokens are taken from all three buckets or from none.
func (l *Limiter) CheckAndConsume() error {
	if !l.config.Enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var denied *LimitError
	for _, wb := range l.windows {
		wait := wb.bucket.TimeUntilAvailable()
		if wait > 0 && denied == nil {
			denied = &LimitError{
				Window:      wb.window,
				Wait:        wait,
				WaitSeconds: int64(math.Ceil(wait.Seconds())),
			}
		}
	}
	if denied != nil {
		return denied
	}

	for _, wb := range l.windows {
		wb.bucket.take()
	}
	l.calls++
	return nil
}

// Calls returns how many admissions have been granted.
func (l *Limiter) Calls() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// Config returns the configuration the limiter was built with.
func (l *Limiter) Config() Config {
	return l.config
}
