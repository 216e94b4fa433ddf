package ratelimit

import (
	"fmt"
	"math"
	"time"

	"github.com/j-veylop/complyscan/internal/clock"
)

// TokenBucket is a bounded counter refilled continuously at a fixed rate.
//
// Refill is computed as elapsed * rate and capped at capacity, so the
// result does not depend on how often the bucket is polled. A TokenBucket
// is not safe for concurrent use on its own; Limiter serializes access.
type TokenBucket struct {
	clock           clock.Clock
	capacity        int64
	refillPerSecond float64

	tokens    float64
	lastNanos int64
}

// NewTokenBucket creates a full bucket holding capacity tokens that refills
// at refillPerSecond tokens per second.
func NewTokenBucket(clk clock.Clock, capacity int64, refillPerSecond float64) (*TokenBucket, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("capacity must be >= 1, got: %d", capacity)
	}
	if refillPerSecond <= 0 {
		return nil, fmt.Errorf("refill rate must be > 0, got: %f", refillPerSecond)
	}

	return &TokenBucket{
		clock:           clk,
		capacity:        capacity,
		refillPerSecond: refillPerSecond,
		tokens:          float64(capacity),
		lastNanos:       clk.NowNanos(),
	}, nil
}

// TryConsume refills the bucket and takes one token if at least one is
// available. It reports whether a token was taken.
func (tb *TokenBucket) TryConsume() bool {
	tb.refill()
	if tb.tokens < 1.0 {
		return false
	}
	tb.tokens--
	return true
}

// TimeUntilAvailable refills the bucket and returns how long until one
// token is available. Zero means a token can be taken now.
func (tb *TokenBucket) TimeUntilAvailable() time.Duration {
	tb.refill()
	if tb.tokens >= 1.0 {
		return 0
	}
	missing := 1.0 - tb.tokens
	return time.Duration(math.Ceil(missing / tb.refillPerSecond * float64(time.Second)))
}

// Tokens returns the current token count after a refill.
func (tb *TokenBucket) Tokens() float64 {
	tb.refill()
	return tb.tokens
}

// Capacity returns the maximum number of tokens the bucket holds.
func (tb *TokenBucket) Capacity() int64 {
	return tb.capacity
}

// take removes one token without refilling. Callers must have checked
// availability under the same lock.
func (tb *TokenBucket) take() {
	tb.tokens--
}

func (tb *TokenBucket) refill() {
	now := tb.clock.NowNanos()
	elapsed := now - tb.lastNanos
	if elapsed <= 0 {
		return
	}
	seconds := float64(elapsed) / float64(time.Second)
	tb.tokens = math.Min(float64(tb.capacity), tb.tokens+seconds*tb.refillPerSecond)
	tb.lastNanos = now
}
