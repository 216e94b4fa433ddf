package clock

import (
	"testing"
	"time"
)

func TestSystemClock_Monotonic(t *testing.T) {
	c := NewSystemClock()
	prev := c.NowNanos()
	for range 1000 {
		now := c.NowNanos()
		if now < prev {
			t.Fatalf("clock went backwards: %d < %d", now, prev)
		}
		prev = now
	}
}

func TestManualClock_Advance(t *testing.T) {
	c := NewManualClock(100)
	if got := c.NowNanos(); got != 100 {
		t.Fatalf("NowNanos = %d, want 100", got)
	}

	if err := c.Advance(time.Second); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got := c.NowNanos(); got != 100+int64(time.Second) {
		t.Errorf("NowNanos = %d, want %d", got, 100+int64(time.Second))
	}

	if err := c.Advance(-time.Nanosecond); err == nil {
		t.Error("Advance with negative delta should fail")
	}
}
