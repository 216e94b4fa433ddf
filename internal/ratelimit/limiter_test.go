package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/j-veylop/complyscan/internal/clock"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *clock.ManualClock) {
	t.Helper()
	clk := clock.NewManualClock(0)
	l, err := New(cfg, clk)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return l, clk
}

func TestLimiter_DisabledAcceptsEverything(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: false})

	for i := range 10000 {
		if err := l.CheckAndConsume(); err != nil {
			t.Fatalf("admission %d rejected: %v", i, err)
		}
	}
	if l.Calls() != 0 {
		t.Errorf("disabled limiter should not count calls, got %d", l.Calls())
	}
}

func TestLimiter_PerMinuteQuota(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: true, MaxPerMinute: 5, MaxPerHour: 100, MaxPerDay: 1000})

	for i := range 5 {
		if err := l.CheckAndConsume(); err != nil {
			t.Fatalf("admission %d rejected: %v", i+1, err)
		}
	}

	err := l.CheckAndConsume()
	if err == nil {
		t.Fatal("6th admission should be rejected")
	}
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("error should wrap ErrRateLimitExceeded, got %v", err)
	}
	le := AsLimitError(err)
	if le == nil {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if le.Window != WindowMinute {
		t.Errorf("Window = %s, want minute", le.Window)
	}
	if le.WaitSeconds <= 0 {
		t.Errorf("WaitSeconds = %d, want > 0", le.WaitSeconds)
	}
	if l.Calls() != 5 {
		t.Errorf("Calls = %d, want 5", l.Calls())
	}
}

func TestLimiter_ReconfiguredKeepsUsage(t *testing.T) {
	tests := []struct {
		name      string
		perMinute int
		admitted  int
	}{
		{"lower quota", 4, 1},
		{"quota already spent", 2, 0},
		{"higher quota", 10, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, clk := newTestLimiter(t, Config{Enabled: true, MaxPerMinute: 5, MaxPerHour: 100, MaxPerDay: 1000})
			for range 3 {
				if err := l.CheckAndConsume(); err != nil {
					t.Fatalf("admission rejected: %v", err)
				}
			}

			next, err := l.Reconfigured(Config{Enabled: true, MaxPerMinute: tt.perMinute, MaxPerHour: 100, MaxPerDay: 1000}, clk)
			if err != nil {
				t.Fatalf("Reconfigured failed: %v", err)
			}
			if next.Calls() != 3 {
				t.Errorf("Calls = %d, want 3", next.Calls())
			}

			for i := range tt.admitted {
				if err := next.CheckAndConsume(); err != nil {
					t.Fatalf("admission %d rejected: %v", i+1, err)
				}
			}
			le := AsLimitError(next.CheckAndConsume())
			if le == nil || le.Window != WindowMinute {
				t.Errorf("expected a minute window denial after %d admissions, got %v", tt.admitted, le)
			}
		})
	}
}

func TestLimiter_ReconfiguredFromDisabled(t *testing.T) {
	l, clk := newTestLimiter(t, Config{Enabled: false})
	_ = l.CheckAndConsume()

	next, err := l.Reconfigured(Config{Enabled: true, MaxPerMinute: 2, MaxPerHour: 100, MaxPerDay: 1000}, clk)
	if err != nil {
		t.Fatalf("Reconfigured failed: %v", err)
	}
	for i := range 2 {
		if err := next.CheckAndConsume(); err != nil {
			t.Fatalf("admission %d rejected: %v", i+1, err)
		}
	}
	if err := next.CheckAndConsume(); err == nil {
		t.Error("third admission should be rejected")
	}
}

func TestLimiter_ReconfiguredRejectsInvalid(t *testing.T) {
	l, clk := newTestLimiter(t, DefaultConfig())
	if _, err := l.Reconfigured(Config{Enabled: true}, clk); err == nil {
		t.Error("invalid config should be rejected")
	}
}

func TestLimiter_NoPartialDebit(t *testing.T) {
	l, clk := newTestLimiter(t, Config{Enabled: true, MaxPerMinute: 10, MaxPerHour: 2, MaxPerDay: 100})

	_ = l.CheckAndConsume()
	_ = l.CheckAndConsume()

	minuteBefore := l.windows[0].bucket.Tokens()
	dayBefore := l.windows[2].bucket.Tokens()

	err := l.CheckAndConsume()
	if le := AsLimitError(err); le == nil || le.Window != WindowHour {
		t.Fatalf("expected hour window denial, got %v", err)
	}

	if got := l.windows[0].bucket.Tokens(); got != minuteBefore {
		t.Errorf("minute bucket debited on denial: %f -> %f", minuteBefore, got)
	}
	if got := l.windows[2].bucket.Tokens(); got != dayBefore {
		t.Errorf("day bucket debited on denial: %f -> %f", dayBefore, got)
	}

	// Slightly more than half an hour refills one hourly token.
	_ = clk.Advance(31 * time.Minute)
	if err := l.CheckAndConsume(); err != nil {
		t.Errorf("admission after refill rejected: %v", err)
	}
}

func TestLimiter_ReportsMinuteFirst(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: true, MaxPerMinute: 1, MaxPerHour: 1, MaxPerDay: 1})

	_ = l.CheckAndConsume()
	le := AsLimitError(l.CheckAndConsume())
	if le == nil {
		t.Fatal("expected denial")
	}
	if le.Window != WindowMinute {
		t.Errorf("Window = %s, want minute when all windows are exhausted", le.Window)
	}
	if le.WaitSeconds != 60 {
		t.Errorf("WaitSeconds = %d, want 60", le.WaitSeconds)
	}
}

func TestLimiter_ConcurrentCallersNeverExceedQuota(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: true, MaxPerMinute: 25, MaxPerHour: 1000, MaxPerDay: 1000})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				if l.CheckAndConsume() == nil {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 25 {
		t.Errorf("admitted = %d, want exactly 25", admitted.Load())
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"disabled ignores quotas", Config{Enabled: false}, false},
		{"zero minute", Config{Enabled: true, MaxPerMinute: 0, MaxPerHour: 1, MaxPerDay: 1}, true},
		{"zero hour", Config{Enabled: true, MaxPerMinute: 1, MaxPerHour: 0, MaxPerDay: 1}, true},
		{"zero day", Config{Enabled: true, MaxPerMinute: 1, MaxPerHour: 1, MaxPerDay: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
