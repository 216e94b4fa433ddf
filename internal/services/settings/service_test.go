package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/j-veylop/complyscan/internal/models"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.json")
	svc, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := svc.Close(); err != nil {
			t.Logf("Close() failed: %v", err)
		}
	})

	return svc, path
}

// waitFor drains events until one of type want arrives.
func waitFor(t *testing.T, ch <-chan Event, want EventType) Event {
	t.Helper()

	timeout := time.After(3 * time.Second)
	for {
		select {
		case event := <-ch:
			if event.Type == want {
				return event
			}
		case <-timeout:
			t.Fatalf("timeout waiting for event type %v", want)
			return Event{}
		}
	}
}

func TestNew_CreatesDefaults(t *testing.T) {
	svc, path := newTestService(t)

	if got := svc.Get(); got != Defaults() {
		t.Errorf("Get() = %+v, want defaults", got)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("settings file was not created: %v", err)
	}
	var onDisk Settings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("settings file is not valid JSON: %v", err)
	}
	if onDisk != Defaults() {
		t.Errorf("file = %+v, want defaults", onDisk)
	}

	event := waitFor(t, svc.Events(), EventSettingsLoaded)
	if event.Settings != Defaults() {
		t.Errorf("loaded event settings = %+v", event.Settings)
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestNew_ExistingFileMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	content := `{"cost_limit_usd": 0.5, "scan_mode": "analyze_all"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	svc, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() {
		_ = svc.Close()
	}()

	got := svc.Get()
	if got.CostLimitUSD != 0.5 || got.ScanMode != models.ModeAnalyzeAll {
		t.Errorf("Get() = %+v", got)
	}
	if got.RateLimit != Defaults().RateLimit || got.PromptTimeoutDefault != TimeoutStop {
		t.Errorf("missing keys should keep defaults, got %+v", got)
	}
}

func TestNew_InvalidFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"NotJSON", "{"},
		{"BadMode", `{"scan_mode": "everything"}`},
		{"BadTimeoutPolicy", `{"prompt_timeout_default": "maybe"}`},
		{"BadRateLimit", `{"rate_limit": {"enabled": true, "max_per_minute": 0, "max_per_hour": 1, "max_per_day": 1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}
			if svc, err := New(path); err == nil {
				_ = svc.Close()
				t.Error("New() should fail")
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	svc, path := newTestService(t)

	var notified Settings
	svc.OnChange(func(s Settings) { notified = s })

	next := svc.Get()
	next.CostLimitUSD = 2.5
	next.PromptTimeoutDefault = TimeoutContinue
	if err := svc.Update(next); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	if got := svc.Get(); got != next {
		t.Errorf("Get() = %+v, want %+v", got, next)
	}
	if notified != next {
		t.Errorf("OnChange got %+v", notified)
	}
	if !svc.Get().ContinueOnTimeout() {
		t.Error("ContinueOnTimeout() should be true")
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer func() {
		_ = reopened.Close()
	}()
	if got := reopened.Get(); got != next {
		t.Errorf("persisted settings = %+v, want %+v", got, next)
	}
}

func TestUpdate_Invalid(t *testing.T) {
	svc, _ := newTestService(t)

	next := svc.Get()
	next.ScanMode = "bogus"
	if err := svc.Update(next); err == nil {
		t.Fatal("Update() should reject an unknown scan mode")
	}
	if svc.Get() != Defaults() {
		t.Error("rejected update must not change settings")
	}
}

func TestHotReload(t *testing.T) {
	svc, path := newTestService(t)
	events := svc.Events()
	waitFor(t, events, EventSettingsLoaded)

	next := Defaults()
	next.CostLimitUSD = 9
	data, err := json.Marshal(next)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	event := waitFor(t, events, EventSettingsChanged)
	if event.Settings.CostLimitUSD != 9 {
		t.Errorf("reloaded cost limit = %v, want 9", event.Settings.CostLimitUSD)
	}
	if svc.Get().CostLimitUSD != 9 {
		t.Errorf("Get().CostLimitUSD = %v, want 9", svc.Get().CostLimitUSD)
	}
}

func TestHotReload_BrokenFileKeepsPrevious(t *testing.T) {
	svc, path := newTestService(t)
	events := svc.Events()
	waitFor(t, events, EventSettingsLoaded)

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	event := waitFor(t, events, EventError)
	if event.Error == nil {
		t.Error("error event should carry an error")
	}
	if svc.Get() != Defaults() {
		t.Error("broken file must not replace settings")
	}
}

func TestClose_Twice(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}
