package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

type logRecord struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer

	// Use JSON handler for easier parsing in tests
	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	testLogger := slog.New(handler)

	originalLogger := Logger
	Logger = testLogger
	defer func() { Logger = originalLogger }()

	tests := []struct {
		name  string
		fn    func(msg string, args ...any)
		level string
		msg   string
	}{
		{
			name:  "Info",
			fn:    Info,
			level: "INFO",
			msg:   "info message",
		},
		{
			name:  "Error",
			fn:    Error,
			level: "ERROR",
			msg:   "error message",
		},
		{
			name:  "Warn",
			fn:    Warn,
			level: "WARN",
			msg:   "warn message",
		},
		{
			name:  "Debug",
			fn:    Debug,
			level: "DEBUG",
			msg:   "debug message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.fn(tt.msg)

			var rec logRecord
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("failed to unmarshal log output: %v", err)
			}

			if rec.Msg != tt.msg {
				t.Errorf("expected msg %q, got %q", tt.msg, rec.Msg)
			}
			if rec.Level != tt.level {
				t.Errorf("expected level %q, got %q", tt.level, rec.Level)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	if Logger == nil {
		t.Error("Logger should be initialized")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Logger
	defer func() {
		Logger = originalLogger
		SetLevel("info")
	}()

	SetOutput(&buf)

	tests := []struct {
		level   string
		logFn   func(msg string, args ...any)
		visible bool
	}{
		{"debug", Debug, true},
		{"info", Debug, false},
		{"info", Info, true},
		{"warn", Info, false},
		{"bogus", Info, false},
		{"bogus", Warn, true},
		{"error", Warn, false},
		{"error", Error, true},
	}

	for _, tt := range tests {
		buf.Reset()
		SetLevel(tt.level)
		tt.logFn("level check", "scan_id", "s-1")

		if got := buf.Len() > 0; got != tt.visible {
			t.Errorf("level %q: output visible = %v, want %v", tt.level, got, tt.visible)
		}
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer

	originalLogger := Logger
	defer func() { Logger = originalLogger }()

	SetLevel("info")
	SetOutput(&buf)
	Info("redirected", "file", "main.go")

	if !strings.Contains(buf.String(), "redirected") || !strings.Contains(buf.String(), "file=main.go") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
