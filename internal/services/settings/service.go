// Package settings provides the user's scan settings with file watching and persistence.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/j-veylop/complyscan/internal/logger"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/ratelimit"
)

// Timeout policies applied when a cost-limit prompt gets no answer.
const (
	TimeoutStop     = "stop"
	TimeoutContinue = "continue"
)

// Settings is the JSON document stored in the settings file.
type Settings struct {
	ScanMode             models.ScanMode  `json:"scan_mode"`
	PromptTimeoutDefault string           `json:"prompt_timeout_default"`
	RateLimit            ratelimit.Config `json:"rate_limit"`
	CostLimitUSD         float64          `json:"cost_limit_usd"`
}

// Defaults returns the settings written when no file exists yet.
func Defaults() Settings {
	return Settings{
		CostLimitUSD:         5,
		ScanMode:             models.ModeSmart,
		RateLimit:            ratelimit.DefaultConfig(),
		PromptTimeoutDefault: TimeoutStop,
	}
}

// Validate checks every field. A cost limit of zero or less disables the
// cost prompt and is accepted.
func (s Settings) Validate() error {
	if _, err := models.ParseScanMode(string(s.ScanMode)); err != nil {
		return err
	}
	switch s.PromptTimeoutDefault {
	case TimeoutStop, TimeoutContinue:
	default:
		return fmt.Errorf("prompt_timeout_default must be %q or %q, got: %q",
			TimeoutStop, TimeoutContinue, s.PromptTimeoutDefault)
	}
	if err := s.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate_limit: %w", err)
	}
	return nil
}

// ContinueOnTimeout reports whether an unanswered prompt lets the scan go on.
func (s Settings) ContinueOnTimeout() bool {
	return s.PromptTimeoutDefault == TimeoutContinue
}

// Event represents a settings service event.
type Event struct {
	Error    error
	Settings Settings
	Type     EventType
}

// EventType defines the type of settings event.
type EventType int

const (
	EventSettingsLoaded EventType = iota
	EventSettingsChanged
	EventError
)

// Service holds the current settings and reloads them when the file changes.
type Service struct {
	mu            sync.RWMutex
	current       Settings
	filePath      string
	watcher       *fsnotify.Watcher
	onChange      func(Settings)
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	closeOnce     sync.Once
}

// New loads settings from filePath, writing defaults when the file is
// missing, and starts watching it.
func New(filePath string) (*Service, error) {
	if filePath == "" {
		return nil, errors.New("settings path is required")
	}

	s := &Service{
		current:   Defaults(),
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	loaded, err := s.read()
	switch {
	case err == nil:
		s.current = loaded
	case os.IsNotExist(err):
		if err := s.write(s.current); err != nil {
			return nil, fmt.Errorf("failed to create settings file: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventSettingsLoaded, Settings: s.current})
	return s, nil
}

// Events returns the event channel for subscribing to settings changes.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// OnChange registers fn to run after every successful reload or update.
func (s *Service) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Get returns a snapshot of the current settings.
func (s *Service) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Path returns the settings file path.
func (s *Service) Path() string {
	return s.filePath
}

// Update validates and persists next.
func (s *Service) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.write(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.current = next
	onChange := s.onChange
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventSettingsChanged, Settings: next})
	if onChange != nil {
		onChange(next)
	}
	return nil
}

// read parses the settings file on top of the defaults so missing keys keep
// their default values.
func (s *Service) read() (Settings, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return Settings{}, err
	}

	parsed := Defaults()
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file: %w", err)
	}
	if err := parsed.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return parsed, nil
}

// write saves settings through a temp file and rename.
func (s *Service) write(settings Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// startWatcher watches the settings directory so editors that replace the
// file are picked up too.
func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

// watchLoop handles file system events with debouncing.
func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			s.mu.Lock()
			if s.debounceTimer != nil {
				s.debounceTimer.Stop()
			}
			s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
			s.mu.Unlock()

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange reloads settings after an external edit. A broken file
// leaves the previous settings in place.
func (s *Service) handleFileChange() {
	loaded, err := s.read()
	if err != nil {
		logger.Warn("ignoring settings change", "path", s.filePath, "error", err)
		s.sendEvent(Event{Type: EventError, Error: err, Settings: s.Get()})
		return
	}

	s.mu.Lock()
	if loaded == s.current {
		s.mu.Unlock()
		return
	}
	s.current = loaded
	onChange := s.onChange
	s.mu.Unlock()

	logger.Info("settings reloaded", "path", s.filePath)
	s.sendEvent(Event{Type: EventSettingsChanged, Settings: loaded})
	if onChange != nil {
		onChange(loaded)
	}
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher and cleans up resources.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.stopChan)

		s.mu.Lock()
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()

		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
