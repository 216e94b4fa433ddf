// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"sync"
	"time"

	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/scanner"
	"github.com/j-veylop/complyscan/internal/services/settings"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"

	maxNotifications = 10
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// ScanProgress is the live view of one scan.
type ScanProgress struct {
	StartedAt   time.Time
	ScanID      string
	ProjectPath string
	CurrentFile string
	Decision    string
	Error       string
	Status      models.ScanStatus
	AbortReason models.AbortReason
	// CostHistory holds cumulative spend after each file that changed it.
	CostHistory []float64
	FilesDone   int
	FilesTotal  int
	Violations  int
	Cost        float64
	CostLimit   float64
	// AwaitingDecision is set while the scan is paused at its cost limit.
	AwaitingDecision bool
}

// Finished reports whether the scan reached a terminal state.
func (p ScanProgress) Finished() bool {
	switch p.Status {
	case models.ScanCompleted, models.ScanAborted, models.ScanFailed:
		return true
	default:
		return false
	}
}

// State is the data shared by the application model and its tabs.
type State struct {
	mu sync.RWMutex

	scans         map[string]*ScanProgress
	scanOrder     []string
	selectedScan  int
	settings      *settings.Settings
	loading       map[string]bool
	notifications []Notification

	notificationSeq int
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		scans:         make(map[string]*ScanProgress),
		loading:       make(map[string]bool),
		notifications: make([]Notification, 0),
	}
}

// TrackScan registers a scan before its first event arrives.
func (s *State) TrackScan(scanID, projectPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scans[scanID]; ok {
		return
	}
	s.scans[scanID] = &ScanProgress{
		ScanID:      scanID,
		ProjectPath: projectPath,
		Status:      models.ScanIdle,
	}
	s.scanOrder = append(s.scanOrder, scanID)
}

// progressLocked returns the entry for scanID, creating it when an event
// arrives for an untracked scan.
func (s *State) progressLocked(scanID string) *ScanProgress {
	p, ok := s.scans[scanID]
	if !ok {
		p = &ScanProgress{ScanID: scanID, Status: models.ScanIdle}
		s.scans[scanID] = p
		s.scanOrder = append(s.scanOrder, scanID)
	}
	return p
}

// ApplyScanEvent folds a pipeline event into the scan's progress.
func (s *State) ApplyScanEvent(e scanner.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.progressLocked(e.ScanID)
	switch e.Type {
	case scanner.EventStarted:
		p.Status = models.ScanRunning
		p.StartedAt = time.Now()
		p.FilesTotal = e.FilesTotal
		p.CostLimit = e.CostLimit

	case scanner.EventProgress:
		p.Status = models.ScanRunning
		p.CurrentFile = e.File
		p.FilesDone = e.FilesDone
		p.FilesTotal = e.FilesTotal
		p.Violations = e.Violations
		if n := len(p.CostHistory); e.Cost > 0 && (n == 0 || p.CostHistory[n-1] != e.Cost) {
			p.CostHistory = append(p.CostHistory, e.Cost)
		}
		p.Cost = e.Cost

	case scanner.EventCostLimitReached:
		p.AwaitingDecision = true
		p.Cost = e.Cost
		p.CostLimit = e.CostLimit

	case scanner.EventCostLimitResolved:
		p.AwaitingDecision = false
		p.Decision = e.Decision

	case scanner.EventFinished:
		p.AwaitingDecision = false
		p.Status = e.Status
		p.AbortReason = e.AbortReason
		p.FilesDone = e.FilesDone
		p.FilesTotal = e.FilesTotal
		p.Violations = e.Violations
		p.Cost = e.Cost
		p.CurrentFile = ""
	}
}

// FinishScan records the outcome returned by the manager.
func (s *State) FinishScan(scanID string, res *scanner.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.progressLocked(scanID)
	p.AwaitingDecision = false
	p.CurrentFile = ""
	if res != nil {
		p.Status = res.Scan.Status
		p.AbortReason = res.Scan.AbortReason
		p.FilesDone = res.Scan.FilesScanned
		p.FilesTotal = res.Scan.FilesTotal
		p.Violations = len(res.Violations)
		p.Cost = res.Cost.TotalCost
		if p.ProjectPath == "" {
			p.ProjectPath = res.Scan.ProjectPath
		}
	}
	if err != nil {
		p.Status = models.ScanFailed
		p.Error = err.Error()
	}
}

// GetScans returns copies of all tracked scans in start order.
func (s *State) GetScans() []ScanProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ScanProgress, 0, len(s.scanOrder))
	for _, id := range s.scanOrder {
		p := *s.scans[id]
		p.CostHistory = append([]float64(nil), p.CostHistory...)
		out = append(out, p)
	}
	return out
}

// GetScan returns a copy of one scan's progress.
func (s *State) GetScan(scanID string) (ScanProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.scans[scanID]
	if !ok {
		return ScanProgress{}, false
	}
	out := *p
	out.CostHistory = append([]float64(nil), p.CostHistory...)
	return out, true
}

// PendingPrompt returns the oldest scan waiting for a cost decision.
func (s *State) PendingPrompt() (ScanProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.scanOrder {
		if p := s.scans[id]; p.AwaitingDecision {
			return *p, true
		}
	}
	return ScanProgress{}, false
}

// AllScansFinished reports whether every tracked scan is terminal.
func (s *State) AllScansFinished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.scans {
		if !p.Finished() {
			return false
		}
	}
	return true
}

// SelectedScanIndex returns the scan highlighted in the scans tab.
func (s *State) SelectedScanIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedScan
}

// SetSelectedScanIndex moves the highlight, clamped to the tracked scans.
func (s *State) SetSelectedScanIndex(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedScan = max(0, min(idx, len(s.scanOrder)-1))
}

// SetSettings stores the latest settings snapshot.
func (s *State) SetSettings(current settings.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &current
}

// GetSettings returns the latest settings snapshot, or nil before the first load.
func (s *State) GetSettings() *settings.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return nil
	}
	out := *s.settings
	return &out
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loading {
		s.loading[resource] = true
	} else {
		delete(s.loading, resource)
	}
}

// IsLoading reports whether resource is loading.
func (s *State) IsLoading(resource string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[resource]
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loading) > 0
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := time.Now().Format("20060102150405") + "-" + string(rune('A'+s.notificationSeq%26))

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}
