package app

import (
	"time"

	"github.com/j-veylop/complyscan/internal/scanner"
	"github.com/j-veylop/complyscan/internal/services"
	"github.com/j-veylop/complyscan/internal/services/settings"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// SettingsLoadedMsg carries the settings snapshot read at startup.
type SettingsLoadedMsg struct {
	Settings settings.Settings
}

// ScansFinishedMsg is sent once every requested scan has returned.
type ScansFinishedMsg struct {
	Error   error
	Results []*scanner.Result
}

// CostDecisionMsg requests a continue or stop decision for a paused scan.
type CostDecisionMsg struct {
	ScanID  string
	Proceed bool
}

// CostDecisionResultMsg contains the result of delivering a decision.
type CostDecisionResultMsg struct {
	Error   error
	ScanID  string
	Proceed bool
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Message  string
	Type     NotificationType
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
