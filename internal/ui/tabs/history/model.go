// Package history provides the history tab for browsing stored scans.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/complyscan/internal/app"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/services"
)

// historyLimit is how many scans the list loads.
const historyLimit = 50

// keyMap defines the key bindings specific to the history tab.
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Back    key.Binding
	Refresh key.Binding
	Delete  key.Binding
	Dismiss key.Binding
	Fixed   key.Binding
}

// defaultKeyMap returns the default key bindings for the history tab.
func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "open scan"),
		),
		Back: key.NewBinding(
			key.WithKeys("backspace", "b"),
			key.WithHelp("b", "back to list"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d d", "delete scan"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "dismiss finding"),
		),
		Fixed: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "mark fixed"),
		),
	}
}

// historyLoadedMsg is sent when the scan list is loaded.
type historyLoadedMsg struct {
	scans []models.Scan
}

// detailLoadedMsg is sent when one scan's findings are loaded.
type detailLoadedMsg struct {
	detail *services.ScanDetail
}

// scanDeletedMsg is sent after a scan was removed.
type scanDeletedMsg struct {
	scanID string
}

// violationUpdatedMsg is sent after a finding changed status.
type violationUpdatedMsg struct {
	status models.ViolationStatus
	id     int64
}

// historyErrorMsg is sent when there's an error loading history.
type historyErrorMsg struct {
	err string
}

// Model represents the history tab state.
type Model struct {
	state    *app.State
	services *services.Manager
	width    int
	height   int
	keys     keyMap
	viewport viewport.Model

	scans       []models.Scan
	selected    int
	detail      *services.ScanDetail
	selectedVio int

	confirmDelete bool
	loading       bool
	lastRefresh   time.Time
	errorMsg      string
}

// New creates a new history model.
func New(state *app.State, svc *services.Manager) *Model {
	return &Model{
		state:    state,
		services: svc,
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
	}
}

// Init initializes the history tab.
func (m *Model) Init() tea.Cmd {
	m.loading = true
	return m.loadHistoryCmd()
}

func (m *Model) loadHistoryCmd() tea.Cmd {
	svc := m.services
	return func() tea.Msg {
		if svc == nil {
			return historyErrorMsg{err: "Services not initialized"}
		}
		scans, err := svc.ListScans(context.Background(), historyLimit)
		if err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return historyLoadedMsg{scans: scans}
	}
}

func (m *Model) loadDetailCmd(scanID string) tea.Cmd {
	svc := m.services
	return func() tea.Msg {
		if svc == nil {
			return historyErrorMsg{err: "Services not initialized"}
		}
		detail, err := svc.GetScanDetail(context.Background(), scanID)
		if err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return detailLoadedMsg{detail: detail}
	}
}

func (m *Model) deleteScanCmd(scanID string) tea.Cmd {
	svc := m.services
	return func() tea.Msg {
		if svc == nil {
			return historyErrorMsg{err: "Services not initialized"}
		}
		if err := svc.DeleteScan(context.Background(), scanID); err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return scanDeletedMsg{scanID: scanID}
	}
}

func (m *Model) updateViolationCmd(id int64, status models.ViolationStatus) tea.Cmd {
	svc := m.services
	return func() tea.Msg {
		if svc == nil {
			return historyErrorMsg{err: "Services not initialized"}
		}
		if err := svc.UpdateViolationStatus(context.Background(), id, status); err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return violationUpdatedMsg{id: id, status: status}
	}
}

// Update handles messages for the history tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.scans = msg.scans
		m.selected = max(0, min(m.selected, len(m.scans)-1))
		m.loading = false
		m.lastRefresh = time.Now()
		m.errorMsg = ""

	case detailLoadedMsg:
		m.detail = msg.detail
		m.selectedVio = 0
		m.loading = false
		m.errorMsg = ""
		m.viewport.GotoTop()

	case scanDeletedMsg:
		m.detail = nil
		m.loading = true
		cmds = append(cmds, m.loadHistoryCmd(), notify(app.NotificationSuccess, fmt.Sprintf("Deleted scan %s", shortID(msg.scanID))))

	case violationUpdatedMsg:
		if m.detail != nil {
			for i := range m.detail.Violations {
				if m.detail.Violations[i].ID == msg.id {
					m.detail.Violations[i].Status = msg.status
				}
			}
		}

	case historyErrorMsg:
		m.loading = false
		m.errorMsg = msg.err
		cmds = append(cmds, notify(app.NotificationError, fmt.Sprintf("History error: %s", msg.err)))

	case app.ServiceEventMsg:
		if _, ok := msg.Event.(services.ScanDoneEvent); ok && m.detail == nil && !m.loading {
			m.loading = true
			cmds = append(cmds, m.loadHistoryCmd())
		}

	case app.TabSwitchMsg:
		if msg.Tab == app.TabHistory && m.detail == nil && !m.loading {
			m.loading = true
			cmds = append(cmds, m.loadHistoryCmd())
		}

	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	confirming := m.confirmDelete
	m.confirmDelete = false

	if m.detail != nil {
		return m.handleDetailKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		if len(m.scans) > 0 {
			m.selected = (m.selected + 1) % len(m.scans)
		}
	case key.Matches(msg, m.keys.Up):
		if len(m.scans) > 0 {
			m.selected = (m.selected - 1 + len(m.scans)) % len(m.scans)
		}
	case key.Matches(msg, m.keys.Open):
		if scan, ok := m.selectedScan(); ok {
			m.loading = true
			return m.loadDetailCmd(scan.ID)
		}
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m.loadHistoryCmd()
	case key.Matches(msg, m.keys.Delete):
		scan, ok := m.selectedScan()
		if !ok {
			return nil
		}
		if !confirming {
			m.confirmDelete = true
			return nil
		}
		return m.deleteScanCmd(scan.ID)
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) handleDetailKey(msg tea.KeyMsg) tea.Cmd {
	count := len(m.detail.Violations)

	switch {
	case key.Matches(msg, m.keys.Back):
		m.detail = nil
	case key.Matches(msg, m.keys.Down):
		if count > 0 {
			m.selectedVio = (m.selectedVio + 1) % count
		}
	case key.Matches(msg, m.keys.Up):
		if count > 0 {
			m.selectedVio = (m.selectedVio - 1 + count) % count
		}
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m.loadDetailCmd(m.detail.Scan.ID)
	case key.Matches(msg, m.keys.Dismiss):
		if v, ok := m.selectedViolation(); ok && v.Status == models.StatusPending {
			return m.updateViolationCmd(v.ID, models.StatusDismissed)
		}
	case key.Matches(msg, m.keys.Fixed):
		if v, ok := m.selectedViolation(); ok && v.Status == models.StatusPending {
			return m.updateViolationCmd(v.ID, models.StatusFixed)
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) selectedScan() (models.Scan, bool) {
	if m.selected < 0 || m.selected >= len(m.scans) {
		return models.Scan{}, false
	}
	return m.scans[m.selected], true
}

func (m *Model) selectedViolation() (models.Violation, bool) {
	if m.detail == nil || m.selectedVio >= len(m.detail.Violations) {
		return models.Violation{}, false
	}
	return m.detail.Violations[m.selectedVio], true
}

func notify(t app.NotificationType, message string) tea.Cmd {
	return func() tea.Msg {
		return app.AddNotificationMsg{Type: t, Message: message, Duration: app.DefaultNotificationDuration}
	}
}

// SetSize sets the available size for the history tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	if m.detail != nil {
		return []key.Binding{m.keys.Back, m.keys.Dismiss, m.keys.Fixed}
	}
	return []key.Binding{m.keys.Open, m.keys.Refresh, m.keys.Delete}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Up, m.keys.Down},
		{m.keys.Open, m.keys.Back, m.keys.Refresh},
		{m.keys.Delete, m.keys.Dismiss, m.keys.Fixed},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
