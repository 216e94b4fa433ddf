package scans

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/complyscan/internal/app"
	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/scanner"
)

func newTestState() *app.State {
	state := app.NewState()
	state.TrackScan("scan-aaaaaaaaaa", "/src/alpha")
	state.TrackScan("scan-bbbbbbbbbb", "/src/beta")
	state.TrackScan("scan-cccccccccc", "/src/gamma")
	return state
}

func TestNew(t *testing.T) {
	m := New(app.NewState())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() != nil {
		t.Error("Init should return nil")
	}
}

func TestModel_Navigation(t *testing.T) {
	state := newTestState()
	m := New(state)

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	m.Update(down)
	if got := state.SelectedScanIndex(); got != 1 {
		t.Errorf("after down = %d, want 1", got)
	}

	m.Update(up)
	m.Update(up)
	if got := state.SelectedScanIndex(); got != 2 {
		t.Errorf("up from 0 should wrap to 2, got %d", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'g'}})
	if got := state.SelectedScanIndex(); got != 0 {
		t.Errorf("g = %d, want 0", got)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	if got := state.SelectedScanIndex(); got != 2 {
		t.Errorf("G = %d, want 2", got)
	}
}

func TestModel_NavigationWithoutScans(t *testing.T) {
	state := app.NewState()
	m := New(state)

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'G'}})
	if got := state.SelectedScanIndex(); got != 0 {
		t.Errorf("index = %d, want 0", got)
	}
}

func TestModel_ViewEmpty(t *testing.T) {
	m := New(app.NewState())
	m.SetSize(100, 40)

	if view := m.View(); !strings.Contains(view, "No scans") {
		t.Error("empty view should say there are no scans")
	}
}

func TestModel_ViewScans(t *testing.T) {
	state := newTestState()
	state.ApplyScanEvent(scanner.Event{Type: scanner.EventStarted, ScanID: "scan-aaaaaaaaaa", FilesTotal: 4, CostLimit: 2})
	state.ApplyScanEvent(scanner.Event{
		Type:       scanner.EventProgress,
		ScanID:     "scan-aaaaaaaaaa",
		File:       "auth.go",
		FilesDone:  1,
		FilesTotal: 4,
		Violations: 3,
		Cost:       0.5,
	})
	state.ApplyScanEvent(scanner.Event{
		Type:        scanner.EventFinished,
		ScanID:      "scan-bbbbbbbbbb",
		Status:      models.ScanAborted,
		AbortReason: models.AbortCostLimit,
	})

	m := New(state)
	m.SetSize(120, 80)
	view := m.View()

	for _, want := range []string{"/src/alpha", "scan-aaa", "1/4 files", "3 violations", "auth.go", "cost_limit", "Spend"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState())
	if len(m.ShortHelp()) != 2 {
		t.Errorf("ShortHelp = %d bindings, want 2", len(m.ShortHelp()))
	}
	if len(m.FullHelp()) != 2 {
		t.Errorf("FullHelp = %d groups, want 2", len(m.FullHelp()))
	}
}
