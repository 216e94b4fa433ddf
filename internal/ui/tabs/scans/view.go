package scans

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/complyscan/internal/app"
	"github.com/j-veylop/complyscan/internal/ui/components"
	"github.com/j-veylop/complyscan/internal/ui/styles"
)

// View renders the scans tab.
func (m *Model) View() string {
	scans := m.state.GetScans()

	sections := []string{m.renderTitle(scans)}
	if len(scans) == 0 {
		sections = append(sections, m.renderEmpty())
	} else {
		selected := m.state.SelectedScanIndex()
		sections = append(sections, m.renderScanList(scans, selected))
		if selected < len(scans) {
			sections = append(sections, m.renderCostCard(scans[selected]))
		}
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle(scans []app.ScanProgress) string {
	title := styles.TitleStyle.Render("Scans")

	var cost float64
	var violations int
	for _, p := range scans {
		cost += p.Cost
		violations += p.Violations
	}
	subtitle := styles.HelpStyle.Render(fmt.Sprintf("%d scans  %d violations  $%.4f spent", len(scans), violations, cost))

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func (m *Model) renderEmpty() string {
	rows := []string{
		styles.CardTitleStyle.Render("No scans"),
		"",
		styles.HelpStyle.Render("Nothing was started in this session."),
		styles.InfoTextStyle.Render("  ╰─▶ complyscan scan PATH"),
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderScanList(scans []app.ScanProgress, selected int) string {
	cardWidth := m.cardWidth()
	dividerWidth := max(cardWidth-8, 20)
	divider := lipgloss.NewStyle().Foreground(styles.Subtle).Render(
		"  ├" + strings.Repeat("─", dividerWidth) + "┤",
	)

	var rows []string
	for i, p := range scans {
		rows = append(rows, m.renderScanRow(p, i == selected, cardWidth-4))
		if i < len(scans)-1 {
			rows = append(rows, "", divider, "")
		}
	}

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderScanRow(p app.ScanProgress, selected bool, width int) string {
	indicator := lipgloss.NewStyle().Foreground(styles.Subtle).Render("○ ")
	if selected {
		indicator = lipgloss.NewStyle().Foreground(styles.Primary).Bold(true).Render("▶ ")
	}

	status := string(p.Status)
	if p.AwaitingDecision {
		status = "awaiting decision"
	} else if p.AbortReason != "" {
		status += " (" + string(p.AbortReason) + ")"
	}
	statusText := styles.GetStatusStyle(string(p.Status)).Render(status)

	pathWidth := max(width-lipgloss.Width(statusText)-14, 10)
	header := fmt.Sprintf("%s%s  %s  %s",
		indicator,
		lipgloss.NewStyle().Bold(true).Foreground(styles.TextPrimary).Render(components.TruncatePath(p.ProjectPath, pathWidth)),
		styles.HelpStyle.Render(shortID(p.ScanID)),
		statusText,
	)

	contentWidth := max(width-4, 20)
	lines := []string{
		header,
		"  " + components.RenderFileProgress(p.FilesDone, p.FilesTotal, contentWidth),
		"  " + components.RenderBudget(p.Cost, p.CostLimit, contentWidth),
	}

	details := fmt.Sprintf("%d violations", p.Violations)
	if !p.StartedAt.IsZero() {
		details += fmt.Sprintf("  elapsed %s", time.Since(p.StartedAt).Truncate(time.Second))
	}
	if p.Decision != "" {
		details += "  decision: " + p.Decision
	}
	if len(p.CostHistory) > 1 {
		details += "  " + components.RenderSparkline(p.CostHistory, 16)
	}
	lines = append(lines, "  "+styles.HelpStyle.Render(details))

	if p.CurrentFile != "" {
		lines = append(lines, "  "+styles.InfoTextStyle.Render(components.TruncatePath(p.CurrentFile, contentWidth)))
	}
	if p.Error != "" {
		lines = append(lines, "  "+styles.ErrorTextStyle.Render(p.Error))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m *Model) renderCostCard(p app.ScanProgress) string {
	cardWidth := m.cardWidth()

	rows := []string{
		fmt.Sprintf("%s %s",
			lipgloss.NewStyle().Foreground(styles.Primary).Render("$"),
			styles.CardTitleStyle.Render("Spend "+shortID(p.ScanID))),
		"",
	}

	chart := components.RenderCostChart(p.CostHistory, p.CostLimit, max(cardWidth-16, 30), 6)
	for line := range strings.SplitSeq(chart, "\n") {
		rows = append(rows, "  "+line)
	}
	if len(p.CostHistory) > 0 && p.CostLimit > 0 {
		rows = append(rows, "", "  "+components.RenderLegend([]components.LegendItem{
			{Label: "spend", Color: styles.Success},
			{Label: "budget", Color: styles.Error},
		}))
	}

	return styles.CardStyle.Width(cardWidth).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
