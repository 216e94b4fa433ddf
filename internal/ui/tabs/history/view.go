package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/complyscan/internal/models"
	"github.com/j-veylop/complyscan/internal/ui/components"
	"github.com/j-veylop/complyscan/internal/ui/styles"
)

// View renders the history tab.
func (m *Model) View() string {
	if m.loading {
		return m.renderLoading()
	}
	if m.errorMsg != "" {
		return m.renderError()
	}

	var content string
	switch {
	case m.detail != nil:
		content = m.renderDetail()
	case len(m.scans) == 0:
		return m.renderEmpty()
	default:
		content = m.renderList()
	}

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(styles.HelpStyle.Render("Loading scan history..."))
}

func (m *Model) renderError() string {
	content := fmt.Sprintf("%s %s",
		styles.ErrorTextStyle.Render("Error:"),
		m.errorMsg,
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) renderEmpty() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render("History"),
		"",
		styles.HelpStyle.Render("No scans stored yet."),
		styles.HelpStyle.Render("Finished scans appear here with their findings and spend."),
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func (m *Model) renderList() string {
	title := styles.TitleStyle.Render("History")
	subtitle := fmt.Sprintf("%d scans", len(m.scans))
	if !m.lastRefresh.IsZero() {
		subtitle += "  refreshed " + m.lastRefresh.Format("15:04:05")
	}

	header := styles.TableHeaderStyle.Render(fmt.Sprintf("  %-16s %-9s %-22s %-12s %-9s %s",
		"STARTED", "ID", "STATUS", "MODE", "FILES", "PROJECT"))

	rows := []string{header}
	for i, scan := range m.scans {
		status := string(scan.Status)
		if scan.AbortReason != "" {
			status += " (" + string(scan.AbortReason) + ")"
		}
		line := fmt.Sprintf("%-16s %-9s %s %-12s %-9s %s",
			scan.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(scan.ID),
			styles.GetStatusStyle(string(scan.Status)).Render(fmt.Sprintf("%-22s", status)),
			scan.Mode,
			fmt.Sprintf("%d/%d", scan.FilesScanned, scan.FilesTotal),
			components.TruncatePath(scan.ProjectPath, max(m.cardWidth()-80, 16)),
		)
		if i == m.selected {
			rows = append(rows, styles.TableSelectedStyle.Render("▶ "+line))
		} else {
			rows = append(rows, styles.TableCellStyle.Render(" "+line))
		}
	}

	card := styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))

	var footer string
	if m.confirmDelete {
		footer = styles.WarningTextStyle.Render("Press d again to delete the selected scan")
	} else {
		footer = styles.HelpStyle.Render("enter open  r refresh  d d delete")
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, styles.HelpStyle.Render(subtitle), "", card, footer)
}

func (m *Model) renderDetail() string {
	scan := m.detail.Scan
	sections := []string{
		styles.TitleStyle.Render("Scan " + shortID(scan.ID)),
		m.renderSummaryCard(),
	}
	if len(m.detail.Violations) > 0 {
		sections = append(sections, m.renderSeverityCard())
	}
	sections = append(sections, m.renderViolationsCard())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(16).
		Foreground(styles.TextMuted)
	return labelStyle.Render(label+":") + " " + lipgloss.NewStyle().Foreground(styles.TextPrimary).Render(value)
}

func (m *Model) renderSummaryCard() string {
	scan := m.detail.Scan

	status := styles.GetStatusStyle(string(scan.Status)).Render(string(scan.Status))
	if scan.AbortReason != "" {
		status += styles.HelpStyle.Render(" (" + string(scan.AbortReason) + ")")
	}

	rows := []string{
		styles.CardTitleStyle.Render("Summary"),
		"",
		m.renderRow("Project", scan.ProjectPath),
		m.renderRow("Status", status),
		m.renderRow("Mode", string(scan.Mode)),
		m.renderRow("Files", fmt.Sprintf("%d of %d scanned", scan.FilesScanned, scan.FilesTotal)),
		m.renderRow("Started", scan.StartedAt.Local().Format("2006-01-02 15:04:05")),
	}
	if !scan.FinishedAt.IsZero() {
		rows = append(rows, m.renderRow("Duration", scan.FinishedAt.Sub(scan.StartedAt).Round(time.Millisecond).String()))
	}
	if scan.Error != "" {
		rows = append(rows, m.renderRow("Error", styles.ErrorTextStyle.Render(scan.Error)))
	}

	barWidth := max(m.cardWidth()-26, 20)
	if cost := m.detail.Cost; cost != nil {
		rows = append(rows,
			m.renderRow("Spend", components.RenderBudget(cost.TotalCost, scan.CostLimit, barWidth)),
			m.renderRow("Tokens", fmt.Sprintf("%d in  %d out  %d cache read  %d cache write",
				cost.Usage.InputTokens, cost.Usage.OutputTokens, cost.Usage.CacheReadTokens, cost.Usage.CacheWriteTokens)),
			m.renderRow("LLM files", fmt.Sprintf("%d", cost.FilesAnalyzed)),
		)
	} else {
		rows = append(rows, m.renderRow("Spend", components.RenderBudget(0, scan.CostLimit, barWidth)))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderSeverityCard() string {
	counts := make(map[string]int)
	for _, v := range m.detail.Violations {
		counts[v.Severity.String()]++
	}

	rows := []string{styles.CardTitleStyle.Render("By severity"), ""}
	for line := range strings.SplitSeq(components.RenderSeverityBars(counts, max(m.cardWidth()-12, 30)), "\n") {
		rows = append(rows, "  "+line)
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderViolationsCard() string {
	violations := m.detail.Violations
	rows := []string{styles.CardTitleStyle.Render(fmt.Sprintf("Findings (%d)", len(violations))), ""}

	if len(violations) == 0 {
		rows = append(rows, styles.SuccessTextStyle.Render("  No violations found"))
	}

	textWidth := max(m.cardWidth()-8, 30)
	for i, v := range violations {
		sev := styles.GetSeverityStyle(v.Severity.String()).Render(fmt.Sprintf("%-8s", v.Severity))
		location := components.TruncatePath(fmt.Sprintf("%s:%d", v.FilePath, v.Line), max(textWidth-40, 20))
		line := fmt.Sprintf("%s %-10s %-7s %-9s %s", sev, v.ControlID, v.Method, v.Status, location)

		if i != m.selectedVio {
			rows = append(rows, styles.TableCellStyle.Render(" "+line))
			continue
		}

		rows = append(rows, styles.TableSelectedStyle.Render("▶ "+line))
		wrap := lipgloss.NewStyle().Width(textWidth).PaddingLeft(4)
		rows = append(rows, wrap.Render(v.Description))
		if v.Confidence != nil {
			rows = append(rows, wrap.Render(styles.HelpStyle.Render(fmt.Sprintf("confidence %d%%", *v.Confidence))))
		}
		if v.CodeSnippet != "" {
			rows = append(rows, wrap.Render(styles.InfoTextStyle.Render(v.CodeSnippet)))
		}
		if v.RegexReasoning != "" {
			rows = append(rows, wrap.Render(styles.HelpStyle.Render("regex: "+v.RegexReasoning)))
		}
		if v.LLMReasoning != "" {
			rows = append(rows, wrap.Render(styles.HelpStyle.Render("llm: "+v.LLMReasoning)))
		}
	}

	rows = append(rows, "", styles.HelpStyle.Render("b back  x dismiss  f fixed  r refresh"))

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
