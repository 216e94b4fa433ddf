package info

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/complyscan/internal/ui/styles"
	"github.com/j-veylop/complyscan/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderSettingsCard(),
		m.renderAboutCard(),
	}

	m.viewport.SetContent(lipgloss.JoinVertical(lipgloss.Left, sections...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration, scan settings and build information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 90)
}

func (m *Model) renderConfigCard() string {
	rows := []string{styles.CardTitleStyle.Render("Configuration"), ""}

	if m.config == nil {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
	} else {
		llm := styles.WarningTextStyle.Render("disabled (no ANTHROPIC_API_KEY)")
		if m.services != nil && m.services.LLMEnabled() {
			llm = styles.SuccessTextStyle.Render("enabled")
		}
		metrics := m.config.MetricsAddr
		if metrics == "" {
			metrics = "off"
		}

		rows = append(rows,
			m.renderConfigRow("Database", m.config.DatabasePath),
			m.renderConfigRow("Settings File", m.config.SettingsPath),
			m.renderConfigRow("Log File", m.config.LogPath),
			m.renderConfigRow("Log Level", m.config.LogLevel),
			m.renderConfigRow("LLM Analysis", llm),
			m.renderConfigRow("Model", m.config.AnthropicModel),
			m.renderConfigRow("Batch Size", fmt.Sprintf("%d files", m.config.BatchSize)),
			m.renderConfigRow("Prompt Timeout", m.config.CostPromptTimeout.String()),
			m.renderConfigRow("Metrics", metrics),
		)
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderSettingsCard() string {
	rows := []string{styles.CardTitleStyle.Render("Scan Settings"), ""}

	s := m.state.GetSettings()
	if s == nil {
		rows = append(rows, styles.HelpStyle.Render("Settings not loaded"))
		return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	budget := "disabled"
	if s.CostLimitUSD > 0 {
		budget = fmt.Sprintf("$%.2f per scan", s.CostLimitUSD)
	}
	limits := "off"
	if s.RateLimit.Enabled {
		limits = fmt.Sprintf("%d/min  %d/hour  %d/day", s.RateLimit.MaxPerMinute, s.RateLimit.MaxPerHour, s.RateLimit.MaxPerDay)
	}

	rows = append(rows,
		m.renderConfigRow("Scan Mode", string(s.ScanMode)),
		m.renderConfigRow("Cost Limit", budget),
		m.renderConfigRow("On Timeout", s.PromptTimeoutDefault),
		m.renderConfigRow("Rate Limit", limits),
	)
	if m.config != nil {
		rows = append(rows, "", styles.HelpStyle.Render("Edit "+m.config.SettingsPath+" to change; it reloads automatically."))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m *Model) renderConfigRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

func (m *Model) renderAboutCard() string {
	rows := []string{
		styles.CardTitleStyle.Render("About complyscan"),
		"",
		m.renderConfigRow("Version", version.GetVersion()),
		m.renderConfigRow("Build Date", version.GetDate()),
		m.renderConfigRow("Git Commit", version.GetCommit()),
		m.renderConfigRow("Go Version", runtime.Version()),
		m.renderConfigRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}
