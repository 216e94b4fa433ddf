package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/complyscan/internal/ui/styles"
)

const minBarWidth = 10

// newBar builds a static progress bar; callers render it with ViewAs.
func newBar(width int, from, to string) progress.Model {
	return progress.New(
		progress.WithScaledGradient(from, to),
		progress.WithWidth(max(width, minBarWidth)),
		progress.WithoutPercentage(),
	)
}

// RenderFileProgress renders "done/total" files as a bar.
func RenderFileProgress(done, total, width int) string {
	percent := 0.0
	if total > 0 {
		percent = float64(done) / float64(total)
	}
	label := styles.ProgressLabelStyle.Render(fmt.Sprintf(" %d/%d files", done, total))
	bar := newBar(width-lipgloss.Width(label), "#5A56E0", "#EE6FF8")
	return bar.ViewAs(percent) + label
}

// RenderBudget renders spend against the budget. A limit of zero or less
// means the budget is disabled and only the spend is shown.
func RenderBudget(cost, limit float64, width int) string {
	if limit <= 0 {
		return styles.HelpStyle.Render(fmt.Sprintf("$%.4f spent (no budget)", cost))
	}

	percent := cost / limit * 100
	label := styles.GetBudgetStyle(percent).Render(fmt.Sprintf(" $%.2f / $%.2f", cost, limit))
	bar := newBar(width-lipgloss.Width(label), "#51cf66", "#ff6b6b")
	return bar.ViewAs(min(cost/limit, 1)) + label
}

// TruncatePath shortens a path to width cells, keeping its tail.
func TruncatePath(path string, width int) string {
	if width <= 0 || ansi.StringWidth(path) <= width {
		return path
	}
	if width <= 3 {
		return ansi.Truncate(path, width, "")
	}
	cut := ansi.StringWidth(path) - width + 3
	return "..." + ansi.TruncateLeft(path, cut, "")
}
