// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/complyscan/internal/ui/styles"
)

// sparkChars are the sparkline levels, low to high.
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderCostChart plots cumulative spend per checkpoint. When limit is
// positive a flat budget line is drawn alongside.
func RenderCostChart(points []float64, limit float64, width, height int) string {
	if len(points) == 0 {
		return styles.HelpStyle.Render("No spend recorded yet")
	}

	width = max(width, 20)
	height = max(height, 3)

	// asciigraph needs two points to draw a line
	data := points
	if len(data) == 1 {
		data = []float64{0, points[0]}
	}

	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(2),
		asciigraph.Caption("cumulative cost (USD)"),
	}

	if limit <= 0 {
		return asciigraph.Plot(data, append(opts, asciigraph.SeriesColors(asciigraph.Green))...)
	}

	budget := make([]float64, len(data))
	for i := range budget {
		budget[i] = limit
	}
	return asciigraph.PlotMany([][]float64{data, budget},
		append(opts, asciigraph.SeriesColors(asciigraph.Green, asciigraph.Red))...)
}

// RenderBarChart creates a simple horizontal bar chart.
func RenderBarChart(values []float64, labels []string, width int) string {
	if len(values) == 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	maxLabelLen := 0
	for _, l := range labels {
		maxLabelLen = max(maxLabelLen, len(l))
	}

	// Leave room for label and value
	barWidth := max(width-maxLabelLen-10, 10)

	lines := make([]string, 0, len(values))
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}

		barLen := max(int((v/maxVal)*float64(barWidth)), 0)
		line := fmt.Sprintf("%*s │%s %.0f", maxLabelLen, label, strings.Repeat("█", barLen), v)
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// RenderSeverityBars draws one bar per severity, most severe first.
func RenderSeverityBars(counts map[string]int, width int) string {
	order := []string{"critical", "high", "medium", "low"}
	values := make([]float64, len(order))
	for i, sev := range order {
		values[i] = float64(counts[sev])
	}

	lines := strings.Split(RenderBarChart(values, order, width), "\n")
	for i, line := range lines {
		lines[i] = styles.GetSeverityStyle(order[i]).Render(line)
	}
	return strings.Join(lines, "\n")
}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	// Sample values to fit width
	step := max(float64(len(values))/float64(width), 1)

	var result strings.Builder
	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		level := int((val / maxVal) * float64(len(sparkChars)-1))
		level = max(0, min(level, len(sparkChars)-1))
		result.WriteRune(sparkChars[level])
	}

	return result.String()
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}
