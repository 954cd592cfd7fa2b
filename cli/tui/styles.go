// Package tui provides Bubble Tea views for the groupcat CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI is read-only (run reports and manifests)
//   - TUI uses the same data payloads as non-TUI rendering
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/groupcat/types"
)

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	keyStyle     = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(mutedColor).Padding(1, 2)
	footerStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)

	// Run summary tiles; the border and figure take the tile's color.
	tileStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2).Width(20).Align(lipgloss.Center)
	tileFigureStyle  = lipgloss.NewStyle().Bold(true).Align(lipgloss.Center)
	tileCaptionStyle = lipgloss.NewStyle().Foreground(mutedColor).Align(lipgloss.Center)
)

// outcomeColor maps a run outcome to its palette color.
func outcomeColor(status types.OutcomeStatus) lipgloss.Color {
	switch status {
	case types.OutcomeSuccess:
		return successColor
	case types.OutcomeConfigError:
		return warningColor
	case types.OutcomeSourceFailure, types.OutcomeSinkFailure:
		return errorColor
	default:
		return highlightColor
	}
}

// groupState renders whether a group produced an output.
func groupState(resolved bool) string {
	if resolved {
		return lipgloss.NewStyle().Foreground(successColor).Render("resolved")
	}
	return lipgloss.NewStyle().Foreground(warningColor).Render("declined")
}

// tile renders one count of the run summary.
func tile(caption string, n int64, color lipgloss.Color) string {
	return tileStyle.BorderForeground(color).Render(lipgloss.JoinVertical(lipgloss.Center,
		tileFigureStyle.Foreground(color).Render(fmt.Sprintf("%d", n)),
		tileCaptionStyle.Render(caption),
	))
}
