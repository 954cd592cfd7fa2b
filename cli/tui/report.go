package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/groupcat/runtime"
)

// ReportModel shows a run report as stat boxes plus group and output lists.
type ReportModel struct {
	report   *runtime.RunReport
	width    int
	quitting bool
}

// NewReportModel creates a report view. data must be a *runtime.RunReport.
func NewReportModel(data any) (ReportModel, error) {
	report, ok := data.(*runtime.RunReport)
	if !ok || report == nil {
		return ReportModel{}, fmt.Errorf("invalid data type for %s: %T", ViewInspectReport, data)
	}
	return ReportModel{report: report}, nil
}

// Init implements tea.Model.
func (m ReportModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ReportModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m ReportModel) View() string {
	if m.quitting {
		return ""
	}
	r := m.report

	var b strings.Builder
	b.WriteString(headingStyle.Render("Run " + r.RunID))
	b.WriteString("\n")
	b.WriteString(field("Outcome:", lipgloss.NewStyle().Foreground(outcomeColor(r.Outcome)).Render(string(r.Outcome))))
	if r.Message != "" {
		b.WriteString(field("Message:", textStyle.Render(r.Message)))
	}
	b.WriteString(field("Duration:", textStyle.Render((time.Duration(r.DurationMs) * time.Millisecond).String())))
	b.WriteString(field("Exit code:", textStyle.Render(fmt.Sprintf("%d", r.ExitCode))))
	b.WriteString("\n")

	var received, bytes, sinkFailures int64
	if r.Metrics != nil {
		received = r.Metrics.RecordsReceived
		bytes = r.Metrics.BytesEmitted
		sinkFailures = r.Metrics.SinkWriteFailure
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		tile("Records", received, highlightColor),
		tile("Groups", int64(len(r.Groups)), primaryColor),
		tile("Outputs", int64(len(r.Outputs)), successColor),
		tile("Bytes", bytes, highlightColor),
		tile("Errors", r.RecordErrors+sinkFailures, errorColor),
	))
	b.WriteString("\n\n")

	if len(r.Groups) > 0 {
		var g strings.Builder
		for _, group := range r.Groups {
			fmt.Fprintf(&g, "%s %s  %d records\n", keyStyle.Render(group.ID), groupState(group.Resolved), group.Records)
		}
		b.WriteString(panelStyle.Render(strings.TrimRight(g.String(), "\n")))
		b.WriteString("\n")
	}
	for _, o := range r.Outputs {
		fmt.Fprintf(&b, "%s %s\n", keyStyle.Render(o.Group), textStyle.Render(fmt.Sprintf("%s (%d bytes)", o.Path, o.Bytes)))
	}

	return b.String() + "\n" + helpLine()
}

func field(label, value string) string {
	return fmt.Sprintf("%s %s\n", keyStyle.Render(label), value)
}
