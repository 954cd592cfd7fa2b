package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/groupcat/lode"
)

// ManifestModel is a scrollable table over the manifest entries of a run.
type ManifestModel struct {
	title    string
	table    table.Model
	quitting bool
}

// NewManifestModel creates a manifest view. data must be []lode.ManifestEntry.
func NewManifestModel(data any) (ManifestModel, error) {
	entries, ok := data.([]lode.ManifestEntry)
	if !ok {
		return ManifestModel{}, fmt.Errorf("invalid data type for %s: %T", ViewInspectRun, data)
	}

	title := "Run outputs"
	if len(entries) > 0 {
		title = "Run " + entries[0].RunID
	}
	columns := []table.Column{
		{Title: "Group", Width: 16},
		{Title: "Path", Width: 36},
		{Title: "Bytes", Width: 10},
		{Title: "Members", Width: 24},
		{Title: "SHA256", Width: 14},
	}
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, table.Row{
			e.Group,
			e.Path,
			fmt.Sprintf("%d", e.Bytes),
			strings.Join(e.Members, ","),
			shortHash(e.SHA256),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(min(len(rows)+1, 20)),
	)
	return ManifestModel{title: title, table: t}, nil
}

// Rows returns the number of table rows.
func (m ManifestModel) Rows() int {
	return len(m.table.Rows())
}

// Init implements tea.Model.
func (m ManifestModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ManifestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width - 4)
		m.table.SetHeight(max(msg.Height-6, 3))
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m ManifestModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headingStyle.Render(m.title))
	b.WriteString("\n")
	if m.Rows() == 0 {
		b.WriteString(keyStyle.Render("(no results)"))
	} else {
		b.WriteString(panelStyle.Render(m.table.View()))
	}
	return b.String() + "\n" + helpLine()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
