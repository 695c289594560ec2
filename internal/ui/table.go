package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/untoldecay/mission-control/internal/types"
)

// Table Styles
var (
	TableHeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorAccent).
		Align(lipgloss.Center)

	TableBorderStyle = lipgloss.NewStyle().
		Foreground(ColorMuted)

	tableCellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// NewTable creates a new table with the default styling.
func NewTable(width int) *table.Table {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(TableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle.Padding(0, 1)
			}
			return tableCellStyle
		})
	if width > 0 {
		t = t.Width(width)
	}
	return t
}

// RenderMissionTable renders missions one per row.
func RenderMissionTable(missions []*types.Mission, width int) string {
	if len(missions) == 0 {
		return RenderMuted("No missions.")
	}
	rows := make([][]string, 0, len(missions))
	for _, m := range missions {
		agent := m.AssignedTo
		if agent == "" {
			agent = "-"
		}
		status := RenderStatus(m.Status)
		if m.Blocked() {
			status += " " + RenderFail("(blocked)")
		}
		rows = append(rows, []string{
			m.StorageKey,
			m.Title,
			status,
			string(m.Priority),
			agent,
		})
	}
	return NewTable(width).
		Headers("KEY", "TITLE", "STATUS", "PRIORITY", "AGENT").
		Rows(rows...).
		String()
}

// RenderAgentTable renders agent liveness; now drives the "last seen" column.
func RenderAgentTable(agents []types.AgentLiveness, now time.Time, width int) string {
	if len(agents) == 0 {
		return RenderMuted("No agents.")
	}
	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		seen := "never"
		if a.LastSeen != nil {
			seen = humanize.RelTime(*a.LastSeen, now, "ago", "from now")
		}
		task := a.CurrentTask
		if task == "" {
			task = "-"
		}
		rows = append(rows, []string{a.Name, RenderLiveness(a.Status), task, seen})
	}
	return NewTable(width).
		Headers("AGENT", "STATUS", "TASK", "LAST SEEN").
		Rows(rows...).
		String()
}

// RenderFeed renders activity entries as plain lines, newest first.
func RenderFeed(entries []types.ActivityEvent) string {
	if len(entries) == 0 {
		return RenderMuted("No activity yet.")
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(RenderMuted(padRight(e.Time, 16)))
		b.WriteString(RenderAccent(e.Agent))
		b.WriteString(" ")
		b.WriteString(e.Action)
		if e.Target != "" {
			b.WriteString(" ")
			b.WriteString(e.Target)
		}
		if e.Status != "" {
			b.WriteString(" ")
			b.WriteString(RenderMuted("[" + e.Status + "]"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func padRight(s string, n int) string {
	if w := lipgloss.Width(s); w < n {
		return s + strings.Repeat(" ", n-w)
	}
	return s + " "
}
