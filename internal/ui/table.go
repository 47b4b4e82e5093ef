package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// TableColumn is a titled fixed-width column.
type TableColumn struct {
	Title string
	Width int
}

// NewTable creates an unfocused bubbles table sized to its rows.
func NewTable(columns []TableColumn, rows []table.Row) table.Model {
	cols := make([]table.Column, len(columns))
	for i, c := range columns {
		cols[i] = table.Column{Title: c.Title, Width: c.Width}
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(rows),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorMuted).
		BorderBottom(true).
		Bold(true).
		Foreground(ColorPrimary)
	s.Cell = s.Cell.Foreground(ColorPrimary)
	// Nothing is focused, so selection is not highlighted.
	s.Selected = s.Cell
	t.SetStyles(s)
	return t
}

// RenderSimpleTable renders rows as a static table, or "" when there are none.
func RenderSimpleTable(columns []TableColumn, rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	tableRows := make([]table.Row, len(rows))
	for i, row := range rows {
		tableRows[i] = table.Row(row)
	}
	return NewTable(columns, tableRows).View()
}

// ServerRow is one line of the fleet status table.
type ServerRow struct {
	ID        string
	Address   string
	Status    string // a monitor status kind
	Detail    string
	LastSeen  string
	Locked    bool
	Paused    bool
	Attention bool
}

// RenderServerTable renders the fleet as a status table.
func RenderServerTable(rows []ServerRow) string {
	if len(rows) == 0 {
		return "No servers configured"
	}

	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	var b strings.Builder
	b.WriteString(header.Render("   " + padRight("SERVER", 18) + padRight("ADDRESS", 30) + padRight("STATUS", 14) + "LAST SEEN"))
	b.WriteString("\n")

	for _, row := range rows {
		symbol, color := statusSymbol(row)
		status := lipgloss.NewStyle().Foreground(color).Render(row.Status)
		line := " " + lipgloss.NewStyle().Foreground(color).Render(symbol) + " " +
			padRight(row.ID, 18) +
			padRight(muted.Render(row.Address), 30) +
			padRight(status, 14) +
			muted.Render(row.LastSeen)
		b.WriteString(line)
		b.WriteString("\n")
		if row.Detail != "" {
			b.WriteString("     " + muted.Render(row.Detail) + "\n")
		}
	}
	return b.String()
}

func statusSymbol(row ServerRow) (string, lipgloss.Color) {
	switch {
	case row.Locked:
		return SymbolLocked, ColorWarning
	case row.Paused:
		return SymbolPaused, ColorMuted
	}
	switch row.Status {
	case "online":
		return SymbolOnline, ColorSuccess
	case "connecting":
		return SymbolProgress, ColorInfo
	case "offline":
		return SymbolOffline, ColorWarning
	case "error":
		return SymbolFail, ColorError
	}
	return SymbolPending, ColorMuted
}

// ProbeRow is one line of a reachability probe table.
type ProbeRow struct {
	ID      string
	Address string
	Source  string
	OK      bool
	Result  string // latency, or the failure reason
}

// RenderProbeTable renders probe results.
func RenderProbeTable(rows []ProbeRow) string {
	if len(rows) == 0 {
		return "No servers configured"
	}

	ok := lipgloss.NewStyle().Foreground(ColorSuccess)
	bad := lipgloss.NewStyle().Foreground(ColorError)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(ColorMuted)

	var b strings.Builder
	b.WriteString(header.Render("   " + padRight("SERVER", 18) + padRight("ADDRESS", 30) + padRight("SOURCE", 12) + "RESULT"))
	b.WriteString("\n")
	for _, row := range rows {
		symbol, result := ok.Render(SymbolSuccess), muted.Render(row.Result)
		if !row.OK {
			symbol, result = bad.Render(SymbolFail), bad.Render(row.Result)
		}
		b.WriteString(" " + symbol + " " + padRight(row.ID, 18) + padRight(row.Address, 30) + padRight(muted.Render(row.Source), 12) + result + "\n")
	}
	return b.String()
}

// padRight pads s to width visible cells.
func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s + " "
}
