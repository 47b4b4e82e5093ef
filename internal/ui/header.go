package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HeaderInfo is shown in the startup banner.
type HeaderInfo struct {
	Version string
	Tagline string
	// Details are extra "label: value" lines under the tagline.
	Details [][2]string
}

// HeaderWidth is the width of the banner divider.
const HeaderWidth = 50

// RenderHeader renders the fleetmon banner.
func RenderHeader(info HeaderInfo) string {
	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().Foreground(ColorNeonPink).Bold(true).Render("fleetmon"))
	if info.Version != "" {
		b.WriteString(" " + lipgloss.NewStyle().Foreground(ColorNeonCyan).Render(info.Version))
	}
	b.WriteString("\n")

	if info.Tagline != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(ColorSecondary).Render(info.Tagline) + "\n")
	}
	label := lipgloss.NewStyle().Foreground(ColorMuted)
	for _, d := range info.Details {
		b.WriteString(label.Render(fmt.Sprintf("%-10s", d[0])) + " " + d[1] + "\n")
	}

	b.WriteString(lipgloss.NewStyle().Foreground(ColorGlassBorder).Render(strings.Repeat("━", HeaderWidth)))
	b.WriteString("\n")
	return b.String()
}

// PrintHeader writes the banner to w.
func PrintHeader(w io.Writer, info HeaderInfo) {
	fmt.Fprint(w, RenderHeader(info))
}
