package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fleetmon/fleetmon/internal/monitor"
)

// Dashboard palette.
const (
	ColorDarkBg    = lipgloss.Color("#0A0A0F")
	ColorSurfaceBg = lipgloss.Color("#12121A")
	ColorBorder    = lipgloss.Color("#2A2A4A")

	ColorHealthy  = lipgloss.Color("#39FF14")
	ColorWarning  = lipgloss.Color("#FFAA00")
	ColorCritical = lipgloss.Color("#FF0055")

	ColorTextPrimary   = lipgloss.Color("#FFFFFF")
	ColorTextSecondary = lipgloss.Color("#B4B4D0")
	ColorTextMuted     = lipgloss.Color("#6B6B8D")

	ColorAccent    = lipgloss.Color("#FF2E97")
	ColorAccentDim = lipgloss.Color("#BF40FF")

	ColorGraph = lipgloss.Color("#00FFFF")
)

// Thresholds for metric severity levels.
const (
	WarningThreshold  = 70.0
	CriticalThreshold = 90.0
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Background(ColorSurfaceBg).
			Bold(true).
			Padding(0, 1)

	FooterStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)

	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1).
			MarginRight(1).
			MarginBottom(1)

	CardSelectedStyle = CardStyle.
				BorderForeground(ColorAccent)

	HostNameStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary).
			Bold(true)

	LabelStyle = lipgloss.NewStyle().
			Foreground(ColorTextSecondary)

	ValueStyle = lipgloss.NewStyle().
			Foreground(ColorTextPrimary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorCritical)

	PromptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccentDim).
			Padding(0, 1)
)

// Status glyphs.
const (
	GlyphOnline       = "◉"
	GlyphOffline      = "◌"
	GlyphError        = "✗"
	GlyphDisconnected = "○"
	GlyphLocked       = "⚿"
	GlyphPaused       = "‖"
)

// ConnectingFrames animate the connecting indicator.
var ConnectingFrames = []string{"◐", "◓", "◑", "◒"}

// StatusStyle returns the indicator colour for a status.
func StatusStyle(kind monitor.StatusKind) lipgloss.Style {
	switch kind {
	case monitor.StatusOnline:
		return lipgloss.NewStyle().Foreground(ColorHealthy)
	case monitor.StatusConnecting:
		return lipgloss.NewStyle().Foreground(ColorGraph)
	case monitor.StatusOffline:
		return lipgloss.NewStyle().Foreground(ColorWarning)
	case monitor.StatusError:
		return lipgloss.NewStyle().Foreground(ColorCritical)
	default:
		return lipgloss.NewStyle().Foreground(ColorTextMuted)
	}
}

// MetricColor returns green below 70%, amber below 90%, red above.
func MetricColor(percent float64) lipgloss.Color {
	switch {
	case percent >= CriticalThreshold:
		return ColorCritical
	case percent >= WarningThreshold:
		return ColorWarning
	default:
		return ColorHealthy
	}
}

// MetricStyle colours text by MetricColor.
func MetricStyle(percent float64) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(MetricColor(percent))
}

// ProgressBar renders a width-cell bar coloured by threshold.
func ProgressBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	percent = clampPercent(percent)

	filled := int(percent / 100.0 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", width-filled)
	return lipgloss.NewStyle().Foreground(MetricColor(percent)).Render(bar)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// SectionHeader renders ╭─ Title ─────── Value ╮ across width cells.
func SectionHeader(title, value string, width int) string {
	if width < 10 {
		width = 10
	}
	leftWidth := 3 + lipgloss.Width(title) + 1
	rightWidth := 1 + lipgloss.Width(value) + 2
	fill := width - leftWidth - rightWidth
	if fill < 1 {
		fill = 1
	}

	border := lipgloss.NewStyle().Foreground(ColorBorder)
	titleStyle := lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(ColorGraph).Bold(true)

	return border.Render("╭─ ") +
		titleStyle.Render(title) +
		border.Render(" "+strings.Repeat("─", fill)+" ") +
		valueStyle.Render(value) +
		border.Render(" ╮")
}

// SectionFooter renders the bottom border of a section.
func SectionFooter(width int) string {
	if width < 2 {
		width = 2
	}
	return lipgloss.NewStyle().Foreground(ColorBorder).Render("╰" + strings.Repeat("─", width-2) + "╯")
}

// SectionLine renders │ content │ padded to width.
func SectionLine(content string, width int) string {
	if width < 4 {
		width = 4
	}
	border := lipgloss.NewStyle().Foreground(ColorBorder)
	pad := width - 4 - lipgloss.Width(content)
	if pad < 0 {
		pad = 0
	}
	return border.Render("│") + " " + content + strings.Repeat(" ", pad) + " " + border.Render("│")
}
