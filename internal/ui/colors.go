package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colours use ANSI codes so they follow the terminal theme.
const (
	ColorSuccess lipgloss.Color = "2"
	ColorError   lipgloss.Color = "1"
	ColorWarning lipgloss.Color = "3"
	ColorInfo    lipgloss.Color = "6"
)

// Text hierarchy.
const (
	ColorPrimary   lipgloss.Color = "7"
	ColorSecondary lipgloss.Color = "4"
	ColorMuted     lipgloss.Color = "8"
)

// Accents for the banner and spinners.
const (
	ColorNeonPink    lipgloss.Color = "#FF2E97"
	ColorNeonPurple  lipgloss.Color = "#BF40FF"
	ColorNeonCyan    lipgloss.Color = "#00FFFF"
	ColorNeonGreen   lipgloss.Color = "#39FF14"
	ColorGlassBorder lipgloss.Color = "#2A2A4A"
)

// GradientColors cycle through animated indicators.
var GradientColors = []lipgloss.Color{ColorNeonPink, ColorNeonPurple, ColorNeonCyan, ColorNeonGreen}

// DisableColors switches every renderer to plain text.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// ThresholdColor is green below 70%, yellow below 90%, red above.
func ThresholdColor(percent float64) lipgloss.Color {
	switch {
	case percent >= 90:
		return ColorError
	case percent >= 70:
		return ColorWarning
	default:
		return ColorSuccess
	}
}
