package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws the most recent width samples as one row of block
// characters scaled to the series' own range. The colour follows
// ThresholdColor of the latest sample, so it suits percentage series.
func RenderSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	top := len(sparkLevels) - 1
	var sb strings.Builder
	for _, v := range data {
		level := top / 2
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(top))
			level = max(0, min(level, top))
		}
		sb.WriteRune(sparkLevels[level])
	}

	return lipgloss.NewStyle().Foreground(ThresholdColor(data[len(data)-1])).Render(sb.String())
}
