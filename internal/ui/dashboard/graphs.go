package dashboard

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Braille graphs use a 2x4 dot matrix per cell, so each cell plots two
// samples at four vertical levels per row.
const brailleBase = '\u2800'

// brailleDots maps [row][col] within a cell to the pattern bit.
var brailleDots = [4][2]uint8{
	{0, 3},
	{1, 4},
	{2, 5},
	{6, 7},
}

var sparklineBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// findMinMax returns the data range. Data that fits in 0..100 is treated as
// a percentage and scaled to that fixed range.
func findMinMax(data []float64) (minVal, maxVal float64, isPercentage bool) {
	if len(data) == 0 {
		return 0, 100, true
	}
	minVal, maxVal = data[0], data[0]
	for _, v := range data {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 100 && minVal >= 0 {
		return 0, 100, true
	}
	return minVal, maxVal, false
}

func normalizeValue(val, minVal, maxVal float64) float64 {
	if maxVal > minVal {
		return (val - minVal) / (maxVal - minVal)
	}
	return 0.5
}

func clampInt(val, maxVal int) int {
	if val < 0 {
		return 0
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

// RenderBrailleGraph plots data as a width x height braille graph. Short
// series are right-aligned; long ones are downsampled keeping peaks.
// Percentage data is coloured per column by threshold, other data uses
// baseColor.
func RenderBrailleGraph(data []float64, width, height int, baseColor lipgloss.Color) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	minVal, maxVal, isPercentage := findMinMax(data)
	totalDots := height * 4
	targetPoints := width * 2

	points := data
	if len(data) > targetPoints {
		points = resample(data, targetPoints)
	}

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = brailleBase
		}
	}
	colMax := make([]float64, width)

	offset := targetPoints - len(points)
	if offset < 0 {
		offset = 0
	}

	for i, val := range points {
		dots := clampInt(int(normalizeValue(val, minVal, maxVal)*float64(totalDots)), totalDots)
		col := (i + offset) / 2
		if col >= width {
			continue
		}
		if val > colMax[col] {
			colMax[col] = val
		}
		sub := (i + offset) % 2
		for dot := 0; dot < dots; dot++ {
			row := height - 1 - dot/4
			if row < 0 {
				continue
			}
			grid[row][col] |= rune(1 << brailleDots[3-dot%4][sub])
		}
	}

	lines := make([]string, 0, height)
	for _, row := range grid {
		var b strings.Builder
		for col, char := range row {
			color := baseColor
			if isPercentage {
				color = MetricColor(colMax[col])
			}
			b.WriteString(lipgloss.NewStyle().Foreground(color).Background(ColorSurfaceBg).Render(string(char)))
		}
		lines = append(lines, b.String())
	}
	return strings.Join(lines, "\n")
}

// RenderMiniSparkline renders one row of block characters, coloured by the
// latest value.
func RenderMiniSparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	minVal, maxVal, _ := findMinMax(data)

	var b strings.Builder
	for _, val := range resample(data, width) {
		idx := clampInt(int(normalizeValue(val, minVal, maxVal)*float64(len(sparklineBlocks)-1)), len(sparklineBlocks)-1)
		b.WriteRune(sparklineBlocks[idx])
	}
	return lipgloss.NewStyle().Foreground(MetricColor(data[len(data)-1])).Render(b.String())
}

// RenderGradientBar fills percent of width with a green to red gradient.
func RenderGradientBar(width int, percent float64) string {
	if width < 1 {
		width = 1
	}
	percent = clampPercent(percent)
	filled := int(percent / 100.0 * float64(width))

	var b strings.Builder
	for i := 0; i < width; i++ {
		if i < filled {
			pos := float64(i+1) / float64(width) * 100
			b.WriteString(lipgloss.NewStyle().Foreground(MetricColor(pos)).Background(ColorSurfaceBg).Render("█"))
		} else {
			b.WriteString(lipgloss.NewStyle().Foreground(ColorTextMuted).Background(ColorSurfaceBg).Render("░"))
		}
	}
	return b.String()
}

// resample stretches or squeezes data to size points. Downsampling keeps the
// max of each bucket so spikes stay visible; upsampling interpolates.
func resample(data []float64, size int) []float64 {
	if len(data) == 0 || size <= 0 {
		return nil
	}
	if len(data) == size {
		return data
	}

	out := make([]float64, size)
	if len(data) == 1 {
		for i := range out {
			out[i] = data[0]
		}
		return out
	}

	if len(data) > size {
		bucket := float64(len(data)) / float64(size)
		for i := 0; i < size; i++ {
			start := int(float64(i) * bucket)
			end := int(float64(i+1) * bucket)
			if end > len(data) {
				end = len(data)
			}
			if start >= end {
				start = end - 1
			}
			peak := data[start]
			for _, v := range data[start+1 : end] {
				if v > peak {
					peak = v
				}
			}
			out[i] = peak
		}
		return out
	}

	scale := float64(len(data)-1) / float64(size-1)
	for i := 0; i < size; i++ {
		pos := float64(i) * scale
		idx := int(pos)
		if idx >= len(data)-1 {
			out[i] = data[len(data)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = data[idx]*(1-frac) + data[idx+1]*frac
	}
	return out
}
