package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

const (
	cardGraphHeight = 2
	cardMinBarWidth = 10
)

var cardDividerStyle = lipgloss.NewStyle().Foreground(ColorBorder)

func renderCardDivider(width int) string {
	return cardDividerStyle.Render(strings.Repeat("─", width))
}

// renderCardLine pads content to width so joined cards line up.
func renderCardLine(content string, width int) string {
	if w := lipgloss.Width(content); width > w {
		content += strings.Repeat(" ", width-w)
	}
	return content
}

func truncateWithEllipsis(s string, maxLen int) string {
	if maxLen <= 3 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// wrapWords breaks s into lines no wider than width.
func wrapWords(s string, width int) []string {
	var lines []string
	var cur string
	for _, word := range strings.Fields(s) {
		switch {
		case cur == "":
			cur = word
		case len(cur)+1+len(word) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

// statusIndicator picks the glyph for a server's card header.
func (m Model) statusIndicator(v monitor.ServerView) string {
	switch {
	case m.connecting[v.ID] || v.Status.Kind == monitor.StatusConnecting:
		frame := ConnectingFrames[m.spinnerFrame%len(ConnectingFrames)]
		return StatusStyle(monitor.StatusConnecting).Render(frame)
	case v.NeedsCredentials:
		return lipgloss.NewStyle().Foreground(ColorWarning).Render(GlyphLocked)
	case v.Paused:
		return MutedStyle.Render(GlyphPaused)
	}

	glyph := GlyphDisconnected
	switch v.Status.Kind {
	case monitor.StatusOnline:
		glyph = GlyphOnline
	case monitor.StatusOffline:
		glyph = GlyphOffline
	case monitor.StatusError:
		glyph = GlyphError
	}
	return StatusStyle(v.Status.Kind).Render(glyph)
}

func (m Model) renderHostLine(v monitor.ServerView, width int) string {
	name := v.Name
	if name == "" {
		name = v.ID
	}
	line := m.statusIndicator(v) + " " + HostNameStyle.Render(truncateWithEllipsis(name, width-12))

	var tag string
	switch {
	case v.Paused:
		tag = "paused"
	case v.Suspended:
		tag = "suspended"
	case v.RetryCount > 0 && v.Status.Kind != monitor.StatusOnline:
		tag = fmt.Sprintf("retry %d", v.RetryCount)
	}
	if tag != "" {
		gap := width - lipgloss.Width(line) - len(tag)
		if gap < 1 {
			gap = 1
		}
		line += strings.Repeat(" ", gap) + MutedStyle.Render(tag)
	}
	return line
}

// renderCard renders one server card.
func (m Model) renderCard(v monitor.ServerView, width int, selected bool) string {
	style := CardStyle.Width(width)
	if selected {
		style = CardSelectedStyle.Width(width)
	}
	innerWidth := width - 4

	lines := []string{renderCardLine(m.renderHostLine(v, innerWidth), innerWidth)}
	snaps := m.history[v.ID]
	snap := latest(snaps)

	if v.Status.Kind != monitor.StatusOnline || snap == nil {
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, m.renderStatusBody(v, innerWidth)...)
		return style.Render(strings.Join(lines, "\n"))
	}

	lines = append(lines, renderCardDivider(innerWidth))
	lines = append(lines, m.renderCardCPUSection(snaps, snap.CPU, innerWidth)...)
	lines = append(lines, renderCardDivider(innerWidth))
	lines = append(lines, m.renderCardMemorySection(snaps, snap.Memory, innerWidth)...)

	if d, ok := fullestDisk(snap.Disks); ok {
		lines = append(lines, renderCardDivider(innerWidth))
		lines = append(lines, renderCardLine(renderDiskLine(d, innerWidth), innerWidth))
	}
	if rx, tx, ok := networkRate(snaps); ok {
		net := LabelStyle.Render("NET ") +
			ValueStyle.Render("↓ "+FormatRate(rx)) + "  " +
			ValueStyle.Render("↑ "+FormatRate(tx))
		lines = append(lines, renderCardLine(net, innerWidth))
	}
	if avg, ok, total := pingSummary(snap.Ping); total > 0 {
		ping := LabelStyle.Render("PING ") + ValueStyle.Render(fmt.Sprintf("%d/%d", ok, total))
		if ok > 0 {
			ping += MutedStyle.Render(fmt.Sprintf("  avg %.1f ms", avg))
		}
		lines = append(lines, renderCardLine(ping, innerWidth))
	}
	if n := len(snap.Errors); n > 0 {
		lines = append(lines, renderCardLine(ErrorTextStyle.Render(fmt.Sprintf("%d metric(s) unavailable", n)), innerWidth))
	}

	return style.Render(strings.Join(lines, "\n"))
}

// renderStatusBody explains a server that has no live metrics.
func (m Model) renderStatusBody(v monitor.ServerView, width int) []string {
	var lines []string
	add := func(s string) { lines = append(lines, renderCardLine(s, width)) }

	switch {
	case m.connecting[v.ID] || v.Status.Kind == monitor.StatusConnecting:
		add(StatusStyle(monitor.StatusConnecting).Render("  Connecting..."))
	case v.NeedsCredentials:
		add(lipgloss.NewStyle().Foreground(ColorWarning).Render("  Password required"))
		if v.PendingSecret != nil && v.PendingSecret.Reason != "" {
			for _, l := range wrapWords(v.PendingSecret.Reason, width-4) {
				add(LabelStyle.Render("  " + l))
			}
		}
		add(MutedStyle.Render("  press p to enter it"))
	case v.Status.Kind == monitor.StatusError:
		add(StatusStyle(monitor.StatusError).Render("  Error"))
		for _, l := range wrapWords(v.Status.Message, width-4) {
			add(LabelStyle.Render("  " + l))
		}
	case v.Status.Kind == monitor.StatusOffline:
		add(StatusStyle(monitor.StatusOffline).Render("  Offline"))
		if v.LastSeen != nil {
			add(LabelStyle.Render("  last seen " + formatAgo(m.now().Sub(*v.LastSeen))))
		}
	case v.Status.Kind == monitor.StatusOnline:
		add(LabelStyle.Render("  Waiting for first sample"))
	default:
		add(MutedStyle.Render("  Not connected"))
	}

	if v.NeedsManualRetry {
		add(MutedStyle.Render("  press c to retry"))
	}
	return lines
}

// renderCardCPUSection renders the CPU header line and its braille graph.
func (m Model) renderCardCPUSection(snaps []*metrics.Snapshot, cpu *metrics.CPU, width int) []string {
	label := LabelStyle.Render("CPU")
	if cpu == nil {
		return []string{renderCardLine(label+" "+MutedStyle.Render("n/a"), width)}
	}

	value := MetricStyle(cpu.UsagePercent).Render(fmt.Sprintf("%5.1f%%", cpu.UsagePercent))
	load := MutedStyle.Render(fmt.Sprintf("load %.2f", cpu.Load1))
	lines := []string{renderCardLine(spread(label, value+"  "+load, width), width)}

	graphWidth := width
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}
	graph := RenderBrailleGraph(cpuSeries(snaps), graphWidth, cardGraphHeight, MetricColor(cpu.UsagePercent))
	for _, row := range strings.Split(graph, "\n") {
		lines = append(lines, renderCardLine(row, width))
	}
	return lines
}

func (m Model) renderCardMemorySection(snaps []*metrics.Snapshot, mem *metrics.Memory, width int) []string {
	label := LabelStyle.Render("RAM")
	if mem == nil {
		return []string{renderCardLine(label+" "+MutedStyle.Render("n/a"), width)}
	}

	pct := mem.UsedPercent()
	value := MetricStyle(pct).Render(fmt.Sprintf("%5.1f%%", pct))
	size := MutedStyle.Render(formatBytes(mem.Used) + " / " + formatBytes(mem.Total))
	lines := []string{renderCardLine(spread(label, value+"  "+size, width), width)}

	graphWidth := width
	if graphWidth < cardMinBarWidth {
		graphWidth = cardMinBarWidth
	}
	graph := RenderBrailleGraph(memorySeries(snaps), graphWidth, cardGraphHeight, MetricColor(pct))
	for _, row := range strings.Split(graph, "\n") {
		lines = append(lines, renderCardLine(row, width))
	}
	return lines
}

func renderDiskLine(d metrics.Disk, width int) string {
	pct := d.UsedPercent()
	label := LabelStyle.Render("DISK ") + ValueStyle.Render(truncateWithEllipsis(d.MountPoint, 12))
	value := MetricStyle(pct).Render(fmt.Sprintf("%3.0f%%", pct))
	barWidth := width - lipgloss.Width(label) - lipgloss.Width(value) - 2
	if barWidth < 4 {
		return spread(label, value, width)
	}
	return label + " " + ProgressBar(barWidth, pct) + " " + value
}

// spread puts left and right at the two edges of width.
func spread(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
