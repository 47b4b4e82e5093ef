package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/fleetmon/fleetmon/internal/ui"
)

const detailGraphHeight = 4

var detailTitleStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)

// renderDetailView renders the header, the scrollable detail body and the footer.
func (m Model) renderDetailView() string {
	v, ok := m.selectedView()
	if !ok {
		return LabelStyle.Render("No server selected")
	}

	var b strings.Builder
	b.WriteString(m.renderDetailHeader(v))
	b.WriteString("\n\n")
	if m.viewportReady {
		b.WriteString(m.detail.View())
	} else {
		b.WriteString(m.renderDetailContent())
	}
	b.WriteString("\n")
	b.WriteString(FooterStyle.Render("esc back | ↑↓ scroll | c connect | p password | ? help"))
	return b.String()
}

func (m Model) renderDetailHeader(v monitor.ServerView) string {
	name := v.Name
	if name == "" {
		name = v.ID
	}
	addr := fmt.Sprintf("%s@%s:%d", v.User, v.Host, v.Port)
	if v.Local {
		addr = "this machine"
	}
	status := m.statusIndicator(v) + " " + StatusStyle(v.Status.Kind).Render(v.Status.String())
	return HeaderStyle.Render(detailTitleStyle.Render(name) + "  " + MutedStyle.Render(addr) + "  " + status)
}

// renderDetailContent builds the body shown inside the viewport.
func (m Model) renderDetailContent() string {
	v, ok := m.selectedView()
	if !ok {
		return ""
	}
	width := m.width - 2
	if width < 40 {
		width = 40
	}

	snaps := m.history[v.ID]
	snap := latest(snaps)

	var sections []string
	sections = append(sections, m.renderStateSection(v, width))
	if snap == nil {
		sections = append(sections, LabelStyle.Render("Waiting for metrics..."))
		return strings.Join(sections, "\n")
	}

	if snap.System != nil {
		sections = append(sections, renderSystemSection(snap.System, width))
	}
	if snap.CPU != nil {
		sections = append(sections, renderCPUDetail(snaps, snap.CPU, width))
	}
	if snap.Memory != nil {
		sections = append(sections, renderMemoryDetail(snaps, snap.Memory, width))
	}
	if len(snap.Disks) > 0 {
		sections = append(sections, renderDisksDetail(snap.Disks, width))
	}
	if len(snap.Network) > 0 {
		sections = append(sections, renderNetworkDetail(snaps, snap.Network, width))
	}
	if len(snap.Ports) > 0 {
		sections = append(sections, renderPortsDetail(snap.Ports, width))
	}
	if len(snap.Ping) > 0 {
		sections = append(sections, renderPingDetail(snap.Ping, width))
	}
	if len(snap.Errors) > 0 {
		sections = append(sections, renderErrorsDetail(snap.Errors, width))
	}
	return strings.Join(sections, "\n")
}

func (m Model) renderStateSection(v monitor.ServerView, width int) string {
	lines := []string{SectionHeader("Monitoring", v.Status.String(), width)}
	row := func(label, value string) {
		lines = append(lines, SectionLine(LabelStyle.Render(fmt.Sprintf("%-14s", label))+ValueStyle.Render(value), width))
	}

	if v.LastSeen != nil {
		row("Last seen", formatAgo(m.now().Sub(*v.LastSeen)))
	} else {
		row("Last seen", "never")
	}
	if !v.NextMonitoring.IsZero() && !v.Paused {
		row("Next poll", v.NextMonitoring.Local().Format("15:04:05"))
	}
	row("Interval", v.Interval.String())
	row("Retries", fmt.Sprintf("%d", v.RetryCount))
	if v.Jump != nil {
		row("Jump host", fmt.Sprintf("%s:%d", v.Jump.Host, v.Jump.Port))
	}

	var flags []string
	if v.Paused {
		flags = append(flags, "paused")
	}
	if v.Suspended {
		flags = append(flags, "suspended")
	}
	if v.NeedsCredentials {
		flags = append(flags, "needs password")
	}
	if v.NeedsManualRetry {
		flags = append(flags, "needs manual retry")
	}
	if v.HasSecret {
		flags = append(flags, "password cached")
	}
	if len(flags) > 0 {
		row("Flags", strings.Join(flags, ", "))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderSystemSection(s *metrics.System, width int) string {
	lines := []string{SectionHeader("System", s.Hostname, width)}
	row := func(label, value string) {
		if value == "" {
			return
		}
		lines = append(lines, SectionLine(LabelStyle.Render(fmt.Sprintf("%-14s", label))+ValueStyle.Render(value), width))
	}
	row("OS", s.OS)
	row("Kernel", s.Kernel)
	row("Arch", s.Arch)
	if s.UptimeSeconds > 0 {
		row("Uptime", formatUptime(s.UptimeSeconds))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderCPUDetail(snaps []*metrics.Snapshot, cpu *metrics.CPU, width int) string {
	lines := []string{SectionHeader("CPU", fmt.Sprintf("%.1f%%", cpu.UsagePercent), width)}
	graph := RenderBrailleGraph(cpuSeries(snaps), width-4, detailGraphHeight, ColorGraph)
	for _, row := range strings.Split(graph, "\n") {
		lines = append(lines, SectionLine(row, width))
	}

	info := fmt.Sprintf("load %.2f %.2f %.2f", cpu.Load1, cpu.Load5, cpu.Load15)
	if cpu.Cores > 0 {
		info += fmt.Sprintf("  %d cores", cpu.Cores)
		info += "  " + ui.RenderSparkline(loadSeries(snaps), 20)
	}
	lines = append(lines, SectionLine(MutedStyle.Render(info), width))
	if cpu.Model != "" {
		lines = append(lines, SectionLine(MutedStyle.Render(truncateWithEllipsis(cpu.Model, width-4)), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

// loadSeries is the one-minute load per core as a percentage.
func loadSeries(snaps []*metrics.Snapshot) []float64 {
	out := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		if s.CPU != nil && s.CPU.Cores > 0 {
			out = append(out, s.CPU.Load1/float64(s.CPU.Cores)*100)
		}
	}
	return out
}

func renderMemoryDetail(snaps []*metrics.Snapshot, mem *metrics.Memory, width int) string {
	pct := mem.UsedPercent()
	lines := []string{SectionHeader("Memory", fmt.Sprintf("%.1f%%", pct), width)}
	graph := RenderBrailleGraph(memorySeries(snaps), width-4, detailGraphHeight, ColorGraph)
	for _, row := range strings.Split(graph, "\n") {
		lines = append(lines, SectionLine(row, width))
	}
	lines = append(lines, SectionLine(RenderGradientBar(width-4, pct), width))
	lines = append(lines, SectionLine(MutedStyle.Render(fmt.Sprintf("used %s  available %s  total %s",
		formatBytes(mem.Used), formatBytes(mem.Available), formatBytes(mem.Total))), width))
	if mem.SwapTotal > 0 {
		lines = append(lines, SectionLine(MutedStyle.Render(fmt.Sprintf("swap %s / %s",
			formatBytes(mem.SwapUsed), formatBytes(mem.SwapTotal))), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderDisksDetail(disks []metrics.Disk, width int) string {
	lines := []string{SectionHeader("Disks", fmt.Sprintf("%d", len(disks)), width)}
	for _, d := range disks {
		pct := d.UsedPercent()
		mount := fmt.Sprintf("%-16s", truncateWithEllipsis(d.MountPoint, 16))
		size := fmt.Sprintf("%s / %s", formatBytes(d.Used), formatBytes(d.Total))
		barWidth := width - 4 - len(mount) - len(size) - 8
		if barWidth < 5 {
			barWidth = 5
		}
		line := ValueStyle.Render(mount) + " " + ProgressBar(barWidth, pct) + " " +
			MetricStyle(pct).Render(fmt.Sprintf("%3.0f%%", pct)) + " " + MutedStyle.Render(size)
		lines = append(lines, SectionLine(line, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderNetworkDetail(snaps []*metrics.Snapshot, ifaces []metrics.NetworkInterface, width int) string {
	value := ""
	if rx, tx, ok := networkRate(snaps); ok {
		value = "↓ " + FormatRate(rx) + "  ↑ " + FormatRate(tx)
	}
	lines := []string{SectionHeader("Network", value, width)}
	for _, iface := range ifaces {
		line := ValueStyle.Render(fmt.Sprintf("%-12s", truncateWithEllipsis(iface.Name, 12))) +
			MutedStyle.Render(fmt.Sprintf(" rx %s (%d pkts)  tx %s (%d pkts)",
				formatBytes(iface.RxBytes), iface.RxPackets, formatBytes(iface.TxBytes), iface.TxPackets))
		lines = append(lines, SectionLine(line, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderPortsDetail(ports []metrics.Port, width int) string {
	lines := []string{SectionHeader("Listening ports", fmt.Sprintf("%d", len(ports)), width)}
	var cells []string
	for _, p := range ports {
		cells = append(cells, fmt.Sprintf("%d/%s", p.Port, p.Protocol))
	}
	for _, l := range wrapWords(strings.Join(cells, " "), width-4) {
		lines = append(lines, SectionLine(ValueStyle.Render(l), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderPingDetail(results []metrics.PingResult, width int) string {
	_, ok, total := pingSummary(results)
	lines := []string{SectionHeader("Ping", fmt.Sprintf("%d/%d", ok, total), width)}
	for _, r := range results {
		target := fmt.Sprintf("%-24s", truncateWithEllipsis(r.Target, 24))
		var res string
		if r.Success {
			res = lipgloss.NewStyle().Foreground(ColorHealthy).Render(fmt.Sprintf("%.1f ms", r.LatencyMs))
		} else {
			msg := r.Error
			if msg == "" {
				msg = "unreachable"
			}
			res = ErrorTextStyle.Render(truncateWithEllipsis(msg, width-30))
		}
		lines = append(lines, SectionLine(ValueStyle.Render(target)+" "+res, width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}

func renderErrorsDetail(errs map[metrics.Category]string, width int) string {
	cats := make([]string, 0, len(errs))
	for c := range errs {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	lines := []string{SectionHeader("Unavailable", fmt.Sprintf("%d", len(errs)), width)}
	for _, c := range cats {
		msg := truncateWithEllipsis(errs[metrics.Category(c)], width-18)
		lines = append(lines, SectionLine(LabelStyle.Render(fmt.Sprintf("%-10s", c))+" "+ErrorTextStyle.Render(msg), width))
	}
	lines = append(lines, SectionFooter(width))
	return strings.Join(lines, "\n")
}
