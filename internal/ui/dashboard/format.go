package dashboard

import (
	"fmt"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %s", float64(b)/float64(div), []string{"KB", "MB", "GB", "TB", "PB", "EB"}[exp])
}

// FormatRate formats bytes per second.
func FormatRate(bps float64) string {
	switch {
	case bps < 1024:
		return fmt.Sprintf("%.0f B/s", bps)
	case bps < 1024*1024:
		return fmt.Sprintf("%.1f KB/s", bps/1024)
	case bps < 1024*1024*1024:
		return fmt.Sprintf("%.1f MB/s", bps/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB/s", bps/(1024*1024*1024))
}

func formatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func formatAgo(since time.Duration) string {
	switch s := int(since.Seconds()); {
	case s <= 0:
		return "just now"
	case s < 60:
		return fmt.Sprintf("%ds ago", s)
	case s < 3600:
		return fmt.Sprintf("%dm ago", s/60)
	default:
		return fmt.Sprintf("%dh ago", s/3600)
	}
}

func latest(snaps []*metrics.Snapshot) *metrics.Snapshot {
	if len(snaps) == 0 {
		return nil
	}
	return snaps[len(snaps)-1]
}

func cpuSeries(snaps []*metrics.Snapshot) []float64 {
	out := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		if s.CPU != nil {
			out = append(out, s.CPU.UsagePercent)
		}
	}
	return out
}

func memorySeries(snaps []*metrics.Snapshot) []float64 {
	out := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		if s.Memory != nil {
			out = append(out, s.Memory.UsedPercent())
		}
	}
	return out
}

// networkRate derives receive and transmit throughput across non-loopback
// interfaces from the two most recent snapshots that carry network data.
// Counter resets yield zero rather than a negative rate.
func networkRate(snaps []*metrics.Snapshot) (rx, tx float64, ok bool) {
	var cur, prev *metrics.Snapshot
	for i := len(snaps) - 1; i >= 0; i-- {
		if len(snaps[i].Network) == 0 {
			continue
		}
		if cur == nil {
			cur = snaps[i]
			continue
		}
		prev = snaps[i]
		break
	}
	if cur == nil || prev == nil {
		return 0, 0, false
	}
	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed <= 0 {
		return 0, 0, false
	}

	curRx, curTx := totals(cur.Network)
	prevRx, prevTx := totals(prev.Network)
	if curRx >= prevRx {
		rx = float64(curRx-prevRx) / elapsed
	}
	if curTx >= prevTx {
		tx = float64(curTx-prevTx) / elapsed
	}
	return rx, tx, true
}

func totals(ifaces []metrics.NetworkInterface) (rx, tx uint64) {
	for _, iface := range ifaces {
		if isLoopback(iface.Name) {
			continue
		}
		rx += iface.RxBytes
		tx += iface.TxBytes
	}
	return rx, tx
}

func isLoopback(name string) bool {
	return name == "lo" || name == "lo0"
}

// fullestDisk returns the mount with the highest usage.
func fullestDisk(disks []metrics.Disk) (metrics.Disk, bool) {
	var best metrics.Disk
	found := false
	for _, d := range disks {
		if d.Total == 0 {
			continue
		}
		if !found || d.UsedPercent() > best.UsedPercent() {
			best = d
			found = true
		}
	}
	return best, found
}

// pingSummary returns the mean latency of successful pings and how many
// targets answered.
func pingSummary(results []metrics.PingResult) (avgMs float64, ok, total int) {
	var sum float64
	for _, r := range results {
		if r.Success {
			sum += r.LatencyMs
			ok++
		}
	}
	if ok > 0 {
		avgMs = sum / float64(ok)
	}
	return avgMs, ok, len(results)
}
