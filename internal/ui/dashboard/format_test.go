package dashboard

import (
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

func TestFormatRate(t *testing.T) {
	assert.Equal(t, "100 B/s", FormatRate(100))
	assert.Equal(t, "2.0 KB/s", FormatRate(2048))
	assert.Equal(t, "1.5 MB/s", FormatRate(1.5*1024*1024))
	assert.Equal(t, "2.0 GB/s", FormatRate(2*1024*1024*1024))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5m", formatUptime(300))
	assert.Equal(t, "2h 30m", formatUptime(9000))
	assert.Equal(t, "3d 4h", formatUptime(3*86400+4*3600+60))
}

func TestFormatAgo(t *testing.T) {
	assert.Equal(t, "just now", formatAgo(0))
	assert.Equal(t, "42s ago", formatAgo(42*time.Second))
	assert.Equal(t, "5m ago", formatAgo(5*time.Minute))
	assert.Equal(t, "2h ago", formatAgo(2*time.Hour+time.Minute))
}

func TestNetworkRate(t *testing.T) {
	t0 := time.Unix(1000, 0)
	snaps := []*metrics.Snapshot{
		{Timestamp: t0, Network: []metrics.NetworkInterface{
			{Name: "lo", RxBytes: 1 << 30, TxBytes: 1 << 30},
			{Name: "eth0", RxBytes: 1000, TxBytes: 500},
		}},
		{Timestamp: t0.Add(5 * time.Second)},
		{Timestamp: t0.Add(10 * time.Second), Network: []metrics.NetworkInterface{
			{Name: "lo", RxBytes: 2 << 30, TxBytes: 2 << 30},
			{Name: "eth0", RxBytes: 11000, TxBytes: 400},
		}},
	}

	rx, tx, ok := networkRate(snaps)
	assert.True(t, ok)
	assert.Equal(t, 1000.0, rx)
	// Counter went backwards.
	assert.Equal(t, 0.0, tx)

	_, _, ok = networkRate(snaps[:1])
	assert.False(t, ok)
}

func TestFullestDisk(t *testing.T) {
	_, ok := fullestDisk(nil)
	assert.False(t, ok)

	d, ok := fullestDisk([]metrics.Disk{
		{MountPoint: "/", Used: 50, Total: 100},
		{MountPoint: "/proc", Used: 0, Total: 0},
		{MountPoint: "/data", Used: 95, Total: 100},
	})
	assert.True(t, ok)
	assert.Equal(t, "/data", d.MountPoint)
}

func TestPingSummary(t *testing.T) {
	avg, ok, total := pingSummary([]metrics.PingResult{
		{Target: "a", Success: true, LatencyMs: 10},
		{Target: "b", Success: true, LatencyMs: 20},
		{Target: "c", Success: false, Error: "timeout"},
	})
	assert.Equal(t, 15.0, avg)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 3, total)
}
