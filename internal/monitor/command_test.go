package monitor

import (
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want Platform
	}{
		{"Linux\n", PlatformLinux},
		{"  Darwin ", PlatformDarwin},
		{"FreeBSD", PlatformUnknown},
		{"", PlatformUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePlatform(tt.in), "input %q", tt.in)
	}
}

func TestCommandSet_Commands(t *testing.T) {
	linux := CommandSet{Platform: PlatformLinux}
	darwin := CommandSet{Platform: PlatformDarwin}
	unknown := CommandSet{Platform: PlatformUnknown}

	assert.Contains(t, linux.Command(metrics.CategoryCPU), "/proc/stat")
	assert.Contains(t, linux.Command(metrics.CategoryMemory), "/proc/meminfo")
	assert.Contains(t, linux.Command(metrics.CategoryDisks), "df -kPT")
	assert.Contains(t, linux.Command(metrics.CategoryNetwork), "/proc/net/dev")
	assert.Contains(t, linux.Command(metrics.CategoryPorts), "ss -tulnH")

	assert.Contains(t, darwin.Command(metrics.CategoryCPU), "top -l 2")
	assert.Contains(t, darwin.Command(metrics.CategoryMemory), "vm_stat")
	assert.Contains(t, darwin.Command(metrics.CategoryNetwork), "netstat -ib")
	assert.Contains(t, darwin.Command(metrics.CategorySystem), "sw_vers")

	for _, c := range metrics.Categories() {
		if c == metrics.CategoryPing {
			continue
		}
		assert.Equal(t, linux.Command(c), unknown.Command(c), "unknown platforms use the Linux commands for %s", c)
	}
}

func TestCommandSet_Ping(t *testing.T) {
	cs := CommandSet{
		Platform:    PlatformLinux,
		PingTargets: []string{"8.8.8.8", "it's.example"},
		PingTimeout: 1500 * time.Millisecond,
	}

	cmd := cs.Command(metrics.CategoryPing)
	assert.Contains(t, cmd, "ping -c 1 -W 2 '8.8.8.8'")
	assert.Contains(t, cmd, `'it'\''s.example'`)
	assert.Contains(t, cmd, `echo "---"`)
	assert.Equal(t, 2*time.Second+2*1500*time.Millisecond, cs.Timeout(metrics.CategoryPing, 2*time.Second))
	assert.Equal(t, 2*time.Second, cs.Timeout(metrics.CategoryCPU, 2*time.Second))

	cs.Platform = PlatformDarwin
	assert.Contains(t, cs.Command(metrics.CategoryPing), "ping -c 1 -t 2")

	cs.PingTargets = nil
	assert.Empty(t, cs.Command(metrics.CategoryPing))
}

func TestCommandSet_ParseDispatch(t *testing.T) {
	cs := CommandSet{Platform: PlatformLinux, PingTargets: []string{"10.0.0.1", "10.0.0.2"}}

	v, err := cs.Parse(metrics.CategoryMemory, fixtureMeminfo)
	require.NoError(t, err)
	assert.IsType(t, &metrics.Memory{}, v)

	v, err = cs.Parse(metrics.CategoryPing, sections(
		"64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=3.5 ms",
		"ping: sendto: Network is unreachable",
	))
	require.NoError(t, err)
	results := v.([]metrics.PingResult)
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Contains(t, results[1].Error, "unreachable")

	_, err = cs.Parse(metrics.CategoryDisks, "")
	assert.ErrorIs(t, err, metrics.ErrNoData)

	_, err = cs.Parse(metrics.Category("gpu"), "")
	assert.Error(t, err)
}
