package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/logger"
	sshtesting "github.com/fleetmon/fleetmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/require"
)

const (
	fixtureStatBefore = "cpu  1000 0 1000 8000 0 0 0 0\ncpu0 500 0 500 4000 0 0 0 0\ncpu1 500 0 500 4000 0 0 0 0\n"
	fixtureStatAfter  = "cpu  1300 0 1300 8400 0 0 0 0\ncpu0 650 0 650 4200 0 0 0 0\ncpu1 650 0 650 4200 0 0 0 0\n"
	fixtureLoadavg    = "0.50 0.40 0.30 1/120 4242\n"
	fixtureCPUInfo    = "model name\t: Test CPU @ 3.00GHz\n"

	fixtureMeminfo = `MemTotal:        1000000 kB
MemFree:          200000 kB
MemAvailable:     600000 kB
Buffers:           10000 kB
Cached:           100000 kB
SwapTotal:        500000 kB
SwapFree:         400000 kB
`

	fixtureDF = `Filesystem     Type     1024-blocks    Used Available Capacity Mounted on
/dev/sda1      ext4        1000000  400000    600000      40% /
tmpfs          tmpfs        100000       0    100000       0% /run
`

	fixtureNetDev = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:    5000      50    0    0    0     0          0         0     5000      50    0    0    0     0       0          0
  eth0: 1000000    1000    0    0    0     0          0         0   200000     800    0    0    0     0       0          0
`

	fixturePorts = `tcp   LISTEN 0      128          0.0.0.0:22        0.0.0.0:*
udp   UNCONN 0      0            0.0.0.0:68        0.0.0.0:*
`

	fixtureUptime    = "12345.67 23456.78\n"
	fixtureOSRelease = "PRETTY_NAME=\"Ubuntu 22.04.3 LTS\"\nID=ubuntu\n"
)

func sections(parts ...string) string {
	return strings.Join(parts, "\n---\n")
}

// linuxClient answers every category command the way a healthy Linux host would.
func linuxClient(host string) *sshtesting.MockClient {
	c := sshtesting.NewMockClient(host)
	ok := func(out string) sshtesting.CommandResponse {
		return sshtesting.CommandResponse{Stdout: []byte(out)}
	}
	c.SetCommandResponse("uname -s", ok("Linux\n"))
	c.SetCommandResponse(`^cat /proc/stat`, ok(sections(fixtureStatBefore, fixtureStatAfter, fixtureLoadavg, fixtureCPUInfo)))
	c.SetCommandResponse(`^cat /proc/meminfo$`, ok(fixtureMeminfo))
	c.SetCommandResponse(`^df `, ok(fixtureDF))
	c.SetCommandResponse(`^cat /proc/net/dev$`, ok(fixtureNetDev))
	c.SetCommandResponse(`^ss `, ok(fixturePorts))
	c.SetCommandResponse(`^ping `, ok(sections(
		"64 bytes from 10.0.0.1: icmp_seq=1 ttl=64 time=1.25 ms",
	)))
	c.SetCommandResponse(`^hostname`, ok(sections(host, "Linux", "6.1.0", "x86_64", fixtureUptime, fixtureOSRelease)))
	return c
}

func testServers(ids ...string) []Server {
	out := make([]Server, 0, len(ids))
	for _, id := range ids {
		out = append(out, Server{
			ID:       id,
			Name:     id,
			Host:     id + ".example.com",
			Port:     22,
			User:     "monitor",
			Auth:     AuthKey,
			Interval: time.Hour,
		})
	}
	return out
}

func testOptions() Options {
	return Options{
		Tick:          10 * time.Millisecond,
		ShutdownGrace: time.Second,
		Policy:        Policy{RetryThreshold: 3},
		Pool:          PoolOptions{LivenessTimeout: 100 * time.Millisecond, CommandTimeout: time.Second},
		Collector: CollectorOptions{
			CommandTimeout: time.Second,
			PingTargets:    []string{"10.0.0.1"},
			PingTimeout:    time.Second,
			Parallel:       true,
		},
	}
}

func newTestMonitor(t *testing.T, dialer *sshtesting.MockDialer, ids ...string) *Monitor {
	t.Helper()
	m, err := New(testServers(ids...), dialer, testOptions(), logger.NewBufferLogger())
	require.NoError(t, err)
	return m
}
