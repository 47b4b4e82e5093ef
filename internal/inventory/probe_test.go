package inventory

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestProbe(t *testing.T) {
	host, port := listen(t)

	res := Probe(context.Background(), monitor.Server{ID: "up", Host: host, Port: port}, time.Second)
	assert.True(t, res.OK())
	assert.Equal(t, "up", res.ServerID)

	res = Probe(context.Background(), monitor.Server{ID: "down", Host: "127.0.0.1", Port: closedPort(t)}, time.Second)
	assert.False(t, res.OK())
	assert.Equal(t, ProbeFailRefused, res.Reason)

	res = Probe(context.Background(), monitor.Server{ID: "local", Local: true}, time.Second)
	assert.True(t, res.OK())
}

func TestProbe_UsesJumpHost(t *testing.T) {
	host, port := listen(t)
	s := monitor.Server{
		ID:   "inner",
		Host: "10.255.255.1",
		Port: 22,
		Jump: &monitor.JumpHost{Host: host, Port: port},
	}

	res := Probe(context.Background(), s, time.Second)
	assert.True(t, res.OK())
}

func TestProbeAll_KeepsOrder(t *testing.T) {
	host, port := listen(t)
	servers := []monitor.Server{
		{ID: "a", Host: host, Port: port},
		{ID: "b", Host: "127.0.0.1", Port: closedPort(t)},
		{ID: "c", Host: host, Port: port},
	}

	results := ProbeAll(context.Background(), servers, time.Second, 2)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ServerID)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.True(t, results[2].OK())
}

func TestCategorizeProbeError(t *testing.T) {
	tests := []struct {
		msg  string
		want ProbeFailReason
	}{
		{"dial tcp: i/o timeout", ProbeFailTimeout},
		{"context deadline exceeded", ProbeFailTimeout},
		{"connect: connection refused", ProbeFailRefused},
		{"connect: no route to host", ProbeFailUnreachable},
		{"connect: network is unreachable", ProbeFailUnreachable},
		{"something else", ProbeFailUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeProbeError(errors.New(tt.msg)), tt.msg)
	}

	dns := &net.DNSError{Err: "no such host", Name: "nope.invalid"}
	assert.Equal(t, ProbeFailDNS, categorizeProbeError(dns))
	assert.Equal(t, "name not resolved", ProbeFailDNS.String())
}
