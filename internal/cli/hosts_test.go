package cli

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/inventory"
	"github.com/fleetmon/fleetmon/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInventory(t *testing.T) (*inventory.Inventory, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	open := ln.Addr().(*net.TCPAddr).Port

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	closed := dead.Addr().(*net.TCPAddr).Port
	dead.Close()

	return &inventory.Inventory{
		Entries: []inventory.Entry{
			{Server: monitor.Server{ID: "web", Host: "127.0.0.1", Port: open, User: "ops", Auth: monitor.AuthKey, Interval: 30 * time.Second}, Source: inventory.SourceSSHConfig},
			{Server: monitor.Server{
				ID: "db", Host: "127.0.0.1", Port: closed, User: "ops", Auth: monitor.AuthPassword, Interval: time.Minute,
				Jump: &monitor.JumpHost{Host: "bastion", Port: 22, User: "jump"},
			}, Source: inventory.SourceConfig},
			{Server: monitor.Server{ID: "local", Local: true, Interval: 30 * time.Second}, Source: inventory.SourceLocal},
		},
		Warnings: []string{`server "db" from config replaces the one from ssh_config`},
	}, closed
}

func TestHostsCommand_List(t *testing.T) {
	inv, _ := testInventory(t)

	var buf bytes.Buffer
	require.NoError(t, hostsCommand(context.Background(), &buf, inv, false, time.Second))

	out := buf.String()
	assert.Contains(t, out, "replaces the one from ssh_config")
	assert.Contains(t, out, "jump@bastion")
	assert.Contains(t, out, "password")
	assert.Contains(t, out, "localhost")
	assert.Contains(t, out, "ssh_config")
	assert.Contains(t, out, "1m0s")
}

func TestHostsCommand_Probe(t *testing.T) {
	inv, closed := testInventory(t)
	// Probe the target directly rather than the unreachable bastion.
	inv.Entries[1].Server.Jump = nil

	var buf bytes.Buffer
	require.NoError(t, hostsCommand(context.Background(), &buf, inv, true, time.Second))

	out := buf.String()
	assert.Contains(t, out, "127.0.0.1:"+strconv.Itoa(closed))
	assert.Contains(t, out, "connection refused")
}

func TestHostsCommand_JSON(t *testing.T) {
	inv, _ := testInventory(t)
	inv.Entries[1].Server.Jump = nil
	withMachineMode(t)

	var buf bytes.Buffer
	require.NoError(t, hostsCommand(context.Background(), &buf, inv, true, time.Second))

	var hosts []HostInfo
	env := decodeEnvelope(t, buf.Bytes(), &hosts)
	assert.True(t, env.Success)
	require.Len(t, hosts, 3)

	require.NotNil(t, hosts[0].Reachable)
	assert.True(t, *hosts[0].Reachable)
	assert.NotEmpty(t, hosts[0].Latency)

	require.NotNil(t, hosts[1].Reachable)
	assert.False(t, *hosts[1].Reachable)
	assert.Equal(t, "connection refused", hosts[1].Error)

	assert.Equal(t, "local", hosts[2].Source)
	assert.True(t, *hosts[2].Reachable)
}

func TestHostsCommand_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, hostsCommand(context.Background(), &buf, &inventory.Inventory{}, false, time.Second))
	assert.Equal(t, "No servers configured\n", buf.String())
}

func TestServerAddress(t *testing.T) {
	assert.Equal(t, "a.lan:22", serverAddress(monitor.Server{Host: "a.lan"}))
	assert.Equal(t, "a.lan:2200", serverAddress(monitor.Server{Host: "a.lan", Port: 2200}))
	assert.Equal(t, "localhost", serverAddress(monitor.Server{Local: true}))
}
