package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/client"
	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor"
	sshtesting "github.com/fleetmon/fleetmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitor.RetryThreshold = 5
	cfg.Monitor.MaxAutoRetries = 10
	cfg.Monitor.ParallelCollection = false
	cfg.SSH.FallbackPassword = "hunter2"

	opts := monitorOptions(cfg)

	assert.Equal(t, cfg.Monitor.Tick, opts.Tick)
	assert.Equal(t, cfg.Monitor.InitialStagger, opts.InitialStagger)
	assert.Equal(t, cfg.SSH.IdleTimeout, opts.IdleTimeout)
	assert.Equal(t, cfg.Server.ShutdownGrace, opts.ShutdownGrace)
	assert.Equal(t, cfg.Monitor.HistorySize, opts.HistorySize)
	assert.Equal(t, cfg.Monitor.JobHistory, opts.JobHistory)
	assert.Equal(t, monitor.Policy{RetryThreshold: 5, MaxAutoRetries: 10}, opts.Policy)
	assert.Equal(t, "hunter2", opts.Pool.FallbackPassword)
	assert.Equal(t, cfg.SSH.LivenessTimeout, opts.Pool.LivenessTimeout)
	assert.Equal(t, cfg.SSH.CommandTimeout, opts.Collector.CommandTimeout)
	assert.Equal(t, cfg.Monitor.PingTargets, opts.Collector.PingTargets)
	assert.False(t, opts.Collector.Parallel)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func writeServeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetmon.yaml")
	content := fmt.Sprintf("ssh:\n  config_path: %s\n%s", filepath.Join(dir, "no_ssh_config"), body)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildFleet(t *testing.T) {
	path := writeServeConfig(t, `
monitor:
  include_local: false
  interval: 1h
servers:
  - id: web
    host: web.example.com
    user: ops
    auth: key
  - id: db
    host: db.example.com
    user: ops
    auth: key
`)

	f, err := buildFleet(serveFlags{ConfigPath: path, Host: "127.0.0.1", Port: 9999}, sshtesting.NewMockDialer())
	require.NoError(t, err)
	t.Cleanup(f.api.Close)

	assert.Equal(t, path, f.path)
	assert.Equal(t, "127.0.0.1:9999", f.api.Addr())
	require.Len(t, f.monitor.Servers(), 2)
	assert.Equal(t, "web", f.monitor.Servers()[0].ID)

	banner := serveBanner(f)
	assert.Contains(t, banner.Details, [2]string{"servers", "2 servers"})
	assert.Contains(t, banner.Details, [2]string{"listen", "http://127.0.0.1:9999"})
}

func TestBuildFleet_NoServers(t *testing.T) {
	path := writeServeConfig(t, "monitor:\n  include_local: false\n")

	_, err := buildFleet(serveFlags{ConfigPath: path}, sshtesting.NewMockDialer())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Contains(t, err.Error(), "No servers to monitor")
}

func TestBuildFleet_InvalidConfig(t *testing.T) {
	path := writeServeConfig(t, "monitor:\n  retry_threshold: 0\n")

	_, err := buildFleet(serveFlags{ConfigPath: path}, sshtesting.NewMockDialer())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_threshold")
}

func TestFleetRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	path := writeServeConfig(t, `
monitor:
  include_local: false
  initial_stagger: 0s
servers:
  - id: web
    host: web.example.com
    user: ops
    auth: key
`)

	dialer := sshtesting.NewMockDialer()
	dialer.SetClientFactory("web", func() *sshtesting.MockClient { return memoryOnlyClient("web") })

	f, err := buildFleet(serveFlags{ConfigPath: path, Host: "127.0.0.1", Port: port}, dialer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.run(ctx) }()

	c, err := client.New(fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		views, err := c.Servers(context.Background())
		return err == nil && len(views) == 1 && views[0].Status.Kind == monitor.StatusOnline
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeCommand_ReportsConfigErrors(t *testing.T) {
	var buf bytes.Buffer
	err := serveCommand(context.Background(), &buf, serveFlags{ConfigPath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
	assert.Empty(t, buf.String())
}
