package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownGrace)
	assert.Equal(t, 10*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.PingTimeout)
	assert.Equal(t, 1000, cfg.Monitor.HistorySize)
	assert.Equal(t, 200, cfg.Monitor.JobHistory)
	assert.Equal(t, 3, cfg.Monitor.RetryThreshold)
	assert.Equal(t, 0, cfg.Monitor.MaxAutoRetries)
	assert.True(t, cfg.Monitor.ParallelCollection)
	assert.Equal(t, DefaultPingTargets, cfg.Monitor.PingTargets)
	assert.Empty(t, cfg.SSH.FallbackPassword)
	assert.NoError(t, Validate(cfg))

	// Mutating the returned slice must not leak into the package default.
	cfg.Monitor.PingTargets[0] = "changed"
	assert.Equal(t, "8.8.8.8", DefaultPingTargets[0])
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: 1
server:
  port: 9090
ssh:
  connect_timeout: 4s
  fallback_password: hunter2
monitor:
  interval: 1m
  ping_targets: [10.0.0.1]
  max_auto_retries: 5
servers:
  - id: db-1
    host: 10.0.0.5
    user: postgres
    auth: password
    interval: 2m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4*time.Second, cfg.SSH.ConnectTimeout)
	assert.Equal(t, "hunter2", cfg.SSH.FallbackPassword)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Monitor.PingTargets)
	assert.Equal(t, 5, cfg.Monitor.MaxAutoRetries)

	// Unset keys keep their defaults.
	assert.Equal(t, 1000, cfg.Monitor.HistorySize)
	assert.Equal(t, 3*time.Second, cfg.SSH.LivenessTimeout)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, ServerEntry{
		ID: "db-1", Host: "10.0.0.5", User: "postgres", Auth: AuthPassword, Interval: 2 * time.Minute,
	}, cfg.Servers[0])
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	t.Setenv(EnvPort, "7070")
	t.Setenv(EnvSSHConfig, "/tmp/fleet_ssh_config")
	t.Setenv(EnvFallbackPassword, "from-env")
	t.Setenv("FLEETMON_MONITOR_INTERVAL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/fleet_ssh_config", cfg.SSH.ConfigPath)
	assert.Equal(t, "from-env", cfg.SSH.FallbackPassword)
	assert.Equal(t, 45*time.Second, cfg.Monitor.Interval)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NotContains(t, cfg.SSH.ConfigPath, "~", "tilde should be expanded")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	bad := writeConfig(t, "server: [unclosed\n")
	_, err = Load(bad)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	wrongType := writeConfig(t, "monitor:\n  history_size: lots\n")
	_, err = Load(wrongType)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind(t *testing.T) {
	path := writeConfig(t, "version: 1\n")

	found, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, found)

	_, err = Find(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "fleetmon.yaml")
	require.NoError(t, WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 30s")
	assert.Contains(t, string(data), "# Snapshots kept per server")
	assert.NotContains(t, string(data), "fallback_password:")

	cfg, err := Load(path)
	require.NoError(t, err)
	want := DefaultConfig()
	want.SSH.ConfigPath = ExpandTilde(want.SSH.ConfigPath)
	want.SSH.KnownHostsPath = ExpandTilde(want.SSH.KnownHostsPath)
	assert.Equal(t, want, cfg)

	err = WriteDefault(path, false)
	assert.True(t, errors.IsCode(err, errors.ErrConfig), "existing file needs overwrite")
	assert.NoError(t, WriteDefault(path, true))
}
