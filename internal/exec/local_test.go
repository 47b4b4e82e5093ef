package exec

import (
	"context"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteLocalCapture(t *testing.T) {
	tests := []struct {
		name       string
		cmd        string
		wantStdout string
		wantStderr string
		wantCode   int
	}{
		{"simple", "echo hello", "hello\n", "", 0},
		{"pipe", "echo 'hello world' | tr ' ' '_'", "hello_world\n", "", 0},
		{"stderr", "echo oops >&2", "", "oops\n", 0},
		{"non-zero exit", "echo partial; exit 42", "partial\n", "", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, code, err := ExecuteLocalCapture(context.Background(), tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStdout, string(stdout))
			assert.Equal(t, tt.wantStderr, string(stderr))
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestExecuteLocalCapture_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, code, err := ExecuteLocalCapture(ctx, "sleep 5")
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestLocalDialer(t *testing.T) {
	client, err := LocalDialer{}.Dial(context.Background(), sshutil.Target{Alias: "local"})
	require.NoError(t, err)

	assert.Equal(t, "local", client.GetHost())
	assert.Equal(t, "localhost", client.GetAddress())
	assert.NoError(t, client.Ping(context.Background()))

	stdout, _, code, err := client.ExecContext(context.Background(), "echo up")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "up\n", string(stdout))
	assert.NoError(t, client.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LocalDialer{}.Dial(ctx, sshutil.Target{Alias: "local"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandError(t *testing.T) {
	tests := []struct {
		name     string
		cmd      string
		stderr   string
		exitCode int
		wantMsg  string
	}{
		{
			name:     "bash not found",
			cmd:      "ss -tulnH",
			stderr:   "bash: ss: command not found",
			exitCode: 127,
			wantMsg:  "'ss' not found in PATH on web-1",
		},
		{
			name:     "127 without pattern",
			cmd:      "vm_stat",
			stderr:   "",
			exitCode: 127,
			wantMsg:  "'vm_stat' not found in PATH on web-1",
		},
		{
			name:     "generic failure",
			cmd:      "cat /proc/meminfo",
			stderr:   "cat: /proc/meminfo: Permission denied\nmore",
			exitCode: 1,
			wantMsg:  "'cat' exited with code 1 on web-1: cat: /proc/meminfo: Permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CommandError("web-1", tt.cmd, tt.stderr, tt.exitCode)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCollect))

			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.wantMsg, e.Message)
		})
	}
}

func TestIsCommandNotFound(t *testing.T) {
	name, ok := IsCommandNotFound("zsh: command not found: nproc", 127)
	assert.True(t, ok)
	assert.Equal(t, "nproc", name)

	_, ok = IsCommandNotFound("bash: ss: command not found", 1)
	assert.False(t, ok, "only exit 127 counts")
}
