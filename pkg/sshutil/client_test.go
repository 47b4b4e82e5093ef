package sshutil_test

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
	sshtesting "github.com/fleetmon/fleetmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, password string, handler sshtesting.CommandHandler) *sshtesting.TestServer {
	t.Helper()
	srv, err := sshtesting.NewTestServer(password, handler)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func targetFor(srv *sshtesting.TestServer, password string) sshutil.Target {
	return sshutil.Target{
		Alias:    "test-box",
		Hostname: srv.Host(),
		Port:     srv.Port(),
		User:     "monitor",
		Password: password,
	}
}

func echoHandler(cmd string) (string, string, int) {
	switch {
	case cmd == "hostname":
		return "test-box\n", "", 0
	case strings.HasPrefix(cmd, "fail"):
		return "partial\n", "boom\n", 3
	case cmd == "slow":
		time.Sleep(2 * time.Second)
		return "late", "", 0
	}
	return "", "unknown command\n", 127
}

func TestDial_PasswordAuth(t *testing.T) {
	srv := startServer(t, "s3cret", echoHandler)

	client, err := sshutil.Dial(context.Background(), targetFor(srv, "s3cret"), sshutil.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, "test-box", client.GetHost())
	assert.Equal(t, targetFor(srv, "").Address(), client.GetAddress())

	stdout, stderr, code, err := client.Exec("hostname")
	require.NoError(t, err)
	assert.Equal(t, "test-box\n", string(stdout))
	assert.Empty(t, stderr)
	assert.Equal(t, 0, code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, client.Ping(ctx))
}

func TestDial_WrongPassword(t *testing.T) {
	srv := startServer(t, "s3cret", echoHandler)

	_, err := sshutil.Dial(context.Background(), targetFor(srv, "nope"), sshutil.DialOptions{Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth), "rejected credentials should be an auth error: %v", err)
	assert.True(t, sshutil.IsAuthError(stderrors.Unwrap(err)))
}

func TestDial_NoAuthMethods(t *testing.T) {
	srv := startServer(t, "s3cret", echoHandler)

	_, err := sshutil.Dial(context.Background(), targetFor(srv, ""), sshutil.DialOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))
	assert.Contains(t, err.Error(), "Password required for 'test-box'")
}

func TestDial_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	target := sshutil.Target{Alias: "gone", Hostname: "127.0.0.1", Port: addr.Port, User: "x", Password: "pw"}
	_, err = sshutil.Dial(context.Background(), target, sshutil.DialOptions{Timeout: 2 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSSH))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "Is SSH running")
}

func TestDial_CancelledDuringHandshake(t *testing.T) {
	// A listener that accepts but never speaks SSH stalls the handshake.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	target := sshutil.Target{Alias: "mute", Hostname: "127.0.0.1", Port: addr.Port, User: "x", Password: "pw"}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = sshutil.Dial(ctx, target, sshutil.DialOptions{Timeout: 10 * time.Second})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second, "dial must not outlive its context")
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestDial_ThroughJumpHost(t *testing.T) {
	jump := startServer(t, "jump-pw", nil)
	inner := startServer(t, "inner-pw", echoHandler)

	jt := targetFor(jump, "jump-pw")
	jt.Alias = "bastion"
	target := targetFor(inner, "inner-pw")
	target.Jump = &jt

	client, err := sshutil.Dial(context.Background(), target, sshutil.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	stdout, _, code, err := client.Exec("hostname")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "test-box\n", string(stdout))
}

func TestDial_JumpHostAuthFailureKeepsCode(t *testing.T) {
	jump := startServer(t, "jump-pw", nil)
	inner := startServer(t, "inner-pw", echoHandler)

	jt := targetFor(jump, "wrong")
	target := targetFor(inner, "inner-pw")
	target.Jump = &jt

	_, err := sshutil.Dial(context.Background(), target, sshutil.DialOptions{Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrAuth))
	assert.Contains(t, err.Error(), "Jump host")
}

func TestExec_NonZeroExit(t *testing.T) {
	srv := startServer(t, "pw", echoHandler)
	client, err := sshutil.Dial(context.Background(), targetFor(srv, "pw"), sshutil.DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	stdout, stderr, code, err := client.Exec("fail now")
	require.NoError(t, err, "non-zero exit is not an execution error")
	assert.Equal(t, 3, code)
	assert.Equal(t, "partial\n", string(stdout))
	assert.Equal(t, "boom\n", string(stderr))
}

func TestExecContext_Timeout(t *testing.T) {
	srv := startServer(t, "pw", echoHandler)
	client, err := sshutil.Dial(context.Background(), targetFor(srv, "pw"), sshutil.DialOptions{})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, code, err := client.ExecContext(ctx, "slow")
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
}

func TestTargetAddress(t *testing.T) {
	assert.Equal(t, "example.com:22", sshutil.Target{Hostname: "example.com"}.Address())
	assert.Equal(t, "10.0.0.1:2222", sshutil.Target{Hostname: "10.0.0.1", Port: 2222}.Address())
	assert.Equal(t, "[::1]:22", sshutil.Target{Hostname: "::1"}.Address())
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, sshutil.IsAuthError(stderrors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none], no supported methods remain")))
	assert.False(t, sshutil.IsAuthError(stderrors.New("dial tcp: connection refused")))
	assert.False(t, sshutil.IsAuthError(nil))
}

func TestExecContext_StalledSessionOpen(t *testing.T) {
	srv := startServer(t, "s3cret", echoHandler)
	srv.StallChannels(true)

	client, err := sshutil.Dial(context.Background(), targetFor(srv, "s3cret"), sshutil.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, code, err := client.ExecContext(ctx, "hostname")
	assert.Less(t, time.Since(start), 2*time.Second, "a server that never opens the channel must not hang the caller")
	require.Error(t, err)
	assert.Equal(t, -1, code)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
	assert.Contains(t, err.Error(), "did not open a session")

	// The wedged connection is closed, so later calls fail fast too.
	_, _, _, err = client.Exec("hostname")
	assert.Error(t, err)
}

func TestExecContext_TimeoutKeepsConnection(t *testing.T) {
	srv := startServer(t, "s3cret", echoHandler)

	client, err := sshutil.Dial(context.Background(), targetFor(srv, "s3cret"), sshutil.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _, _, err = client.ExecContext(ctx, "slow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not finish in time")

	stdout, _, code, err := client.Exec("hostname")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "test-box\n", string(stdout))
}
