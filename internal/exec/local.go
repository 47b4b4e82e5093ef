package exec

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// ExecuteLocalCapture runs a command locally through the shell and captures
// all output. A non-zero exit is reported through exitCode with a nil error,
// the same contract as SSH execution. Cancelling ctx kills the command.
func ExecuteLocalCapture(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	command := exec.CommandContext(ctx, shell(), "-c", cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	command.Stdout = &stdoutBuf
	command.Stderr = &stderrBuf

	runErr := command.Run()
	if ctx.Err() != nil {
		return nil, nil, -1, errors.WrapWithCode(ctx.Err(), errors.ErrExec,
			"Local command did not finish in time",
			"Raise ssh.command_timeout if this machine is under heavy load")
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			return stdoutBuf.Bytes(), stderrBuf.Bytes(), exitErr.ExitCode(), nil
		}
		return nil, nil, -1, errors.WrapWithCode(runErr, errors.ErrExec,
			"Couldn't run the command locally",
			"Make sure the command exists and is executable.")
	}

	return stdoutBuf.Bytes(), stderrBuf.Bytes(), 0, nil
}

func shell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// LocalClient runs commands on this machine behind the same interface as an
// SSH connection, so the built-in local server goes through the pool like
// every other server.
type LocalClient struct {
	name string
}

var _ sshutil.SSHClient = (*LocalClient)(nil)

// NewLocalClient returns a client named name (the server id).
func NewLocalClient(name string) *LocalClient {
	return &LocalClient{name: name}
}

// Exec runs cmd locally.
func (c *LocalClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return ExecuteLocalCapture(context.Background(), cmd)
}

// ExecContext runs cmd locally, killing it when ctx ends.
func (c *LocalClient) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return ExecuteLocalCapture(ctx, cmd)
}

// Ping always succeeds while ctx is live.
func (c *LocalClient) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (c *LocalClient) Close() error { return nil }

// GetHost returns the server id.
func (c *LocalClient) GetHost() string { return c.name }

// GetAddress returns "localhost".
func (c *LocalClient) GetAddress() string { return "localhost" }

// LocalDialer hands out LocalClients; it never fails.
type LocalDialer struct{}

var _ sshutil.Dialer = LocalDialer{}

// Dial implements sshutil.Dialer.
func (LocalDialer) Dial(ctx context.Context, target sshutil.Target) (sshutil.SSHClient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewLocalClient(target.Alias), nil
}
