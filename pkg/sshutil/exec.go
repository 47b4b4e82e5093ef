package sshutil

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/fleetmon/fleetmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Exec runs a command on the remote host and returns the output.
// Returns stdout, stderr, exit code, and any error.
// Exit code is -1 if the command couldn't be executed at all.
func (c *Client) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return c.ExecContext(context.Background(), cmd)
}

// ExecContext runs cmd in a new session. If ctx ends before the command
// finishes, the session is killed and ctx's error is returned. A server that
// never confirms the session channel has wedged the connection, so in that
// case the whole client is closed.
func (c *Client) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	var (
		mu        sync.Mutex
		session   *ssh.Session
		abandoned bool
	)
	done := make(chan execResult, 1)

	go func() {
		s, err := c.Client.NewSession()
		if err != nil {
			done <- execResult{code: -1, err: errors.WrapWithCode(err, errors.ErrSSH,
				"Failed to create SSH session",
				"Connection may have been closed. Try reconnecting.")}
			return
		}
		mu.Lock()
		if abandoned {
			mu.Unlock()
			s.Close()
			return
		}
		session = s
		mu.Unlock()
		defer s.Close()

		var stdoutBuf, stderrBuf bytes.Buffer
		s.Stdout = &stdoutBuf
		s.Stderr = &stderrBuf
		done <- runResult(cmd, s.Run(cmd), stdoutBuf.Bytes(), stderrBuf.Bytes())
	}()

	select {
	case r := <-done:
		return r.stdout, r.stderr, r.code, r.err
	case <-ctx.Done():
	}

	mu.Lock()
	abandoned = true
	s := session
	mu.Unlock()

	msg := "Remote command did not finish in time"
	if s != nil {
		_ = s.Signal(ssh.SIGKILL)
		s.Close()
	} else {
		msg = "Server did not open a session in time"
		c.Client.Close()
	}
	return nil, nil, -1, errors.WrapWithCode(ctx.Err(), errors.ErrExec, msg,
		"Raise ssh.command_timeout if the host is slow")
}

type execResult struct {
	stdout, stderr []byte
	code           int
	err            error
}

func runResult(cmd string, runErr error, stdout, stderr []byte) execResult {
	if runErr == nil {
		return execResult{stdout: stdout, stderr: stderr}
	}
	var exitErr *ssh.ExitError
	if stderrors.As(runErr, &exitErr) {
		return execResult{stdout: stdout, stderr: stderr, code: exitErr.ExitStatus()}
	}
	return execResult{code: -1, err: errors.WrapWithCode(runErr, errors.ErrExec,
		fmt.Sprintf("Failed to execute command: %s", firstWord(cmd)),
		"Check if the command exists on the remote host.")}
}

func firstWord(cmd string) string {
	for i, r := range cmd {
		if r == ' ' || r == ';' || r == '|' {
			return cmd[:i]
		}
	}
	return cmd
}
