package sshutil

import "context"

// SSHClient defines the interface for remote command execution.
// The real Client, the local client, and the test mocks satisfy it.
type SSHClient interface {
	// Exec runs a command and returns stdout, stderr, and exit code.
	// Exit code is -1 if the command couldn't be executed at all.
	// A non-zero exit code with nil error means the command ran but failed.
	Exec(cmd string) (stdout, stderr []byte, exitCode int, err error)

	// ExecContext is Exec bounded by ctx. When ctx ends first the session is
	// torn down and ctx's error is returned.
	ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error)

	// Ping is a cheap liveness probe. It must return within ctx's deadline.
	Ping(ctx context.Context) error

	// Close closes the connection.
	Close() error

	// GetHost returns the server id or alias used to connect.
	GetHost() string

	// GetAddress returns the resolved host:port address.
	GetAddress() string
}

// Dialer opens authenticated connections. The pool depends on this rather
// than on Dial directly so tests can inject scripted connections.
type Dialer interface {
	Dial(ctx context.Context, target Target) (SSHClient, error)
}

// NetDialer dials real SSH servers over TCP.
type NetDialer struct {
	Options DialOptions
}

// NewNetDialer returns a Dialer using opts for every connection.
func NewNetDialer(opts DialOptions) *NetDialer {
	return &NetDialer{Options: opts}
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, target Target) (SSHClient, error) {
	c, err := Dial(ctx, target, d.Options)
	if err != nil {
		return nil, err
	}
	return c, nil
}
