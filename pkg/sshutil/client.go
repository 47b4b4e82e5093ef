package sshutil

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"golang.org/x/crypto/ssh"
)

// DefaultTimeout bounds TCP connect plus handshake when DialOptions.Timeout is unset.
const DefaultTimeout = 10 * time.Second

// keepaliveRequest is the global request OpenSSH answers on any live connection.
const keepaliveRequest = "keepalive@openssh.com"

// WarningHandler is a function that handles warning messages.
// If nil, warnings are printed via log.Printf.
var WarningHandler func(message string)

// emitWarning sends a warning through the configured handler or falls back to log.Printf.
func emitWarning(message string) {
	if WarningHandler != nil {
		WarningHandler(message)
	} else {
		log.Printf("Warning: %s", message)
	}
}

// Target describes how to reach and authenticate to one server.
type Target struct {
	// Alias names the server in messages (the server id).
	Alias        string
	Hostname     string
	Port         int
	User         string
	IdentityFile string

	// UseKeys enables key auth: agent, IdentityFile, then the default keys.
	UseKeys bool

	// Password is offered after key auth, as password and keyboard-interactive.
	Password string

	// Jump is an optional bastion the connection is tunnelled through.
	Jump *Target
}

// Address returns the host:port string for dialing.
func (t Target) Address() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Hostname, strconv.Itoa(port))
}

func (t Target) name() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Hostname
}

// DialOptions are process-wide connection settings.
type DialOptions struct {
	Timeout               time.Duration
	StrictHostKeyChecking bool
	KnownHostsPath        string
}

// Client wraps an SSH connection with additional metadata.
type Client struct {
	*ssh.Client
	Host    string // The server id or alias used to connect
	Address string // The resolved address (host:port)

	jump *Client
}

// Dial establishes an authenticated SSH connection to target, through
// target.Jump when set. Cancelling ctx aborts the TCP connect and the handshake.
func Dial(ctx context.Context, target Target, opts DialOptions) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	name := target.name()

	auth, encryptedKeys, err := authMethods(target)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallbackFor(opts)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			"Failed to load known_hosts",
			"Check ssh.known_hosts_path or disable ssh.strict_host_key_checking")
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	address := target.Address()
	var jump *Client
	var conn net.Conn

	if target.Jump != nil {
		jump, err = Dial(ctx, *target.Jump, opts)
		if err != nil {
			code := errors.CodeOf(err)
			if code == "" {
				code = errors.ErrSSH
			}
			return nil, errors.WrapWithCode(err, code,
				fmt.Sprintf("Jump host for '%s' is not available", name),
				"Check the ProxyJump host is reachable on its own")
		}
		conn, err = jump.Client.DialContext(ctx, "tcp", address)
		if err != nil {
			jump.Close()
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Jump host can't reach '%s' at %s", name, address),
				suggestionForDialError(err))
		}
	} else {
		d := net.Dialer{Timeout: opts.Timeout}
		conn, err = d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Can't reach '%s' at %s", name, address),
				suggestionForDialError(err))
		}
	}

	closeAll := func() {
		conn.Close()
		if jump != nil {
			jump.Close()
		}
	}

	// The handshake has no context support; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(opts.Timeout))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	cancelled := !stop()
	if err != nil || cancelled {
		closeAll()
		if cancelled || ctx.Err() != nil {
			cause := ctx.Err()
			if cause == nil {
				cause = err
			}
			return nil, errors.WrapWithCode(cause, errors.ErrSSH,
				fmt.Sprintf("SSH handshake with '%s' was cancelled", name),
				"The connect timeout may be too short for this host")
		}

		var hostKeyErr *HostKeyError
		if stderrors.As(err, &hostKeyErr) {
			return nil, errors.New(errors.ErrSSH,
				hostKeyErr.Error(),
				hostKeyErr.Suggestion())
		}

		code := errors.ErrSSH
		if IsAuthError(err) {
			code = errors.ErrAuth
		}
		return nil, errors.WrapWithCode(err, code,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", name),
			suggestionForHandshakeError(err, encryptedKeys))
	}
	_ = conn.SetDeadline(time.Time{})

	return &Client{
		Client:  ssh.NewClient(sshConn, chans, reqs),
		Host:    name,
		Address: address,
		jump:    jump,
	}, nil
}

// Close closes the SSH connection and any jump connection under it.
func (c *Client) Close() error {
	var err error
	if c.Client != nil {
		err = c.Client.Close()
	}
	if c.jump != nil {
		c.jump.Close()
	}
	return err
}

// GetHost returns the server id or alias used to connect.
func (c *Client) GetHost() string {
	return c.Host
}

// GetAddress returns the resolved host:port address.
func (c *Client) GetAddress() string {
	return c.Address
}

// Ping sends a keepalive global request. Any reply, including a refusal,
// proves the transport is alive; it is much cheaper than opening a session.
func (c *Client) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := c.Client.SendRequest(keepaliveRequest, true, nil)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsAuthError reports whether a handshake error means the server rejected
// every offered credential.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Try: ssh <host>"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	if strings.Contains(errStr, "no such host") {
		return "The hostname doesn't resolve. Check HostName in your SSH config."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	if IsAuthError(err) {
		if len(encryptedKeys) > 0 {
			return encryptedKeySuggestion(encryptedKeys)
		}
		return "Credentials were rejected. Check your keys are loaded (ssh-add -l) or supply a password with 'fleetmon connect <server>'"
	}
	if strings.Contains(err.Error(), "host key") {
		return "Host key issue. Try connecting manually first: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}
