package testing

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// CommandResponse defines a canned response for a specific command pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error

	// Delay holds the response back; a cancelled context wins over it.
	Delay time.Duration
}

// ErrClosed is returned by a closed MockClient.
var ErrClosed = errors.New("connection closed")

// MockClient simulates an SSH connection for testing.
// Commands are answered from canned responses: an exact match first, then
// regex patterns in registration order, then the default response.
type MockClient struct {
	mu          sync.Mutex
	host        string
	address     string
	closed      bool
	commands    map[string]CommandResponse
	patterns    []string
	defaultResp CommandResponse
	pingErr     error
	pingBlock   bool
	history     []string
}

var _ sshutil.SSHClient = (*MockClient)(nil)

// NewMockClient creates a new mock client that answers every command with
// empty output and exit code 0 until responses are configured.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		address:  host + ":22",
		commands: make(map[string]CommandResponse),
	}
}

// SetCommandResponse configures the response for a command.
// The pattern can be an exact string or a regex pattern.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[pattern]; !exists {
		m.patterns = append(m.patterns, pattern)
	}
	m.commands[pattern] = resp
}

// SetDefaultResponse configures the response for unmatched commands.
func (m *MockClient) SetDefaultResponse(resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultResp = resp
}

// SetPingError makes Ping fail with err (nil restores success).
func (m *MockClient) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// SetPingBlock makes Ping hang until its context ends.
func (m *MockClient) SetPingBlock(block bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingBlock = block
}

func (m *MockClient) lookup(cmd string) CommandResponse {
	if resp, ok := m.commands[cmd]; ok {
		return resp
	}
	for _, pattern := range m.patterns {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return m.commands[pattern]
		}
	}
	return m.defaultResp
}

// Exec answers cmd from the configured responses.
func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	return m.ExecContext(context.Background(), cmd)
}

// ExecContext answers cmd from the configured responses, honouring ctx
// while a response delay is pending.
func (m *MockClient) ExecContext(ctx context.Context, cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, -1, ErrClosed
	}
	m.history = append(m.history, cmd)
	resp := m.lookup(cmd)
	m.mu.Unlock()

	if resp.Delay > 0 {
		timer := time.NewTimer(resp.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, nil, -1, ctx.Err()
		}
	} else if ctx.Err() != nil {
		return nil, nil, -1, ctx.Err()
	}

	return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
}

// Ping reports liveness according to SetPingError / SetPingBlock.
func (m *MockClient) Ping(ctx context.Context) error {
	m.mu.Lock()
	closed, block, pingErr := m.closed, m.pingBlock, m.pingErr
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return pingErr
}

// Close marks the connection as closed.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Commands returns every command executed so far, in order.
func (m *MockClient) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// GetHost returns the host name.
func (m *MockClient) GetHost() string {
	return m.host
}

// GetAddress returns the host:port address.
func (m *MockClient) GetAddress() string {
	return m.address
}
