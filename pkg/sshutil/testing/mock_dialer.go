package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// hostScript controls how MockDialer answers dials for one alias.
type hostScript struct {
	factory  func() *MockClient
	err      error
	block    bool
	delay    time.Duration
	password string
}

// MockDialer is a scriptable sshutil.Dialer keyed by Target.Alias.
// Unscripted aliases get a fresh NewMockClient on every dial.
type MockDialer struct {
	mu          sync.Mutex
	scripts     map[string]*hostScript
	dials       map[string]int
	inFlight    map[string]int
	maxInFlight map[string]int
	targets     map[string]sshutil.Target
	clients     map[string][]*MockClient
}

var _ sshutil.Dialer = (*MockDialer)(nil)

// NewMockDialer creates an empty dialer.
func NewMockDialer() *MockDialer {
	return &MockDialer{
		scripts:     make(map[string]*hostScript),
		dials:       make(map[string]int),
		inFlight:    make(map[string]int),
		maxInFlight: make(map[string]int),
		targets:     make(map[string]sshutil.Target),
		clients:     make(map[string][]*MockClient),
	}
}

func (d *MockDialer) script(alias string) *hostScript {
	s, ok := d.scripts[alias]
	if !ok {
		s = &hostScript{}
		d.scripts[alias] = s
	}
	return s
}

// SetClientFactory sets how successful dials for alias build their client.
func (d *MockDialer) SetClientFactory(alias string, factory func() *MockClient) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script(alias).factory = factory
}

// SetError makes every dial for alias fail with err. nil clears it.
func (d *MockDialer) SetError(alias string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script(alias).err = err
}

// SetBlocking makes dials for alias hang until their context ends.
func (d *MockDialer) SetBlocking(alias string, block bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script(alias).block = block
}

// SetDelay holds dials for alias back by delay.
func (d *MockDialer) SetDelay(alias string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script(alias).delay = delay
}

// RequirePassword rejects dials for alias unless Target.Password matches,
// with the same error text the SSH library produces.
func (d *MockDialer) RequirePassword(alias, password string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script(alias).password = password
}

// Dial implements sshutil.Dialer.
func (d *MockDialer) Dial(ctx context.Context, target sshutil.Target) (sshutil.SSHClient, error) {
	alias := target.Alias

	d.mu.Lock()
	d.dials[alias]++
	d.targets[alias] = target
	d.inFlight[alias]++
	if d.inFlight[alias] > d.maxInFlight[alias] {
		d.maxInFlight[alias] = d.inFlight[alias]
	}
	s := *d.script(alias)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight[alias]--
		d.mu.Unlock()
	}()

	if s.block {
		<-ctx.Done()
		return nil, fmt.Errorf("dial tcp %s: i/o timeout: %w", target.Address(), ctx.Err())
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("dial tcp %s: i/o timeout: %w", target.Address(), ctx.Err())
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.password != "" && target.Password != s.password {
		return nil, fmt.Errorf("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")
	}

	var client *MockClient
	if s.factory != nil {
		client = s.factory()
	} else {
		client = NewMockClient(alias)
	}

	d.mu.Lock()
	d.clients[alias] = append(d.clients[alias], client)
	d.mu.Unlock()

	return client, nil
}

// DialCount returns how many dials were attempted for alias.
func (d *MockDialer) DialCount(alias string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[alias]
}

// MaxConcurrent returns the most dials for alias that were ever in flight at once.
func (d *MockDialer) MaxConcurrent(alias string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight[alias]
}

// LastTarget returns the target of the most recent dial for alias.
func (d *MockDialer) LastTarget(alias string) (sshutil.Target, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.targets[alias]
	return t, ok
}

// Clients returns the clients handed out for alias, oldest first.
func (d *MockDialer) Clients(alias string) []*MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockClient(nil), d.clients[alias]...)
}
