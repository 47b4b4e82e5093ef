package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/logger"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// Conn is one pooled connection. The pool owns it; callers borrow it for a
// poll cycle and never close it themselves.
type Conn struct {
	ServerID  string
	Client    sshutil.SSHClient
	Platform  Platform
	CreatedAt time.Time

	lastUsed atomic.Int64
}

// LastUsed returns when the connection was last handed out.
func (c *Conn) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}

func (c *Conn) touch(now time.Time) {
	c.lastUsed.Store(now.UnixNano())
}

// PoolOptions configure a Pool.
type PoolOptions struct {
	// LivenessTimeout bounds the keepalive check on a reused connection.
	LivenessTimeout time.Duration
	// CommandTimeout bounds platform detection on a new connection.
	CommandTimeout time.Duration
	// FallbackPassword is offered when no secret was supplied.
	FallbackPassword string
}

// PoolStats is a consistent snapshot of the pool.
type PoolStats struct {
	Active      int           `json:"active_connections"`
	Total       int64         `json:"total_connections"`
	OldestAge   time.Duration `json:"oldest_connection_age"`
	YoungestAge time.Duration `json:"youngest_connection_age"`
}

// ConnInfo describes the pooled connection of one server.
type ConnInfo struct {
	Address   string    `json:"address"`
	Platform  Platform  `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// slot serialises dials for one server. sem is held for a whole Acquire;
// mu only guards conn, so readers never wait on a dial.
type slot struct {
	server Server
	sem    chan struct{}

	mu   sync.Mutex
	conn *Conn
}

func (s *slot) get() *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Pool holds at most one live connection per server.
type Pool struct {
	slots  map[string]*slot
	dialer sshutil.Dialer
	local  sshutil.Dialer
	opts   PoolOptions
	log    logger.Logger
	now    func() time.Time

	created atomic.Int64
	active  atomic.Int64
	closed  atomic.Bool

	onDial func(serverID string, d time.Duration, err error)
}

// NewPool creates a pool for servers. Local servers are dialed through local.
func NewPool(servers []Server, dialer, local sshutil.Dialer, opts PoolOptions, log logger.Logger) *Pool {
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = 3 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}

	p := &Pool{
		slots:  make(map[string]*slot, len(servers)),
		dialer: dialer,
		local:  local,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
	for _, s := range servers {
		p.slots[s.ID] = &slot{server: s, sem: make(chan struct{}, 1)}
	}
	return p
}

// Acquire returns a live connection for serverID, dialing when the pooled
// one is missing or fails its liveness check. secret, when set, is offered
// as the password; otherwise the fallback password is. Failures are
// *AcquireError.
func (p *Pool) Acquire(ctx context.Context, serverID, secret string) (*Conn, error) {
	s, ok := p.slots[serverID]
	if !ok {
		return nil, &AcquireError{ServerID: serverID, Kind: FailureInternal,
			Err: errors.New(errors.ErrNotFound, fmt.Sprintf("Server '%s' is not in the pool", serverID), "")}
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, &AcquireError{ServerID: serverID, Kind: FailureTransient,
			Err: errors.WrapWithCode(ctx.Err(), errors.ErrTransient, "Gave up waiting for another connect to finish", "")}
	}
	defer func() { <-s.sem }()

	if conn := s.get(); conn != nil {
		if p.alive(ctx, conn) {
			conn.touch(p.now())
			return conn, nil
		}
		p.log.Debug("%s: pooled connection failed liveness check, reconnecting", serverID)
		p.drop(s, conn)
	}

	password := secret
	if password == "" {
		password = p.opts.FallbackPassword
	}
	target := s.server.Target(password)

	dialer := p.dialer
	if s.server.Local {
		dialer = p.local
	}
	if dialer == nil {
		return nil, &AcquireError{ServerID: serverID, Kind: FailureInternal,
			Err: errors.New(errors.ErrInternal, "No dialer configured for "+serverID, "")}
	}

	start := p.now()
	client, err := dialer.Dial(ctx, target)
	if p.onDial != nil {
		p.onDial(serverID, p.now().Sub(start), err)
	}
	if err != nil {
		return nil, &AcquireError{ServerID: serverID, Kind: Classify(err), Err: err}
	}

	platform, err := p.detectPlatform(ctx, s.server, client)
	if err != nil {
		_ = client.Close()
		return nil, &AcquireError{ServerID: serverID, Kind: FailureTransient, Err: err}
	}

	now := p.now()
	conn := &Conn{
		ServerID:  serverID,
		Client:    client,
		Platform:  platform,
		CreatedAt: now,
	}
	conn.touch(now)

	s.mu.Lock()
	if p.closed.Load() {
		s.mu.Unlock()
		_ = client.Close()
		return nil, &AcquireError{ServerID: serverID, Kind: FailureTransient,
			Err: errors.New(errors.ErrTransient, "Connection pool is closed", "")}
	}
	s.conn = conn
	s.mu.Unlock()

	p.created.Add(1)
	p.active.Add(1)
	p.log.Debug("%s: connected to %s (%s)", serverID, client.GetAddress(), conn.Platform)
	return conn, nil
}

func (p *Pool) alive(ctx context.Context, conn *Conn) bool {
	ctx, cancel := context.WithTimeout(ctx, p.opts.LivenessTimeout)
	defer cancel()
	return conn.Client.Ping(ctx) == nil
}

// detectPlatform runs uname to determine the OS type. A failing command
// leaves the platform unknown and the Linux command set is used; running out
// of time means the connection is unusable and is an error.
func (p *Pool) detectPlatform(ctx context.Context, s Server, client sshutil.SSHClient) (Platform, error) {
	if s.Local {
		return localPlatform(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.CommandTimeout)
	defer cancel()

	stdout, _, code, err := client.ExecContext(ctx, PlatformDetectCommand())
	if ctx.Err() != nil {
		return PlatformUnknown, errors.WrapWithCode(ctx.Err(), errors.ErrTransient,
			fmt.Sprintf("'%s' accepted the connection but did not run a command within %s", s.ID, p.opts.CommandTimeout),
			"The SSH daemon may be overloaded; it is retried on the next poll")
	}
	if err != nil || code != 0 {
		return PlatformUnknown, nil
	}
	return ParsePlatform(string(stdout)), nil
}

func localPlatform() Platform {
	switch runtime.GOOS {
	case "linux":
		return PlatformLinux
	case "darwin":
		return PlatformDarwin
	}
	return PlatformUnknown
}

// drop removes conn from s if it is still the pooled one, and closes it.
func (p *Pool) drop(s *slot, conn *Conn) bool {
	s.mu.Lock()
	if s.conn != conn || conn == nil {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	s.mu.Unlock()

	_ = conn.Client.Close()
	p.active.Add(-1)
	return true
}

// Evict closes and removes the connection for serverID, if any.
func (p *Pool) Evict(serverID string) bool {
	s, ok := p.slots[serverID]
	if !ok {
		return false
	}
	return p.drop(s, s.get())
}

// ReapIdle evicts connections unused for longer than maxIdle, skipping any
// that are being acquired right now. Returns the evicted server ids.
func (p *Pool) ReapIdle(maxIdle time.Duration) []string {
	if maxIdle <= 0 {
		return nil
	}
	now := p.now()

	var evicted []string
	for id, s := range p.slots {
		select {
		case s.sem <- struct{}{}:
		default:
			continue
		}
		if conn := s.get(); conn != nil && now.Sub(conn.LastUsed()) > maxIdle {
			if p.drop(s, conn) {
				evicted = append(evicted, id)
			}
		}
		<-s.sem
	}
	return evicted
}

// Close evicts every connection. Connections dialed after Close are
// closed instead of pooled.
func (p *Pool) Close() {
	p.closed.Store(true)
	for id := range p.slots {
		p.Evict(id)
	}
}

// Has reports whether serverID has a pooled connection.
func (p *Pool) Has(serverID string) bool {
	s, ok := p.slots[serverID]
	return ok && s.get() != nil
}

// Info describes the pooled connection for serverID.
func (p *Pool) Info(serverID string) (ConnInfo, bool) {
	s, ok := p.slots[serverID]
	if !ok {
		return ConnInfo{}, false
	}
	conn := s.get()
	if conn == nil {
		return ConnInfo{}, false
	}
	return ConnInfo{
		Address:   conn.Client.GetAddress(),
		Platform:  conn.Platform,
		CreatedAt: conn.CreatedAt,
		LastUsed:  conn.LastUsed(),
	}, true
}

// Active returns the number of live connections.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Stats returns connection counts and the age spread of live connections.
// Active and the ages come from the same scan, so they always agree.
func (p *Pool) Stats() PoolStats {
	now := p.now()
	stats := PoolStats{Total: p.created.Load()}

	first := true
	for _, s := range p.slots {
		conn := s.get()
		if conn == nil {
			continue
		}
		stats.Active++
		age := now.Sub(conn.CreatedAt)
		if first || age > stats.OldestAge {
			stats.OldestAge = age
		}
		if first || age < stats.YoungestAge {
			stats.YoungestAge = age
		}
		first = false
	}
	return stats
}
