package monitor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
)

// serverState is the one mutable record per server. Only the poll cycle
// holding inFlight moves status through Connecting; everything else reads
// under mu.
type serverState struct {
	server   Server
	inFlight atomic.Bool

	mu               sync.Mutex
	status           Status
	lastSeen         time.Time
	lastAttempt      time.Time
	nextMonitoring   time.Time
	everOnline       bool
	retryCount       int
	needsCredentials bool
	pending          *PendingSecret
	secret           string
	paused           bool
	suspended        bool
}

func newServerState(s Server, firstPoll time.Time) *serverState {
	return &serverState{
		server:         s,
		status:         Status{Kind: StatusDisconnected},
		nextMonitoring: firstPoll,
	}
}

// due reports whether a scheduled cycle should start at now.
func (s *serverState) due(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || s.needsCredentials || s.suspended {
		return false
	}
	return !now.Before(s.nextMonitoring)
}

// begin moves the server to Connecting and returns the status it replaced.
func (s *serverState) begin(now time.Time) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	s.status = Status{Kind: StatusConnecting}
	s.lastAttempt = now
	s.nextMonitoring = now.Add(s.server.Interval)
	return prev
}

// succeed records a completed cycle.
func (s *serverState) succeed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{Kind: StatusOnline}
	s.lastSeen = now
	s.everOnline = true
	s.retryCount = 0
	s.needsCredentials = false
	s.pending = nil
	s.suspended = false
}

// authFailed pauses scheduled polling until a secret is supplied. The retry
// count is left alone.
func (s *serverState) authFailed(reason string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = ErrorStatus("authentication required: " + reason)
	s.needsCredentials = true
	s.pending = &PendingSecret{Reason: reason, RequestedAt: now}
	// A cached secret that was just rejected is no use on later polls.
	s.secret = ""
}

// failed records a transient or internal failure and reports whether the
// server is now suspended.
func (s *serverState) failed(msg string, policy Policy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retryCount++
	if s.everOnline {
		s.status = Status{Kind: StatusOffline, Message: msg}
	} else {
		s.status = ErrorStatus(msg)
	}
	if policy.ShouldSuspend(s.retryCount) {
		s.suspended = true
	}
	return s.suspended
}

// restore puts back the status a cancelled cycle replaced.
func (s *serverState) restore(prev Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Kind == StatusConnecting {
		s.status = prev
	}
}

// supplySecret caches secret (when given) and lifts every hold on polling.
func (s *serverState) supplySecret(secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if secret != "" {
		s.secret = secret
	}
	s.needsCredentials = false
	s.pending = nil
	s.suspended = false
}

// cancelSecret drops the pending request. The server stays paused for
// credentials until one is supplied.
func (s *serverState) cancelSecret() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	had := s.pending != nil
	s.pending = nil
	return had
}

func (s *serverState) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

func (s *serverState) cachedSecret() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

func (s *serverState) retries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

func (s *serverState) currentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *serverState) view(policy Policy) ServerView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := ServerView{
		Server:           s.server,
		Status:           s.status,
		NextMonitoring:   s.nextMonitoring,
		RetryCount:       s.retryCount,
		NeedsCredentials: s.needsCredentials,
		NeedsManualRetry: policy.NeedsManualRetry(s.retryCount),
		HasSecret:        s.secret != "",
		Paused:           s.paused,
		Suspended:        s.suspended,
		InFlight:         s.inFlight.Load(),
	}
	if !s.lastSeen.IsZero() {
		t := s.lastSeen
		v.LastSeen = &t
	}
	if !s.lastAttempt.IsZero() {
		t := s.lastAttempt
		v.LastAttempt = &t
	}
	if s.pending != nil {
		p := *s.pending
		v.PendingSecret = &p
	}
	return v
}

// registry is the fixed server set. It is never written after newRegistry.
type registry struct {
	order []*serverState
	byID  map[string]*serverState
}

// newRegistry staggers first polls by index*stagger from start.
func newRegistry(servers []Server, start time.Time, stagger time.Duration) (*registry, error) {
	r := &registry{byID: make(map[string]*serverState, len(servers))}
	for i, s := range servers {
		if s.ID == "" {
			return nil, errors.New(errors.ErrConfig, "Server with empty id", "Give every server an id")
		}
		if _, dup := r.byID[s.ID]; dup {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Duplicate server id '%s'", s.ID),
				"Server ids must be unique across ssh_config and the servers list")
		}
		st := newServerState(s, start.Add(time.Duration(i)*stagger))
		r.order = append(r.order, st)
		r.byID[s.ID] = st
	}
	return r, nil
}

func (r *registry) get(id string) (*serverState, error) {
	st, ok := r.byID[id]
	if !ok {
		return nil, errors.New(errors.ErrNotFound,
			fmt.Sprintf("Server '%s' not found", id),
			"List known servers with 'fleetmon hosts'")
	}
	return st, nil
}
