package inventory

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor"
)

// ProbeFailReason categorizes why a probe failed.
type ProbeFailReason int

const (
	ProbeFailUnknown ProbeFailReason = iota
	ProbeFailTimeout
	ProbeFailRefused
	ProbeFailUnreachable
	ProbeFailDNS
)

func (r ProbeFailReason) String() string {
	switch r {
	case ProbeFailTimeout:
		return "connection timed out"
	case ProbeFailRefused:
		return "connection refused"
	case ProbeFailUnreachable:
		return "host unreachable"
	case ProbeFailDNS:
		return "name not resolved"
	default:
		return "unknown error"
	}
}

// ProbeResult is the TCP reachability of one server's SSH port.
type ProbeResult struct {
	ServerID string
	Address  string
	Latency  time.Duration
	Reason   ProbeFailReason
	Err      error
}

// OK reports whether the port accepted a connection.
func (r ProbeResult) OK() bool { return r.Err == nil }

// Probe opens and closes a TCP connection to the server's SSH port, or its
// jump host's when it has one. Local servers always succeed.
func Probe(ctx context.Context, s monitor.Server, timeout time.Duration) ProbeResult {
	host, port := s.Host, s.Port
	if s.Jump != nil {
		host, port = s.Jump.Host, s.Jump.Port
	}
	if port == 0 {
		port = 22
	}
	res := ProbeResult{ServerID: s.ID, Address: net.JoinHostPort(host, strconv.Itoa(port))}
	if s.Local {
		res.Address = "localhost"
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", res.Address)
	if err != nil {
		res.Err = err
		res.Reason = categorizeProbeError(err)
		return res
	}
	conn.Close()
	res.Latency = time.Since(start)
	return res
}

// ProbeAll probes every server concurrently, at most limit at a time.
// Results are in the order of servers.
func ProbeAll(ctx context.Context, servers []monitor.Server, timeout time.Duration, limit int) []ProbeResult {
	if limit <= 0 {
		limit = 8
	}
	results := make([]ProbeResult, len(servers))
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, s := range servers {
		wg.Add(1)
		go func(i int, s monitor.Server) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = Probe(ctx, s, timeout)
		}(i, s)
	}
	wg.Wait()
	return results
}

func categorizeProbeError(err error) ProbeFailReason {
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return ProbeFailDNS
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ProbeFailTimeout
	case strings.Contains(msg, "connection refused"):
		return ProbeFailRefused
	case strings.Contains(msg, "no route to host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "host is down"):
		return ProbeFailUnreachable
	}
	return ProbeFailUnknown
}
