package monitor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/exec"
	"github.com/fleetmon/fleetmon/internal/logger"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// LocalSource collects categories for the built-in local server without
// going through a shell.
type LocalSource interface {
	Collect(ctx context.Context, c metrics.Category) (any, error)
}

// CollectorOptions configure a Collector.
type CollectorOptions struct {
	CommandTimeout time.Duration
	PingTargets    []string
	PingTimeout    time.Duration
	// Parallel runs every category at once over the same connection.
	Parallel bool
}

// Collector gathers every metric category from one connection. Each
// category succeeds or fails on its own.
type Collector struct {
	opts  CollectorOptions
	local LocalSource
	log   logger.Logger
	now   func() time.Time

	onCategory func(serverID string, c metrics.Category, d time.Duration, err error)
}

// NewCollector creates a collector. local may be nil, in which case local
// servers are collected with shell commands like any other.
func NewCollector(opts CollectorOptions, local LocalSource, log logger.Logger) *Collector {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Noop()
	}
	return &Collector{opts: opts, local: local, log: log, now: time.Now}
}

type categoryResult struct {
	value any
	err   error
}

// Collect runs every category and assembles the snapshot. It never fails as
// a whole; unavailable categories are listed in Snapshot.Errors.
func (c *Collector) Collect(ctx context.Context, server Server, conn *Conn) *metrics.Snapshot {
	categories := metrics.Categories()
	results := make([]categoryResult, len(categories))

	run := func(i int) {
		start := c.now()
		value, err := c.CollectCategory(ctx, server, conn, categories[i])
		if c.onCategory != nil {
			c.onCategory(server.ID, categories[i], c.now().Sub(start), err)
		}
		results[i] = categoryResult{value: value, err: err}
	}

	if c.opts.Parallel {
		var (
			wg       sync.WaitGroup
			panicMu  sync.Mutex
			panicked any
		)
		for i := range categories {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				// Re-raised below so the poll cycle's recover sees it.
				defer func() {
					if r := recover(); r != nil {
						panicMu.Lock()
						if panicked == nil {
							panicked = r
						}
						panicMu.Unlock()
					}
				}()
				run(i)
			}(i)
		}
		wg.Wait()
		if panicked != nil {
			panic(panicked)
		}
	} else {
		for i := range categories {
			run(i)
		}
	}

	snap := &metrics.Snapshot{Timestamp: c.now()}
	for i, cat := range categories {
		r := results[i]
		if r.err == nil {
			r.err = apply(snap, cat, r.value)
		}
		if r.err != nil {
			c.log.Debug("%s: %s unavailable: %s", server.ID, cat, errors.Summary(r.err))
			snap.SetError(cat, fmt.Errorf("%s", errors.Summary(r.err)))
		}
	}
	return snap
}

// CollectCategory runs and parses the command for one category.
func (c *Collector) CollectCategory(ctx context.Context, server Server, conn *Conn, cat metrics.Category) (any, error) {
	if server.Local && c.local != nil && cat != metrics.CategoryPing {
		return c.local.Collect(ctx, cat)
	}

	cs := CommandSet{
		Platform:    conn.Platform,
		PingTargets: c.opts.PingTargets,
		PingTimeout: c.opts.PingTimeout,
	}
	cmd := cs.Command(cat)
	if cmd == "" {
		return cs.Parse(cat, "")
	}

	ctx, cancel := context.WithTimeout(ctx, cs.Timeout(cat, c.opts.CommandTimeout))
	defer cancel()

	stdout, stderr, code, err := conn.Client.ExecContext(ctx, cmd)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCollect,
			fmt.Sprintf("Collecting %s on %s failed", cat, server.ID), "")
	}
	if code != 0 && len(bytes.TrimSpace(stdout)) == 0 {
		return nil, exec.CommandError(server.ID, cmd, string(stderr), code)
	}

	value, err := cs.Parse(cat, string(stdout))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCollect,
			fmt.Sprintf("Couldn't parse %s output from %s", cat, server.ID), "")
	}
	return value, nil
}

// apply stores value in the snapshot field for cat. Empty values count as
// unavailable.
func apply(snap *metrics.Snapshot, cat metrics.Category, value any) error {
	switch v := value.(type) {
	case *metrics.CPU:
		if v != nil && v.Cores > 0 {
			snap.CPU = v
		}
	case *metrics.Memory:
		if v != nil && v.Total > 0 {
			snap.Memory = v
		}
	case []metrics.Disk:
		snap.Disks = v
	case []metrics.NetworkInterface:
		snap.Network = v
	case []metrics.Port:
		snap.Ports = v
	case []metrics.PingResult:
		snap.Ping = v
	case *metrics.System:
		if v != nil && v.Hostname != "" {
			snap.System = v
		}
	default:
		return fmt.Errorf("unexpected %T for %s", value, cat)
	}

	if !snap.Available(cat) {
		return metrics.ErrNoData
	}
	return nil
}
