package monitor

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/exec"
	"github.com/fleetmon/fleetmon/internal/logger"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/fleetmon/fleetmon/pkg/sshutil"
)

// ErrPollInFlight is returned by Connect while a cycle is already running
// for the server.
var ErrPollInFlight = errors.New(errors.ErrConflict,
	"A poll is already running for this server",
	"Wait for it to finish and try again")

// ErrShuttingDown is returned by Connect once Run has begun shutting down.
var ErrShuttingDown = errors.New(errors.ErrTransient,
	"Monitor is shutting down",
	"")

// Options configure a Monitor. Zero values take the defaults noted.
type Options struct {
	Tick           time.Duration // 1s
	InitialStagger time.Duration
	IdleTimeout    time.Duration // 0 disables reaping
	ShutdownGrace  time.Duration // 10s
	HistorySize    int           // DefaultHistorySize
	JobHistory     int           // DefaultJobHistory
	EventBuffer    int           // 64

	Policy    Policy
	Pool      PoolOptions
	Collector CollectorOptions

	// LocalDialer and LocalSource serve servers with Local set. They default
	// to a shell on this machine and gopsutil.
	LocalDialer sshutil.Dialer
	LocalSource LocalSource
}

func (o *Options) setDefaults() {
	if o.Tick <= 0 {
		o.Tick = time.Second
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.JobHistory <= 0 {
		o.JobHistory = DefaultJobHistory
	}
	if o.LocalDialer == nil {
		o.LocalDialer = exec.LocalDialer{}
	}
	if o.LocalSource == nil {
		o.LocalSource = NewHostSource()
	}
}

// Monitor owns the server registry, the pool, and everything a poll cycle
// writes to. All methods are safe for concurrent use.
type Monitor struct {
	reg       *registry
	pool      *Pool
	collector *Collector
	history   *History
	jobs      *Jobs
	events    *Events
	telemetry *Telemetry
	policy    Policy
	opts      Options
	log       logger.Logger
	now       func() time.Time

	running      atomic.Bool
	lifecycle    sync.Mutex
	closing      bool
	wg           sync.WaitGroup
	cycleCtx     context.Context
	cancelCycles context.CancelFunc
}

// New builds a monitor for servers. dialer opens SSH connections for every
// server that is not Local.
func New(servers []Server, dialer sshutil.Dialer, opts Options, log logger.Logger) (*Monitor, error) {
	opts.setDefaults()
	if log == nil {
		log = logger.Noop()
	}

	reg, err := newRegistry(servers, time.Now(), opts.InitialStagger)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		reg:       reg,
		pool:      NewPool(servers, dialer, opts.LocalDialer, opts.Pool, logger.Named(log, "pool")),
		collector: NewCollector(opts.Collector, opts.LocalSource, logger.Named(log, "collect")),
		history:   NewHistory(opts.HistorySize),
		jobs:      NewJobs(opts.JobHistory),
		events:    NewEvents(opts.EventBuffer),
		telemetry: NewTelemetry(),
		policy:    opts.Policy,
		opts:      opts,
		log:       log,
		now:       time.Now,
	}
	m.cycleCtx, m.cancelCycles = context.WithCancel(context.Background())

	m.pool.onDial = m.telemetry.RecordDial
	m.collector.onCategory = m.telemetry.RecordCategory
	m.events.dropped = m.telemetry.RecordDroppedEvent
	m.telemetry.watchPool(m.pool)
	m.telemetry.historyCapacity.Set(float64(opts.HistorySize))
	for _, st := range reg.order {
		m.telemetry.RecordStatus(st.server.ID, "", StatusDisconnected)
	}
	return m, nil
}

// Servers returns a view of every server in definition order.
func (m *Monitor) Servers() []ServerView {
	out := make([]ServerView, 0, len(m.reg.order))
	for _, st := range m.reg.order {
		out = append(out, m.view(st))
	}
	return out
}

// Server returns the view of one server.
func (m *Monitor) Server(id string) (ServerView, error) {
	st, err := m.reg.get(id)
	if err != nil {
		return ServerView{}, err
	}
	return m.view(st), nil
}

func (m *Monitor) view(st *serverState) ServerView {
	v := st.view(m.policy)
	v.Connected = m.pool.Has(st.server.ID)
	return v
}

// Details returns the latest value of one category for a server. ok is false
// when the category was unavailable in the latest snapshot or nothing has
// been recorded yet; reason then says why.
func (m *Monitor) Details(id string, c metrics.Category) (value any, ok bool, reason string, err error) {
	if _, err := m.reg.get(id); err != nil {
		return nil, false, "", err
	}
	snap := m.history.Latest(id)
	if snap == nil {
		return nil, false, "no data collected yet", nil
	}
	if value, ok := snap.Value(c); ok {
		return value, true, "", nil
	}
	reason = snap.Errors[c]
	if reason == "" {
		reason = metrics.ErrNoData.Error()
	}
	return nil, false, reason, nil
}

// History returns up to limit recent snapshots for a server, oldest first.
func (m *Monitor) History(id string, limit int) ([]*metrics.Snapshot, error) {
	if _, err := m.reg.get(id); err != nil {
		return nil, err
	}
	return m.history.Recent(id, limit), nil
}

// Connect caches secret (when given), lifts any credential or suspension
// hold, and runs one poll cycle now. The returned view reflects the cycle's
// outcome; a failed cycle is not an error here.
func (m *Monitor) Connect(ctx context.Context, id, secret string) (ServerView, error) {
	st, err := m.reg.get(id)
	if err != nil {
		return ServerView{}, err
	}
	if !st.inFlight.CompareAndSwap(false, true) {
		return m.view(st), ErrPollInFlight
	}
	defer st.inFlight.Store(false)

	if !m.track() {
		return m.view(st), ErrShuttingDown
	}
	defer m.wg.Done()

	st.supplySecret(secret)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.cycleCtx, cancel)
	defer stop()

	if err := m.poll(ctx, st, TriggerManual, secret); err != nil {
		m.log.Debug("%s: manual connect failed: %s", id, errors.Summary(err))
	}
	return m.view(st), nil
}

// CancelSecret drops the outstanding password request for a server.
func (m *Monitor) CancelSecret(id string) (bool, error) {
	st, err := m.reg.get(id)
	if err != nil {
		return false, err
	}
	return st.cancelSecret(), nil
}

// Pause stops scheduled polling for a server. Manual connects still run.
func (m *Monitor) Pause(id string) error {
	return m.setPaused(id, true)
}

// Resume restarts scheduled polling for a server.
func (m *Monitor) Resume(id string) error {
	return m.setPaused(id, false)
}

func (m *Monitor) setPaused(id string, paused bool) error {
	st, err := m.reg.get(id)
	if err != nil {
		return err
	}
	st.setPaused(paused)
	verb := "resumed"
	if paused {
		verb = "paused"
	}
	m.log.Info("%s: monitoring %s", id, verb)
	return nil
}

// Jobs returns the poll cycle log.
func (m *Monitor) Jobs() *Jobs { return m.jobs }

// Events returns the event hub.
func (m *Monitor) Events() *Events { return m.events }

// Telemetry returns the Prometheus collectors.
func (m *Monitor) Telemetry() *Telemetry { return m.telemetry }

// PoolStats returns aggregate connection statistics.
func (m *Monitor) PoolStats() PoolStats { return m.pool.Stats() }

// ConnectionSummary describes one server's pooled connection and polling
// schedule. Ages are relative to when the summary was taken.
type ConnectionSummary struct {
	ServerID   string        `json:"server_id"`
	Name       string        `json:"name"`
	Host       string        `json:"host"`
	User       string        `json:"username"`
	Connected  bool          `json:"connected"`
	Status     Status        `json:"status"`
	RetryCount int           `json:"retry_count"`
	Interval   time.Duration `json:"interval"`
	// LastSeenAge is nil until the server has been online once.
	LastSeenAge *time.Duration `json:"last_seen_age,omitempty"`
	// NextMonitoringAge is zero when the server is due.
	NextMonitoringAge time.Duration `json:"next_monitoring_age"`
	Conn              *ConnInfo     `json:"connection,omitempty"`
}

// ConnectionSummaries lists every server with its pooled connection, if any.
func (m *Monitor) ConnectionSummaries() []ConnectionSummary {
	now := m.now()
	out := make([]ConnectionSummary, 0, len(m.reg.order))
	for _, st := range m.reg.order {
		v := st.view(m.policy)
		s := ConnectionSummary{
			ServerID:   v.ID,
			Name:       v.Name,
			Host:       summaryHost(v.Server),
			User:       v.User,
			Status:     v.Status,
			RetryCount: v.RetryCount,
			Interval:   v.Interval,
		}
		if v.LastSeen != nil {
			age := now.Sub(*v.LastSeen)
			s.LastSeenAge = &age
		}
		if wait := v.NextMonitoring.Sub(now); wait > 0 {
			s.NextMonitoringAge = wait
		}
		if info, ok := m.pool.Info(v.ID); ok {
			s.Connected = true
			s.Conn = &info
		}
		out = append(out, s)
	}
	return out
}

func summaryHost(s Server) string {
	if s.Local {
		return "localhost"
	}
	port := s.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.Host, strconv.Itoa(port))
}

// HistoryCapacity is the number of snapshots kept per server.
func (m *Monitor) HistoryCapacity() int { return m.history.Capacity() }

// Policy returns the retry policy in force.
func (m *Monitor) Policy() Policy { return m.policy }

func (m *Monitor) String() string {
	return fmt.Sprintf("monitor(%d servers)", len(m.reg.order))
}
