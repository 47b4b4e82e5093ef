package monitor

import (
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var allStatusKinds = []StatusKind{
	StatusDisconnected,
	StatusConnecting,
	StatusOnline,
	StatusOffline,
	StatusError,
}

// Telemetry exports the engine's own behaviour as Prometheus metrics. It
// registers on its own registry so several monitors can coexist in tests.
type Telemetry struct {
	registry *prometheus.Registry

	serverStatus    *prometheus.GaugeVec
	retryCount      *prometheus.GaugeVec
	transitions     *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	polls           *prometheus.CounterVec
	dialDuration    *prometheus.HistogramVec
	categoryErrors  *prometheus.CounterVec
	droppedEvents   prometheus.Counter
	poolActive      prometheus.GaugeFunc
	poolCreated     prometheus.CounterFunc
	historyCapacity prometheus.Gauge
}

// NewTelemetry creates the collectors and registers them on a fresh registry.
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		registry: prometheus.NewRegistry(),
		serverStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetmon_server_status",
				Help: "Connectivity state of a server (1=current state, 0=otherwise)",
			},
			[]string{"server", "status"},
		),
		retryCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleetmon_server_retry_count",
				Help: "Consecutive failed poll cycles for a server",
			},
			[]string{"server"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetmon_status_transitions_total",
				Help: "Count of status transitions by server and source/target state",
			},
			[]string{"server", "from", "to"},
		),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetmon_poll_duration_seconds",
				Help:    "Duration of poll cycles",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"server"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetmon_polls_total",
				Help: "Poll cycles by server and outcome",
			},
			[]string{"server", "outcome"},
		),
		dialDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleetmon_dial_duration_seconds",
				Help:    "Duration of SSH dials",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"server", "success"},
		),
		categoryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetmon_category_errors_total",
				Help: "Metric categories that could not be collected",
			},
			[]string{"server", "category"},
		),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleetmon_events_dropped_total",
			Help: "Events not delivered because a subscriber was too slow",
		}),
		historyCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fleetmon_history_capacity",
			Help: "Snapshots kept per server",
		}),
	}

	t.registry.MustRegister(
		t.serverStatus,
		t.retryCount,
		t.transitions,
		t.pollDuration,
		t.polls,
		t.dialDuration,
		t.categoryErrors,
		t.droppedEvents,
		t.historyCapacity,
	)
	return t
}

// Registry returns the registry holding every collector.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// watchPool exports live pool counters. Called once by New.
func (t *Telemetry) watchPool(p *Pool) {
	t.poolActive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "fleetmon_pool_active_connections",
		Help: "Connections currently held by the pool",
	}, func() float64 { return float64(p.Active()) })
	t.poolCreated = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "fleetmon_pool_connections_created_total",
		Help: "Connections created since start",
	}, func() float64 { return float64(p.created.Load()) })
	t.registry.MustRegister(t.poolActive, t.poolCreated)
}

// RecordStatus sets the status gauge for server and counts the transition.
func (t *Telemetry) RecordStatus(server string, from, to StatusKind) {
	for _, k := range allStatusKinds {
		t.serverStatus.WithLabelValues(server, string(k)).Set(0)
	}
	t.serverStatus.WithLabelValues(server, string(to)).Set(1)

	if from != "" && from != to {
		t.transitions.WithLabelValues(server, string(from), string(to)).Inc()
	}
}

// RecordRetryCount sets the retry gauge for server.
func (t *Telemetry) RecordRetryCount(server string, n int) {
	t.retryCount.WithLabelValues(server).Set(float64(n))
}

// RecordPoll records one finished poll cycle.
func (t *Telemetry) RecordPoll(server string, outcome JobStatus, d time.Duration) {
	t.polls.WithLabelValues(server, string(outcome)).Inc()
	t.pollDuration.WithLabelValues(server).Observe(d.Seconds())
}

// RecordDial records one dial attempt.
func (t *Telemetry) RecordDial(server string, d time.Duration, err error) {
	success := "true"
	if err != nil {
		success = "false"
	}
	t.dialDuration.WithLabelValues(server, success).Observe(d.Seconds())
}

// RecordCategory counts a failed category.
func (t *Telemetry) RecordCategory(server string, c metrics.Category, _ time.Duration, err error) {
	if err != nil {
		t.categoryErrors.WithLabelValues(server, string(c)).Inc()
	}
}

// RecordDroppedEvent counts one undelivered event.
func (t *Telemetry) RecordDroppedEvent() {
	t.droppedEvents.Inc()
}
