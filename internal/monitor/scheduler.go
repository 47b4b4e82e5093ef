package monitor

import (
	"context"
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
)

// cycleStopTimeout bounds the wait for cancelled cycles during shutdown.
const cycleStopTimeout = 2 * time.Second

// Run drives scheduled polling until ctx ends, then shuts down: running
// cycles get ShutdownGrace to finish before they are cancelled, and every
// pooled connection is closed.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New(errors.ErrConflict, "Monitor is already running", "")
	}

	m.log.Info("monitoring %d server(s), tick %s", len(m.reg.order), m.opts.Tick)

	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	m.tick()
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick starts a cycle for every due server that has none running, then
// reaps idle connections.
func (m *Monitor) tick() {
	now := m.now()
	for _, st := range m.reg.order {
		if !st.due(now) {
			continue
		}
		if !st.inFlight.CompareAndSwap(false, true) {
			continue
		}
		if !m.track() {
			st.inFlight.Store(false)
			return
		}
		go func(st *serverState) {
			defer m.wg.Done()
			defer st.inFlight.Store(false)
			_ = m.poll(m.cycleCtx, st, TriggerScheduled, "")
		}(st)
	}

	for _, id := range m.pool.ReapIdle(m.opts.IdleTimeout) {
		m.log.Debug("%s: closed idle connection", id)
	}
}

// track registers a cycle with the shutdown wait group. It fails once
// shutdown has started.
func (m *Monitor) track() bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.closing {
		return false
	}
	m.wg.Add(1)
	return true
}

func (m *Monitor) shutdown() {
	m.lifecycle.Lock()
	m.closing = true
	m.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(m.opts.ShutdownGrace):
		m.log.Warn("poll cycles still running after %s, cancelling", m.opts.ShutdownGrace)
		m.cancelCycles()
		// Closing the connections unblocks cycles stuck on a wedged server.
		m.pool.Close()
		select {
		case <-done:
		case <-time.After(cycleStopTimeout):
			m.log.Error("poll cycles did not stop %s after cancel, abandoning them", cycleStopTimeout)
		}
	}
	m.cancelCycles()

	m.pool.Close()
	m.events.Close()
	m.log.Info("monitor stopped")
}

// poll runs one cycle for st. The caller holds st.inFlight.
func (m *Monitor) poll(ctx context.Context, st *serverState, trigger JobTrigger, secret string) (err error) {
	id := st.server.ID
	start := m.now()
	prev := st.begin(start)
	m.statusChanged(st, prev.Kind)

	jobID := m.jobs.Start(st.server, trigger, st.retries())

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("%s: poll cycle panicked: %v\n%s", id, r, debug.Stack())
			err = errors.New(errors.ErrInternal, fmt.Sprintf("poll cycle panicked: %v", r), "")
			st.failed(errors.Summary(err), m.policy)
			m.finish(st, jobID, JobFailed, nil, err, start)
		}
	}()

	if secret == "" {
		secret = st.cachedSecret()
	}

	conn, err := m.pool.Acquire(ctx, id, secret)
	if err != nil {
		return m.acquireFailed(ctx, st, prev, jobID, err, start)
	}

	snap := m.collector.Collect(ctx, st.server, conn)

	if cancelled(ctx) {
		st.restore(prev)
		m.finish(st, jobID, JobCancelled, nil, ctx.Err(), start)
		return ctx.Err()
	}

	if snap.Empty() {
		m.pool.Evict(id)
		err = errors.New(errors.ErrTransient, "no metric category could be collected",
			"The connection was dropped and will be reopened on the next poll")
		suspended := st.failed(errors.Summary(err), m.policy)
		m.log.Warn("%s: %s", id, errors.Summary(err))
		if suspended {
			m.log.Warn("%s: automatic polling suspended after %d failures", id, st.retries())
		}
		m.finish(st, jobID, JobFailed, nil, err, start)
		return err
	}

	m.history.Append(id, snap)
	st.succeed(m.now())
	m.events.Publish(Event{Type: EventSnapshot, ServerID: id, Snapshot: snap})

	collected := make([]string, 0, len(metrics.Categories()))
	for _, c := range snap.Collected() {
		collected = append(collected, string(c))
	}
	m.finish(st, jobID, JobCompleted, collected, nil, start)
	return nil
}

func (m *Monitor) acquireFailed(ctx context.Context, st *serverState, prev Status, jobID string, err error, start time.Time) error {
	id := st.server.ID

	if cancelled(ctx) {
		st.restore(prev)
		m.finish(st, jobID, JobCancelled, nil, ctx.Err(), start)
		return ctx.Err()
	}

	kind, msg := FailureInternal, errors.Summary(err)
	var ae *AcquireError
	if stderrors.As(err, &ae) {
		kind, msg = ae.Kind, ae.Message()
	}

	switch kind {
	case FailureAuth:
		st.authFailed(msg, m.now())
		m.log.Warn("%s: authentication failed, waiting for credentials: %s", id, msg)
	default:
		suspended := st.failed(msg, m.policy)
		m.log.Warn("%s: %s failure (retry %d): %s", id, kind, st.retries(), msg)
		if suspended {
			m.log.Warn("%s: automatic polling suspended after %d failures", id, st.retries())
		}
	}

	m.finish(st, jobID, JobFailed, nil, err, start)
	return err
}

// finish closes the job and publishes the resulting status.
func (m *Monitor) finish(st *serverState, jobID string, status JobStatus, categories []string, err error, start time.Time) {
	m.jobs.Finish(jobID, status, categories, err)
	m.telemetry.RecordPoll(st.server.ID, status, m.now().Sub(start))
	m.statusChanged(st, StatusConnecting)

	if job, ok := m.jobs.Get(jobID); ok {
		m.events.Publish(Event{Type: EventJob, ServerID: st.server.ID, Job: &job})
	}
}

func (m *Monitor) statusChanged(st *serverState, from StatusKind) {
	status := st.currentStatus()
	retries := st.retries()
	m.telemetry.RecordStatus(st.server.ID, from, status.Kind)
	m.telemetry.RecordRetryCount(st.server.ID, retries)
	m.events.Publish(Event{
		Type:       EventStatus,
		ServerID:   st.server.ID,
		Status:     &status,
		RetryCount: retries,
	})
}

func cancelled(ctx context.Context) bool {
	return stderrors.Is(ctx.Err(), context.Canceled)
}
