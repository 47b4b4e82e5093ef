package monitor

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/monitor/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTelemetry_Status(t *testing.T) {
	tel := NewTelemetry()

	tel.RecordStatus("web", "", StatusDisconnected)
	tel.RecordStatus("web", StatusDisconnected, StatusConnecting)
	tel.RecordStatus("web", StatusConnecting, StatusOnline)

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.serverStatus.WithLabelValues("web", "online")))
	assert.Equal(t, 0.0, testutil.ToFloat64(tel.serverStatus.WithLabelValues("web", "connecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.transitions.WithLabelValues("web", "connecting", "online")))
	assert.Equal(t, 2, testutil.CollectAndCount(tel.transitions))
}

func TestTelemetry_Counters(t *testing.T) {
	tel := NewTelemetry()

	tel.RecordPoll("web", JobCompleted, 200*time.Millisecond)
	tel.RecordPoll("web", JobFailed, time.Second)
	tel.RecordCategory("web", metrics.CategoryDisks, 0, stderrors.New("x"))
	tel.RecordCategory("web", metrics.CategoryCPU, 0, nil)
	tel.RecordDroppedEvent()
	tel.RecordRetryCount("web", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(tel.polls.WithLabelValues("web", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.categoryErrors.WithLabelValues("web", "disks")))
	assert.Equal(t, 1, testutil.CollectAndCount(tel.categoryErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.droppedEvents))
	assert.Equal(t, 4.0, testutil.ToFloat64(tel.retryCount.WithLabelValues("web")))
}

func TestTelemetry_IsolatedRegistries(t *testing.T) {
	a := NewTelemetry()
	b := NewTelemetry()
	a.RecordDroppedEvent()

	assert.Equal(t, 0.0, testutil.ToFloat64(b.droppedEvents))
	assert.NotSame(t, a.Registry(), b.Registry())
}
