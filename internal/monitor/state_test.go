package monitor

import (
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_Target(t *testing.T) {
	s := Server{ID: "web", Host: "10.0.0.5", Port: 2222, User: "ops", Auth: AuthPassword}

	target := s.Target("pw")
	assert.Equal(t, "web", target.Alias)
	assert.Equal(t, "10.0.0.5:2222", target.Address())
	assert.False(t, target.UseKeys)
	assert.Equal(t, "pw", target.Password)
	assert.Nil(t, target.Jump)

	s.Auth = AuthKey
	s.KeyPath = "/keys/web"
	s.Jump = &JumpHost{Host: "bastion", Port: 22, User: "jump"}
	target = s.Target("")
	assert.True(t, target.UseKeys)
	assert.Equal(t, "/keys/web", target.IdentityFile)
	require.NotNil(t, target.Jump)
	assert.Equal(t, "jump", target.Jump.User)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "online", Status{Kind: StatusOnline}.String())
	assert.Equal(t, "error: boom", ErrorStatus("boom").String())
	assert.Equal(t, "error", Status{Kind: StatusError}.String())
}

func TestServerState_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := newServerState(Server{ID: "web", Interval: 30 * time.Second}, now)
	policy := Policy{RetryThreshold: 3}

	assert.Equal(t, StatusDisconnected, st.currentStatus().Kind)
	assert.True(t, st.due(now))

	prev := st.begin(now)
	assert.Equal(t, StatusDisconnected, prev.Kind)
	assert.Equal(t, StatusConnecting, st.currentStatus().Kind)
	assert.False(t, st.due(now.Add(29*time.Second)))
	assert.True(t, st.due(now.Add(30*time.Second)))

	// Never online yet, so a failure is an Error.
	st.failed("connection refused", policy)
	assert.Equal(t, ErrorStatus("connection refused"), st.currentStatus())
	assert.Equal(t, 1, st.retries())

	st.begin(now)
	st.succeed(now)
	v := st.view(policy)
	assert.Equal(t, StatusOnline, v.Status.Kind)
	assert.Equal(t, 0, v.RetryCount)
	require.NotNil(t, v.LastSeen)

	// Once online, failures read as Offline.
	st.failed("timeout", policy)
	assert.Equal(t, StatusOffline, st.currentStatus().Kind)
	assert.Equal(t, "timeout", st.currentStatus().Message)
}

func TestServerState_ManualRetryThreshold(t *testing.T) {
	st := newServerState(Server{ID: "web"}, time.Now())
	policy := Policy{RetryThreshold: 3}

	for i := 0; i < 2; i++ {
		st.failed("refused", policy)
	}
	assert.False(t, st.view(policy).NeedsManualRetry)
	st.failed("refused", policy)
	assert.True(t, st.view(policy).NeedsManualRetry)
}

func TestServerState_AuthFailure(t *testing.T) {
	now := time.Now()
	st := newServerState(Server{ID: "web"}, now)
	st.supplySecret("old")
	st.failed("refused", Policy{})

	st.authFailed("unable to authenticate", now)

	v := st.view(Policy{})
	assert.Equal(t, ErrorStatus("authentication required: unable to authenticate"), v.Status)
	assert.Equal(t, 1, v.RetryCount, "auth failures leave the retry count alone")
	assert.True(t, v.NeedsCredentials)
	require.NotNil(t, v.PendingSecret)
	assert.Equal(t, "unable to authenticate", v.PendingSecret.Reason)
	assert.False(t, v.HasSecret, "a rejected secret is forgotten")
	assert.False(t, st.due(now.Add(time.Hour)))

	assert.True(t, st.cancelSecret())
	assert.False(t, st.cancelSecret())
	assert.Nil(t, st.view(Policy{}).PendingSecret)
	assert.False(t, st.due(now.Add(time.Hour)), "cancelling does not resume polling")

	st.supplySecret("new")
	assert.True(t, st.due(now.Add(time.Hour)))
	assert.Equal(t, "new", st.cachedSecret())
}

func TestServerState_Suspension(t *testing.T) {
	st := newServerState(Server{ID: "web"}, time.Now())
	policy := Policy{MaxAutoRetries: 2}

	assert.False(t, st.failed("refused", policy))
	assert.True(t, st.failed("refused", policy))
	assert.False(t, st.due(time.Now().Add(time.Hour)))
	assert.True(t, st.view(policy).Suspended)

	st.supplySecret("")
	assert.False(t, st.view(policy).Suspended)
}

func TestServerState_RestoreOnlyUndoesConnecting(t *testing.T) {
	st := newServerState(Server{ID: "web"}, time.Now())
	st.begin(time.Now())
	st.succeed(time.Now())

	prev := st.begin(time.Now())
	st.restore(prev)
	assert.Equal(t, StatusOnline, st.currentStatus().Kind)

	st.failed("refused", Policy{})
	st.restore(Status{Kind: StatusDisconnected})
	assert.Equal(t, StatusOffline, st.currentStatus().Kind)
}

func TestServerState_Paused(t *testing.T) {
	st := newServerState(Server{ID: "web"}, time.Now())
	st.setPaused(true)
	assert.False(t, st.due(time.Now().Add(time.Hour)))
	st.setPaused(false)
	assert.True(t, st.due(time.Now().Add(time.Hour)))
}

func TestNewRegistry(t *testing.T) {
	start := time.Now()
	reg, err := newRegistry(testServers("a", "b", "c"), start, 2*time.Second)
	require.NoError(t, err)

	assert.Len(t, reg.order, 3)
	assert.Equal(t, start.Add(4*time.Second), reg.byID["c"].view(Policy{}).NextMonitoring)

	_, err = reg.get("zzz")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = newRegistry(testServers("a", "a"), start, 0)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))

	_, err = newRegistry([]Server{{}}, start, 0)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
