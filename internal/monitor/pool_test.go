package monitor

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/fleetmon/fleetmon/internal/logger"
	sshtesting "github.com/fleetmon/fleetmon/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(dialer *sshtesting.MockDialer, opts PoolOptions, ids ...string) *Pool {
	if opts.LivenessTimeout == 0 {
		opts.LivenessTimeout = 100 * time.Millisecond
	}
	return NewPool(testServers(ids...), dialer, nil, opts, logger.Noop())
}

func TestPool_ConcurrentAcquireDialsOnce(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	dialer.SetDelay("web", 50*time.Millisecond)
	pool := newTestPool(dialer, PoolOptions{}, "web")

	const n = 10
	conns := make([]*Conn, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conns[i], errs[i] = pool.Acquire(context.Background(), "web", "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, conns[0], conns[i])
	}
	assert.Equal(t, 1, dialer.DialCount("web"))
	assert.Equal(t, 1, dialer.MaxConcurrent("web"))
	assert.Equal(t, 1, pool.Active())
}

func TestPool_DifferentServersDialInParallel(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	dialer.SetBlocking("slow", true)
	pool := newTestPool(dialer, PoolOptions{}, "slow", "fast")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Acquire(ctx, "slow", "")
	}()

	start := time.Now()
	_, err := pool.Acquire(context.Background(), "fast", "")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)

	cancel()
	<-done
}

func TestPool_ReusesLiveConnection(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "web")

	first, err := pool.Acquire(context.Background(), "web", "")
	require.NoError(t, err)
	second, err := pool.Acquire(context.Background(), "web", "")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, dialer.DialCount("web"))
}

func TestPool_ReplacesDeadConnection(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "web")

	first, err := pool.Acquire(context.Background(), "web", "")
	require.NoError(t, err)

	dialer.Clients("web")[0].SetPingBlock(true)

	second, err := pool.Acquire(context.Background(), "web", "")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, dialer.DialCount("web"))
	assert.True(t, dialer.Clients("web")[0].IsClosed())
	assert.Equal(t, 1, pool.Active(), "the stale connection must not be counted")
	assert.Equal(t, int64(2), pool.Stats().Total)
}

func TestPool_AcquireClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"refused", stderrors.New("dial tcp 10.0.0.1:22: connect: connection refused"), FailureTransient},
		{"no route", stderrors.New("dial tcp 10.0.0.1:22: connect: no route to host"), FailureTransient},
		{"auth", stderrors.New("ssh: handshake failed: ssh: unable to authenticate"), FailureAuth},
		{"other", stderrors.New("ssh: unexpected packet in response to channel open"), FailureInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dialer := sshtesting.NewMockDialer()
			dialer.SetError("web", tt.err)
			pool := newTestPool(dialer, PoolOptions{}, "web")

			_, err := pool.Acquire(context.Background(), "web", "")
			require.Error(t, err)

			var ae *AcquireError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.want, ae.Kind)
			assert.Equal(t, "web", ae.ServerID)
			assert.False(t, pool.Has("web"))
		})
	}
}

func TestPool_PasswordPrecedence(t *testing.T) {
	t.Run("secret is offered", func(t *testing.T) {
		dialer := sshtesting.NewMockDialer()
		dialer.RequirePassword("web", "hunter2")
		pool := newTestPool(dialer, PoolOptions{}, "web")

		_, err := pool.Acquire(context.Background(), "web", "hunter2")
		require.NoError(t, err)
	})

	t.Run("fallback when no secret", func(t *testing.T) {
		dialer := sshtesting.NewMockDialer()
		dialer.RequirePassword("web", "fallback")
		pool := newTestPool(dialer, PoolOptions{FallbackPassword: "fallback"}, "web")

		_, err := pool.Acquire(context.Background(), "web", "")
		require.NoError(t, err)
	})

	t.Run("secret wins over fallback", func(t *testing.T) {
		dialer := sshtesting.NewMockDialer()
		pool := newTestPool(dialer, PoolOptions{FallbackPassword: "fallback"}, "web")

		_, err := pool.Acquire(context.Background(), "web", "explicit")
		require.NoError(t, err)
		target, ok := dialer.LastTarget("web")
		require.True(t, ok)
		assert.Equal(t, "explicit", target.Password)
	})

	t.Run("wrong password is auth", func(t *testing.T) {
		dialer := sshtesting.NewMockDialer()
		dialer.RequirePassword("web", "hunter2")
		pool := newTestPool(dialer, PoolOptions{}, "web")

		_, err := pool.Acquire(context.Background(), "web", "nope")
		var ae *AcquireError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, FailureAuth, ae.Kind)
	})
}

func TestPool_WaitingAcquireHonoursContext(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	dialer.SetBlocking("web", true)
	pool := newTestPool(dialer, PoolOptions{}, "web")

	holderCtx, cancelHolder := context.WithCancel(context.Background())
	defer cancelHolder()
	started := make(chan struct{})
	go func() {
		close(started)
		_, _ = pool.Acquire(holderCtx, "web", "")
	}()
	<-started
	require.Eventually(t, func() bool { return dialer.DialCount("web") == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := pool.Acquire(ctx, "web", "")

	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureTransient, ae.Kind)
	assert.Equal(t, 1, dialer.DialCount("web"), "the waiter must not dial")
}

func TestPool_UnknownServer(t *testing.T) {
	pool := newTestPool(sshtesting.NewMockDialer(), PoolOptions{}, "web")

	_, err := pool.Acquire(context.Background(), "nope", "")
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, FailureInternal, ae.Kind)
}

func TestPool_DetectsPlatform(t *testing.T) {
	tests := []struct {
		uname string
		want  Platform
	}{
		{"Linux\n", PlatformLinux},
		{"Darwin\n", PlatformDarwin},
		{"FreeBSD\n", PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			dialer := sshtesting.NewMockDialer()
			dialer.SetClientFactory("web", func() *sshtesting.MockClient {
				c := sshtesting.NewMockClient("web")
				c.SetCommandResponse("uname -s", sshtesting.CommandResponse{Stdout: []byte(tt.uname)})
				return c
			})
			pool := newTestPool(dialer, PoolOptions{}, "web")

			conn, err := pool.Acquire(context.Background(), "web", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, conn.Platform)
		})
	}
}

func TestPool_Evict(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "web")

	_, err := pool.Acquire(context.Background(), "web", "")
	require.NoError(t, err)

	assert.True(t, pool.Evict("web"))
	assert.False(t, pool.Evict("web"), "second evict is a no-op")
	assert.False(t, pool.Has("web"))
	assert.Equal(t, 0, pool.Active())
	assert.True(t, dialer.Clients("web")[0].IsClosed())
}

func TestPool_ReapIdle(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "idle", "busy")

	base := time.Now()
	pool.now = func() time.Time { return base }
	_, err := pool.Acquire(context.Background(), "idle", "")
	require.NoError(t, err)

	pool.now = func() time.Time { return base.Add(20 * time.Minute) }
	_, err = pool.Acquire(context.Background(), "busy", "")
	require.NoError(t, err)

	pool.now = func() time.Time { return base.Add(25 * time.Minute) }
	evicted := pool.ReapIdle(10 * time.Minute)

	assert.Equal(t, []string{"idle"}, evicted)
	assert.False(t, pool.Has("idle"))
	assert.True(t, pool.Has("busy"))
	assert.Nil(t, pool.ReapIdle(0), "zero disables reaping")
}

func TestPool_Stats(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "a", "b", "c")

	base := time.Now()
	pool.now = func() time.Time { return base }
	_, err := pool.Acquire(context.Background(), "a", "")
	require.NoError(t, err)

	pool.now = func() time.Time { return base.Add(time.Minute) }
	_, err = pool.Acquire(context.Background(), "b", "")
	require.NoError(t, err)

	pool.now = func() time.Time { return base.Add(3 * time.Minute) }
	stats := pool.Stats()

	assert.Equal(t, 2, stats.Active)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, 3*time.Minute, stats.OldestAge)
	assert.Equal(t, 2*time.Minute, stats.YoungestAge)

	pool.Close()
	stats = pool.Stats()
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, int64(2), stats.Total)
	assert.Zero(t, stats.OldestAge)
}

func TestPool_NeverHoldsTwoConnectionsPerServer(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "web")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				pool.Evict("web")
				return
			}
			_, _ = pool.Acquire(context.Background(), "web", "")
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, pool.Active(), 1)
	open := 0
	for _, c := range dialer.Clients("web") {
		if !c.IsClosed() {
			open++
		}
	}
	assert.Equal(t, pool.Active(), open)
}

func TestPool_JumpHostTarget(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	servers := testServers("inner")
	servers[0].Jump = &JumpHost{Host: "bastion", Port: 2222}
	pool := NewPool(servers, dialer, nil, PoolOptions{}, logger.Noop())

	_, err := pool.Acquire(context.Background(), "inner", "")
	require.NoError(t, err)

	target, ok := dialer.LastTarget("inner")
	require.True(t, ok)
	require.NotNil(t, target.Jump)
	assert.Equal(t, "bastion", target.Jump.Hostname)
	assert.Equal(t, 2222, target.Jump.Port)
	assert.Equal(t, "monitor", target.Jump.User)
}

func TestPool_ClosedPoolDoesNotKeepNewConnections(t *testing.T) {
	dialer := sshtesting.NewMockDialer()
	pool := newTestPool(dialer, PoolOptions{}, "web")
	pool.Close()

	_, err := pool.Acquire(context.Background(), "web", "")
	var acqErr *AcquireError
	require.True(t, stderrors.As(err, &acqErr))
	assert.Equal(t, FailureTransient, acqErr.Kind)
	assert.Zero(t, pool.Active())
	require.Len(t, dialer.Clients("web"), 1)
	assert.True(t, dialer.Clients("web")[0].IsClosed())
}
