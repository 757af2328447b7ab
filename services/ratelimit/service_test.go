package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)}
}

func defaultConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Window:      time.Minute,
		MaxAttempts: 5,
		MaxKeys:     100,
	}
}

func newTestLimiter(t *testing.T, cfg config.RateLimitConfig, clock *fakeClock) *LoginLimiter {
	t.Helper()
	l, err := NewLoginLimiter(cfg, zap.NewNop(), WithClock(clock.Now))
	require.NoError(t, err)
	return l
}

func TestNewLoginLimiter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RateLimitConfig)
	}{
		{"zero window", func(c *config.RateLimitConfig) { c.Window = 0 }},
		{"zero max attempts", func(c *config.RateLimitConfig) { c.MaxAttempts = 0 }},
		{"zero max keys", func(c *config.RateLimitConfig) { c.MaxKeys = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(&cfg)
			l, err := NewLoginLimiter(cfg, nil)
			assert.Error(t, err)
			assert.Nil(t, l)
		})
	}
}

func TestLoginLimiter_Allow(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, defaultConfig(), clock)

	for i := 1; i <= 5; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "attempt %d should be allowed", i)
	}
	assert.False(t, l.Allow("10.0.0.1"), "sixth attempt should be rejected")
	assert.False(t, l.Allow("10.0.0.1"))

	t.Run("other keys are independent", func(t *testing.T) {
		assert.True(t, l.Allow("10.0.0.2"))
	})

	t.Run("window boundary is inclusive", func(t *testing.T) {
		clock.Advance(time.Minute)
		assert.False(t, l.Allow("10.0.0.1"))
	})

	t.Run("allowed again once the window has elapsed", func(t *testing.T) {
		clock.Advance(time.Millisecond)
		assert.True(t, l.Allow("10.0.0.1"))
	})
}

func TestLoginLimiter_Check(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(t, defaultConfig(), clock)

	res := l.Check("client")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt)

	clock.Advance(10 * time.Second)
	for i := 0; i < 4; i++ {
		l.Check("client")
	}

	res = l.Check("client")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, start.Add(time.Minute), res.ResetAt, "reset time is anchored to the window start")
	assert.Equal(t, 50*time.Second, res.RetryAfter(clock.Now()))
}

func TestResult_RetryAfter(t *testing.T) {
	now := time.Now()

	assert.Zero(t, Result{Allowed: true, ResetAt: now.Add(time.Minute)}.RetryAfter(now))
	assert.Equal(t, 30*time.Second, Result{Allowed: false, ResetAt: now.Add(30 * time.Second)}.RetryAfter(now))

	// Rejections never advertise less than a second.
	assert.Equal(t, time.Second, Result{Allowed: false, ResetAt: now}.RetryAfter(now))
	assert.Equal(t, time.Second, Result{Allowed: false, ResetAt: now.Add(-time.Second)}.RetryAfter(now))
	assert.Equal(t, time.Second, Result{Allowed: false, ResetAt: now.Add(200 * time.Millisecond)}.RetryAfter(now))
}

func TestResult_Err(t *testing.T) {
	assert.NoError(t, Result{Allowed: true}.Err())

	err := Result{Allowed: false}.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTooManyLoginAttempts)
	assert.True(t, services.IsRateLimitError(err))
}

func TestLoginLimiter_RejectedAtWindowBoundary(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, defaultConfig(), clock)

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("client"))
	}
	clock.Advance(time.Minute)

	res := l.Check("client")
	assert.False(t, res.Allowed, "the window resets only once it has fully elapsed")
	assert.Equal(t, time.Second, res.RetryAfter(clock.Now()))
}

func TestLoginLimiter_EmptyKey(t *testing.T) {
	l := newTestLimiter(t, defaultConfig(), newFakeClock())

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(""))
	}
	for i := 0; i < 2; i++ {
		assert.True(t, l.Allow("  "))
	}
	assert.False(t, l.Allow(UnknownKey), "blank keys share the unknown window")
}

func TestLoginLimiter_ConcurrentAttempts(t *testing.T) {
	l := newTestLimiter(t, defaultConfig(), newFakeClock())

	const attempts = 100
	var allowed int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.Allow("203.0.113.7") {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(5), allowed)
}

func TestLoginLimiter_BoundedKeys(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxKeys = 3
	l := newTestLimiter(t, cfg, newFakeClock())

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("198.51.100.%d", i))
	}

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, uint64(7), l.Evictions())

	t.Run("recently used keys survive eviction", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			l.Allow("hot")
		}
		l.Allow("cold-1")
		l.Allow("cold-2")
		assert.False(t, l.Allow("hot"))
	})
}

func TestLoginLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, defaultConfig(), clock)

	l.Allow("old")
	clock.Advance(30 * time.Second)
	l.Allow("recent")

	assert.Equal(t, 0, l.Sweep())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}

func TestLoginLimiter_StartCleanupWorker(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, defaultConfig(), clock)

	l.Allow("stale")
	clock.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.StartCleanupWorker(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop after cancel")
	}
}
