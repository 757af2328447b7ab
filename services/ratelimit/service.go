// Package ratelimit throttles login attempts per client key using fixed
// windows held in process memory.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/services"
	"go.uber.org/zap"
)

// UnknownKey is used for requests whose client address cannot be determined.
// All such requests share one window.
const UnknownKey = "unknown"

// Result is the outcome of a single attempt
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before the window
// resets. A rejected attempt always waits at least one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	if wait := r.ResetAt.Sub(now); wait > time.Second {
		return wait
	}
	return time.Second
}

// Err returns services.ErrTooManyLoginAttempts for a rejected attempt
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return services.ErrTooManyLoginAttempts
}

type window struct {
	start time.Time
	count int
}

// Option configures a LoginLimiter
type Option func(*LoginLimiter)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *LoginLimiter) {
		if now != nil {
			l.now = now
		}
	}
}

// LoginLimiter counts attempts per key in fixed windows. The number of
// tracked keys is bounded; the least recently used window is evicted once
// the bound is reached.
type LoginLimiter struct {
	mu          sync.Mutex
	windows     *simplelru.LRU[string, *window]
	evictions   uint64
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	logger      *zap.Logger
}

// NewLoginLimiter creates a limiter from cfg
func NewLoginLimiter(cfg config.RateLimitConfig, logger *zap.Logger, opts ...Option) (*LoginLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &LoginLimiter{
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(l)
	}

	windows, err := simplelru.NewLRU[string, *window](cfg.MaxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window cache: %w", err)
	}
	l.windows = windows

	return l, nil
}

// Allow records one attempt for key and reports whether it is within the limit
func (l *LoginLimiter) Allow(key string) bool {
	return l.Check(key).Allowed
}

// Check records one attempt for key and returns the full outcome. The
// lookup, reset and increment happen under one lock so concurrent attempts
// on the same key are counted exactly once each.
func (l *LoginLimiter) Check(key string) Result {
	key = normalizeKey(key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows.Get(key)
	if !ok {
		w = &window{start: now}
		if l.windows.Add(key, w) {
			l.evictions++
		}
	} else if now.Sub(w.start) > l.window {
		w.start = now
		w.count = 0
	}
	w.count++

	remaining := l.maxAttempts - w.count
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   w.count <= l.maxAttempts,
		Remaining: remaining,
		ResetAt:   w.start.Add(l.window),
	}
}

// Sweep drops windows that have already elapsed and returns how many were removed
func (l *LoginLimiter) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.windows.Keys() {
		w, ok := l.windows.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(w.start) > l.window {
			l.windows.Remove(key)
			removed++
		}
	}
	return removed
}

// Now returns the limiter's current time
func (l *LoginLimiter) Now() time.Time {
	return l.now()
}

// Len returns the number of tracked keys
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.windows.Len()
}

// Evictions returns how many windows were dropped to respect the key bound
func (l *LoginLimiter) Evictions() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evictions
}

// StartCleanupWorker sweeps expired windows every interval until ctx is done.
// It blocks; run it in its own goroutine.
func (l *LoginLimiter) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	l.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("window", l.window))

	for {
		select {
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug("swept expired rate limit windows",
					zap.Int("removed", removed),
					zap.Int("tracked", l.Len()))
			}
		case <-ctx.Done():
			l.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return UnknownKey
	}
	return key
}
