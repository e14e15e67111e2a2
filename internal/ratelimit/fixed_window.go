package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var _ Limiter = (*FixedWindowLimiter)(nil)

// FixedWindowLimiter admits at most Requests per Window for each key. A key's
// window starts at its first request and restarts on the first request at or
// after start+Window, so the (N+1)th request inside the window is rejected
// and the count resets once the window has elapsed.
type FixedWindowLimiter struct {
	limit  atomic.Pointer[Limit]
	clock  Clock
	logger *zap.Logger

	counters sync.Map // key -> *windowCounter

	stop      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

// windowCounter represents a counter for a fixed window.
type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	evicted     bool
}

// NewFixedWindowLimiter creates a fixed window limiter and starts its
// cleanup loop. Call Close to stop it.
func NewFixedWindowLimiter(limit Limit, opts ...Option) *FixedWindowLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := &FixedWindowLimiter{
		clock:  o.clock,
		logger: o.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.limit.Store(&limit)

	go func() {
		defer close(l.done)
		runCleanup(o.cleanupInterval, l.stop, l.Cleanup)
	}()

	return l
}

// Allow implements Limiter.
func (l *FixedWindowLimiter) Allow(_ context.Context, key string) (*Result, error) {
	lim := *l.limit.Load()
	now := l.clock()

	wc := l.lockCounter(key, now)
	defer wc.mu.Unlock()

	if !now.Before(wc.windowStart.Add(lim.Window)) {
		wc.count = 0
		wc.windowStart = now
	}

	allowed := wc.count < lim.Requests
	if allowed {
		wc.count++
	}

	resetAfter := wc.windowStart.Add(lim.Window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}

	res := &Result{
		Allowed:    allowed,
		Limit:      lim.Requests,
		Remaining:  clampRemaining(lim.Requests - wc.count),
		ResetAfter: resetAfter,
	}
	if !allowed {
		res.RetryAfter = resetAfter
		l.logger.Debug("fixed window exhausted",
			zap.String("key", key),
			zap.Int("limit", lim.Requests),
			zap.Duration("retry_after", resetAfter),
		)
	}
	return res, nil
}

// lockCounter returns the key's counter locked. A counter swept by Cleanup
// between load and lock is retried so no request is counted on an orphan.
func (l *FixedWindowLimiter) lockCounter(key string, now time.Time) *windowCounter {
	for {
		value, _ := l.counters.LoadOrStore(key, &windowCounter{windowStart: now})
		wc := value.(*windowCounter)
		wc.mu.Lock()
		if !wc.evicted {
			return wc
		}
		wc.mu.Unlock()
	}
}

// Limit implements Limiter.
func (l *FixedWindowLimiter) Limit() Limit {
	return *l.limit.Load()
}

// Update implements Limiter. Running windows keep their start time and are
// judged against the new window length from the next request on.
func (l *FixedWindowLimiter) Update(limit Limit) {
	l.limit.Store(&limit)
}

// Reset implements Limiter.
func (l *FixedWindowLimiter) Reset(_ context.Context, key string) error {
	if value, ok := l.counters.LoadAndDelete(key); ok {
		wc := value.(*windowCounter)
		wc.mu.Lock()
		wc.evicted = true
		wc.mu.Unlock()
	}
	return nil
}

// Cleanup removes counters whose window has ended.
func (l *FixedWindowLimiter) Cleanup() {
	window := l.limit.Load().Window
	now := l.clock()
	removed := 0

	l.counters.Range(func(key, value any) bool {
		wc := value.(*windowCounter)
		wc.mu.Lock()
		if !now.Before(wc.windowStart.Add(window)) {
			wc.evicted = true
			l.counters.Delete(key)
			removed++
		}
		wc.mu.Unlock()
		return true
	})

	if removed > 0 {
		l.logger.Debug("swept idle rate limit windows", zap.Int("removed", removed))
	}
}

// Close stops the cleanup loop. Safe to call multiple times.
func (l *FixedWindowLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
	return nil
}
