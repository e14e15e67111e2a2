package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ Limiter = (*TokenBucketLimiter)(nil)

// TokenBucketLimiter gives each key a bucket of Requests tokens refilled at
// Requests/Window. Unlike the fixed window it never admits a double burst
// across a window boundary.
type TokenBucketLimiter struct {
	mu     sync.RWMutex // guards limit against Update
	limit  Limit
	clock  Clock
	logger *zap.Logger
	ttl    atomic.Int64

	buckets sync.Map // key -> *bucket

	stop      chan struct{}
	closeOnce sync.Once
	done      chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// NewTokenBucketLimiter creates a token bucket limiter and starts its cleanup loop.
func NewTokenBucketLimiter(limit Limit, opts ...Option) *TokenBucketLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	l := &TokenBucketLimiter{
		limit:  limit,
		clock:  o.clock,
		logger: o.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	l.ttl.Store(int64(limit.Window))

	go func() {
		defer close(l.done)
		runCleanup(o.cleanupInterval, l.stop, l.Cleanup)
	}()

	return l
}

func refillRate(limit Limit) rate.Limit {
	if limit.Requests <= 0 || limit.Window <= 0 {
		return 0
	}
	return rate.Every(limit.Window / time.Duration(limit.Requests))
}

// Allow implements Limiter.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.RLock()
	lim := l.limit
	l.mu.RUnlock()

	now := l.clock()
	b := l.bucketFor(key, lim, now)
	b.lastSeen.Store(now.UnixNano())

	res := &Result{Limit: lim.Requests}

	r := b.limiter.ReserveN(now, 1)
	switch {
	case !r.OK():
		// Zero burst: nothing is ever admitted.
		res.RetryAfter = lim.Window
	case r.DelayFrom(now) > 0:
		res.RetryAfter = r.DelayFrom(now)
		r.CancelAt(now)
	default:
		res.Allowed = true
	}

	tokens := b.limiter.TokensAt(now)
	res.Remaining = clampRemaining(int(math.Floor(tokens)))
	res.ResetAfter = timeToFull(b.limiter, tokens)

	if !res.Allowed {
		l.logger.Debug("token bucket empty",
			zap.String("key", key),
			zap.Duration("retry_after", res.RetryAfter),
		)
	}
	return res, nil
}

func (l *TokenBucketLimiter) bucketFor(key string, lim Limit, now time.Time) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*bucket)
	}
	nb := &bucket{limiter: rate.NewLimiter(refillRate(lim), lim.Requests)}
	nb.lastSeen.Store(now.UnixNano())
	v, _ := l.buckets.LoadOrStore(key, nb)
	return v.(*bucket)
}

// timeToFull estimates how long until the bucket is back at its burst.
func timeToFull(lim *rate.Limiter, tokens float64) time.Duration {
	missing := float64(lim.Burst()) - tokens
	if missing <= 0 || lim.Limit() <= 0 {
		return 0
	}
	return time.Duration(missing / float64(lim.Limit()) * float64(time.Second))
}

// Limit implements Limiter.
func (l *TokenBucketLimiter) Limit() Limit {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limit
}

// Update implements Limiter. Existing buckets are re-rated in place.
func (l *TokenBucketLimiter) Update(limit Limit) {
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
	l.ttl.Store(int64(limit.Window))

	now := l.clock()
	r := refillRate(limit)
	l.buckets.Range(func(_, value any) bool {
		b := value.(*bucket)
		b.limiter.SetLimitAt(now, r)
		b.limiter.SetBurstAt(now, limit.Requests)
		return true
	})
}

// Reset implements Limiter.
func (l *TokenBucketLimiter) Reset(_ context.Context, key string) error {
	l.buckets.Delete(key)
	return nil
}

// Cleanup drops buckets idle for longer than one window; such a bucket has
// refilled completely and is indistinguishable from a new one.
func (l *TokenBucketLimiter) Cleanup() {
	cutoff := l.clock().Add(-time.Duration(l.ttl.Load())).UnixNano()
	l.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			l.buckets.Delete(key)
		}
		return true
	})
}

// Close stops the cleanup loop. Safe to call multiple times.
func (l *TokenBucketLimiter) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	<-l.done
	return nil
}
