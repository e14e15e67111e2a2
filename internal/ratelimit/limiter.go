// Package ratelimit provides per-key request rate limiting for the gateway.
// State is process-local: each key owns its own counter and lock, so
// unrelated clients never contend.
package ratelimit

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"
)

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	io.Closer

	// Allow records one request for key and reports whether it is admitted.
	Allow(ctx context.Context, key string) (*Result, error)

	// Limit returns the current limit configuration.
	Limit() Limit

	// Update changes the limit in place. Existing per-key state is kept.
	Update(limit Limit)

	// Reset drops all state for key.
	Reset(ctx context.Context, key string) error
}

// Limit is a max-count per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Result represents the result of a rate limit check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the window resets.
	ResetAfter time.Duration

	// RetryAfter is how long to wait before retrying. Zero when allowed.
	RetryAfter time.Duration
}

// Algorithm represents the rate limiting algorithm type.
type Algorithm string

const (
	// AlgorithmFixedWindow counts requests in a window anchored at the key's first request.
	AlgorithmFixedWindow Algorithm = "fixed_window"

	// AlgorithmTokenBucket refills capacity continuously at Requests/Window.
	AlgorithmTokenBucket Algorithm = "token_bucket"
)

// DefaultCleanupInterval is how often idle keys are swept.
const DefaultCleanupInterval = time.Minute

// Clock returns the current time.
type Clock func() time.Time

type options struct {
	clock           Clock
	logger          *zap.Logger
	cleanupInterval time.Duration
}

func defaultOptions() options {
	return options{
		clock:           time.Now,
		logger:          zap.NewNop(),
		cleanupInterval: DefaultCleanupInterval,
	}
}

// Option configures a limiter.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCleanupInterval sets how often idle keys are swept. Zero or negative
// disables the background sweep; callers may still call Cleanup.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) {
		o.cleanupInterval = d
	}
}

// runCleanup calls sweep every interval until stop is closed.
func runCleanup(interval time.Duration, stop <-chan struct{}, sweep func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep()
		case <-stop:
			return
		}
	}
}

func clampRemaining(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
