package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFixedWindowLimiter_RejectsNPlusOne(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindowLimiter(Limit{Requests: 3, Window: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0))
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "api:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 3-(i+1), res.Remaining)
		assert.Equal(t, 3, res.Limit)
		assert.Zero(t, res.RetryAfter)
	}

	clock.Advance(20 * time.Second)
	res, err := l.Allow(ctx, "api:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
	assert.Equal(t, 40*time.Second, res.ResetAfter)
}

func TestFixedWindowLimiter_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindowLimiter(Limit{Requests: 2, Window: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0))
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		res, _ := l.Allow(ctx, "k")
		require.True(t, res.Allowed)
	}
	res, _ := l.Allow(ctx, "k")
	require.False(t, res.Allowed)

	// One tick short of the window end: still rejected.
	clock.Advance(time.Minute - time.Nanosecond)
	res, _ = l.Allow(ctx, "k")
	assert.False(t, res.Allowed)

	// Exactly window start + T: admitted again.
	clock.Advance(time.Nanosecond)
	res, _ = l.Allow(ctx, "k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetAfter)
}

func TestFixedWindowLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := NewFixedWindowLimiter(Limit{Requests: 1, Window: time.Hour}, WithCleanupInterval(0))
	defer l.Close()

	ctx := context.Background()
	a, _ := l.Allow(ctx, Key("auth", "10.0.0.1"))
	b, _ := l.Allow(ctx, Key("auth", "10.0.0.2"))
	c, _ := l.Allow(ctx, Key("api", "10.0.0.1"))
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	assert.True(t, c.Allowed)

	again, _ := l.Allow(ctx, Key("auth", "10.0.0.1"))
	assert.False(t, again.Allowed)
}

func TestFixedWindowLimiter_Concurrent(t *testing.T) {
	t.Parallel()

	const limit = 50
	l := NewFixedWindowLimiter(Limit{Requests: limit, Window: time.Hour}, WithCleanupInterval(0))
	defer l.Close()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Allow(context.Background(), "shared")
			if err == nil && res.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), admitted.Load())
}

func TestFixedWindowLimiter_UpdateAndReset(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindowLimiter(Limit{Requests: 1, Window: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0))
	defer l.Close()

	ctx := context.Background()
	res, _ := l.Allow(ctx, "k")
	require.True(t, res.Allowed)
	res, _ = l.Allow(ctx, "k")
	require.False(t, res.Allowed)

	l.Update(Limit{Requests: 3, Window: time.Minute})
	assert.Equal(t, Limit{Requests: 3, Window: time.Minute}, l.Limit())
	res, _ = l.Allow(ctx, "k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	require.NoError(t, l.Reset(ctx, "k"))
	res, _ = l.Allow(ctx, "k")
	assert.Equal(t, 2, res.Remaining)
}

func TestFixedWindowLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	clock := newFakeClock()
	l := NewFixedWindowLimiter(Limit{Requests: 5, Window: time.Minute},
		WithClock(clock.Now), WithCleanupInterval(0), WithLogger(zap.New(core)))
	defer l.Close()

	ctx := context.Background()
	_, _ = l.Allow(ctx, "old")
	clock.Advance(45 * time.Second)
	_, _ = l.Allow(ctx, "fresh")
	clock.Advance(30 * time.Second)

	l.Cleanup()

	_, oldPresent := l.counters.Load("old")
	_, freshPresent := l.counters.Load("fresh")
	assert.False(t, oldPresent)
	assert.True(t, freshPresent)
	assert.Equal(t, 1, logs.FilterMessage("swept idle rate limit windows").Len())
}

func TestFixedWindowLimiter_BackgroundCleanup(t *testing.T) {
	t.Parallel()

	l := NewFixedWindowLimiter(Limit{Requests: 5, Window: 10 * time.Millisecond},
		WithCleanupInterval(5*time.Millisecond))

	_, _ = l.Allow(context.Background(), "k")

	assert.Eventually(t, func() bool {
		_, ok := l.counters.Load("k")
		return !ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
}
