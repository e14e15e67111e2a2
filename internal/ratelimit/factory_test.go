package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		want    any
		wantErr bool
	}{
		{name: "default algorithm", cfg: Config{Limit: Limit{Requests: 1, Window: time.Second}}, want: &FixedWindowLimiter{}},
		{name: "fixed window", cfg: Config{Algorithm: AlgorithmFixedWindow, Limit: Limit{Requests: 1, Window: time.Second}}, want: &FixedWindowLimiter{}},
		{name: "token bucket", cfg: Config{Algorithm: AlgorithmTokenBucket, Limit: Limit{Requests: 1, Window: time.Second}}, want: &TokenBucketLimiter{}},
		{name: "unknown", cfg: Config{Algorithm: "leaky", Limit: Limit{Requests: 1, Window: time.Second}}, wantErr: true},
		{name: "zero requests", cfg: Config{Limit: Limit{Window: time.Second}}, wantErr: true},
		{name: "zero window", cfg: Config{Limit: Limit{Requests: 1}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := NewLimiter(tt.cfg, WithCleanupInterval(0))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer l.Close()
			assert.IsType(t, tt.want, l)
		})
	}
}

func TestSet_Apply(t *testing.T) {
	t.Parallel()

	s := NewSet(nil, WithCleanupInterval(0))
	defer s.Close()

	require.NoError(t, s.Apply("auth", Config{Limit: Limit{Requests: 1, Window: time.Minute}}))
	require.NoError(t, s.Apply("api", Config{Limit: Limit{Requests: 5, Window: time.Minute}}))

	auth, ok := s.Get("auth")
	require.True(t, ok)
	api, _ := s.Get("api")
	assert.NotSame(t, auth, api)

	ctx := context.Background()
	res, _ := auth.Allow(ctx, "ip")
	require.True(t, res.Allowed)
	res, _ = auth.Allow(ctx, "ip")
	require.False(t, res.Allowed)

	// Same algorithm: updated in place, state kept.
	require.NoError(t, s.Apply("auth", Config{Limit: Limit{Requests: 2, Window: time.Minute}}))
	same, _ := s.Get("auth")
	assert.Same(t, auth, same)
	res, _ = same.Allow(ctx, "ip")
	assert.True(t, res.Allowed)

	// Algorithm change: replaced.
	require.NoError(t, s.Apply("auth", Config{Algorithm: AlgorithmTokenBucket, Limit: Limit{Requests: 2, Window: time.Minute}}))
	replaced, _ := s.Get("auth")
	assert.IsType(t, &TokenBucketLimiter{}, replaced)

	assert.Error(t, s.Apply("bad", Config{Limit: Limit{}}))
	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "auth:1.2.3.4", Key("auth", "1.2.3.4"))
	assert.Equal(t, "api:unknown", Key("api", ""))

	class, id := SplitKey("api:::1")
	assert.Equal(t, "api", class)
	assert.Equal(t, "::1", id)

	class, id = SplitKey("plain")
	assert.Empty(t, class)
	assert.Equal(t, "plain", id)
}
