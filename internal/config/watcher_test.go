package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path string, level string) {
	t.Helper()
	doc := "auth:\n  jwtSecret: " + testSecret + "\nobservability:\n  logging:\n    level: " + level + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeConfig(t, path, "info")

	var level atomic.Value
	w, err := NewWatcher(path, func(cfg *GatewayConfig) {
		level.Store(cfg.Observability.Logging.Level)
	},
		WithDebounceDelay(10*time.Millisecond),
		WithLoader(NewLoaderWithEnv(envMap(nil))),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer func() { _ = w.Stop() }()

	assert.Equal(t, "info", w.LastConfig().Observability.Logging.Level)

	writeConfig(t, path, "debug")

	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "debug", w.LastConfig().Observability.Logging.Level)
}

func TestWatcher_InvalidReloadKeepsPrevious(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeConfig(t, path, "info")

	var failures atomic.Int32
	w, err := NewWatcher(path, nil,
		WithDebounceDelay(10*time.Millisecond),
		WithLoader(NewLoaderWithEnv(envMap(nil))),
		WithErrorCallback(func(error) { failures.Add(1) }),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer func() { _ = w.Stop() }()

	writeConfig(t, path, "chatty")

	assert.Eventually(t, func() bool { return failures.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "info", w.LastConfig().Observability.Logging.Level)
}

func TestWatcher_ForceReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	writeConfig(t, path, "warn")

	calls := 0
	w, err := NewWatcher(path, func(*GatewayConfig) { calls++ }, WithLoader(NewLoaderWithEnv(envMap(nil))))
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	require.NoError(t, w.ForceReload())
	assert.Equal(t, 1, calls)
	assert.Equal(t, "warn", w.LastConfig().Observability.Logging.Level)
}

func TestWatcher_StartFailsOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))

	w, err := NewWatcher(path, nil, WithLoader(NewLoaderWithEnv(envMap(nil))))
	require.NoError(t, err)
	assert.Error(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}
