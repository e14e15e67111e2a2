package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/gateway"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// reloadMetrics holds Prometheus metrics for configuration reloads. The
// collectors live in the gateway registry so they appear on /metrics.
type reloadMetrics struct {
	reloadTotal       *prometheus.CounterVec
	reloadDuration    prometheus.Histogram
	reloadLastSuccess prometheus.Gauge
	watcherRunning    prometheus.Gauge
}

func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		reloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: gateway.MetricsNamespace,
				Name:      "config_reload_total",
				Help:      "Total number of configuration reloads",
			},
			[]string{"result"},
		),
		reloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: gateway.MetricsNamespace,
				Name:      "config_reload_duration_seconds",
				Help:      "Duration of configuration reload operations",
				Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
			},
		),
		reloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: gateway.MetricsNamespace,
				Name:      "config_reload_last_success_timestamp",
				Help:      "Timestamp of the last successful config reload",
			},
		),
		watcherRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: gateway.MetricsNamespace,
				Name:      "config_watcher_running",
				Help:      "Whether the config file watcher is running (1=running, 0=stopped)",
			},
		),
	}

	m.MustRegisterCollector(rm.reloadTotal)
	m.MustRegisterCollector(rm.reloadDuration)
	m.MustRegisterCollector(rm.reloadLastSuccess)
	m.MustRegisterCollector(rm.watcherRunning)

	return rm
}

// reloadConfig applies a changed configuration file to the running gateway.
// The command line log overrides stay in force.
func reloadConfig(app *application, flags cliFlags, newCfg *config.GatewayConfig, logger observability.Logger) {
	start := time.Now()
	logConfig(flags, newCfg)

	logger.Info("configuration changed, reloading")
	if err := app.gateway.Reload(newCfg); err != nil {
		app.reloadMetrics.reloadTotal.WithLabelValues("error").Inc()
		logger.Error("failed to reload configuration", observability.Error(err))
		return
	}

	app.config = newCfg
	app.reloadMetrics.reloadTotal.WithLabelValues("success").Inc()
	app.reloadMetrics.reloadDuration.Observe(time.Since(start).Seconds())
	app.reloadMetrics.reloadLastSuccess.SetToCurrentTime()
}

// startConfigWatcher starts the configuration watcher. A watcher that cannot
// start is logged and the gateway keeps running on the loaded config.
func startConfigWatcher(app *application, flags cliFlags, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(flags.configPath, func(newCfg *config.GatewayConfig) {
		reloadConfig(app, flags, newCfg, logger)
	}, config.WithLogger(logger), config.WithErrorCallback(func(err error) {
		app.reloadMetrics.reloadTotal.WithLabelValues("error").Inc()
	}))
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}

	app.reloadMetrics.watcherRunning.Set(1)
	return watcher
}
