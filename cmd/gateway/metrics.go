package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// createMetricsServer creates the metrics HTTP server.
func createMetricsServer(port int, path string, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// runMetricsServer runs the metrics HTTP server.
func runMetricsServer(server *http.Server, logger observability.Logger) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}

// startMetricsServerIfEnabled starts the metrics server if enabled.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	m := app.config.Observability.Metrics
	if !m.Enabled {
		return
	}

	app.metricsServer = createMetricsServer(m.Port, m.Path, app.metrics)
	logger.Info("starting metrics server",
		observability.String("address", app.metricsServer.Addr),
		observability.String("metrics_path", m.Path),
	)
	go runMetricsServer(app.metricsServer, logger)
}
