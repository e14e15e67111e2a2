// Package observability provides logging, metrics, and tracing
// functionality for the gateway.
//
// # Logging
//
// The Logger interface wraps zap. Its level is held in a zap.AtomicLevel
// so a config reload can change verbosity without rebuilding loggers:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer func() { _ = logger.Sync() }()
//
//	if ls, ok := logger.(observability.LevelSetter); ok {
//	    _ = ls.SetLevel("debug")
//	}
//
// # Metrics
//
// Prometheus metrics live on a private registry. Other packages add their
// collectors with MustRegisterCollector so a single /metrics handler
// serves everything.
//
// # Tracing
//
// OpenTelemetry tracing with optional OTLP gRPC export. A disabled Tracer
// still returns no-op spans.
package observability
