// Package health serves the gateway's own status endpoints.
//
// /health reports whether the process is up together with the state and
// statistics of every downstream circuit breaker. /api/v1/status is a static
// version payload. Neither endpoint is authenticated and neither touches a
// downstream service.
//
//	h := health.NewHandler(registry)
//	engine.GET("/health", h.Health)
//	engine.GET("/api/v1/status", h.Status)
package health
