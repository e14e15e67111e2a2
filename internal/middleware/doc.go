// Package middleware holds the gin handlers that make up the gateway
// pipeline.
//
// Global handlers run on every request in this order:
//
//	Recovery -> RequestID -> SecurityHeaders -> CORS -> Tracing -> Logging -> Metrics -> BodyLimit
//
// Each route then adds its own stages:
//
//	RateLimit(class) -> Authenticate -> Authorize(roles) -> handler
//
// A failing stage writes the error envelope and aborts the chain, so no
// later stage (and no downstream call) runs.
package middleware
