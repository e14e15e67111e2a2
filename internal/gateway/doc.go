// Package gateway assembles the edge gateway: the gin engine, the per-route
// guard chain, one breaker-guarded proxy client per downstream service and the
// public HTTP listener.
//
// Every request runs the global chain first (recovery, correlation id,
// tracing, access log, metrics, body limit). Routes from the router table then
// add, in order, the rate limiter of their class, authentication and
// authorization when they require a principal, and finally the proxy handler
// that rewrites the request and forwards it through the service's breaker.
//
//	gw, err := gateway.New(cfg, gateway.WithLogger(logger), gateway.WithMetrics(metrics))
//	if err != nil {
//	    return err
//	}
//	defer gw.Close()
//	if err := gw.Start(ctx); err != nil {
//	    return err
//	}
package gateway
