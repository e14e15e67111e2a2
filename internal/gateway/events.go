package gateway

import (
	"github.com/vyrodovalexey/edgegw/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgegw/internal/observability"
)

const eventBuffer = 16

// observeBreakers follows state changes of every downstream breaker until the
// returned function is called.
func (g *Gateway) observeBreakers() func() {
	events, unsubscribe := g.breakers.Subscribe(eventBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			g.logEvent(ev)
			if g.onEvent != nil {
				g.onEvent(ev)
			}
		}
	}()

	return func() {
		unsubscribe()
		<-done
	}
}

func (g *Gateway) logEvent(ev circuitbreaker.Event) {
	fields := []observability.Field{
		observability.String("service", ev.Service),
		observability.String("from", ev.From.String()),
		observability.String("to", ev.To.String()),
		observability.Time("at", ev.At),
	}
	switch ev.To {
	case circuitbreaker.StateOpen:
		g.logger.Warn("downstream service unavailable, failing fast", fields...)
	case circuitbreaker.StateHalfOpen:
		g.logger.Info("probing downstream service", fields...)
	default:
		g.logger.Info("downstream service recovered", fields...)
	}
}
