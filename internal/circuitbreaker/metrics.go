package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes breaker state and call outcomes. It implements
// prometheus.Collector so it can be registered on any registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	state       *prometheus.GaugeVec
	calls       *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics creates breaker metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_calls_total",
				Help:      "Calls through circuit breakers by outcome",
			},
			[]string{"service", "outcome"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_fallbacks_total",
				Help:      "Fallback responses served by circuit breakers",
			},
			[]string{"service"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state_changes_total",
				Help:      "Total number of circuit breaker state changes",
			},
			[]string{"service", "from", "to"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.state.Describe(ch)
	m.calls.Describe(ch)
	m.fallbacks.Describe(ch)
	m.transitions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.state.Collect(ch)
	m.calls.Collect(ch)
	m.fallbacks.Collect(ch)
	m.transitions.Collect(ch)
}

func (m *Metrics) setState(service string, s State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(service).Set(float64(s))
}

func (m *Metrics) recordCall(service string, o Outcome) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(service, o.String()).Inc()
}

func (m *Metrics) recordFallback(service string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(service).Inc()
}

func (m *Metrics) recordTransition(service string, from, to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(service, from.String(), to.String()).Inc()
}
