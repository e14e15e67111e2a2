package proxy

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the downstream call collectors.
type Metrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewMetrics creates the collectors. Register the result with a registry.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "downstream",
				Name:      "duration_seconds",
				Help:      "Duration of downstream service calls",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "downstream",
				Name:      "errors_total",
				Help:      "Total number of downstream call errors",
			},
			[]string{"service", "error_type"},
		),
	}
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.duration.Describe(ch)
	m.errors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.duration.Collect(ch)
	m.errors.Collect(ch)
}

func (m *Metrics) observe(service string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(service, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) recordError(service, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(service, kind).Inc()
}
