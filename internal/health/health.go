package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Version is the API version reported by the status endpoint.
const Version = "1.0.0"

const (
	runningMessage   = "API Gateway is running"
	apiStatusMessage = "API Gateway v1 is running"
)

// BreakerLister is satisfied by *circuitbreaker.Registry.
type BreakerLister interface {
	List() []*circuitbreaker.Breaker
}

// Circuit is the per-service breaker report.
type Circuit struct {
	Status circuitbreaker.State `json:"status"`
	Stats  circuitbreaker.Stats `json:"stats"`
}

// Report is the data member of the /health response.
type Report struct {
	Status    string             `json:"status"`
	Timestamp string             `json:"timestamp"`
	Uptime    string             `json:"uptime"`
	Circuits  map[string]Circuit `json:"circuits"`
}

// StatusReport is the data member of the /api/v1/status response.
type StatusReport struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// Handler serves the health and status endpoints.
type Handler struct {
	breakers  BreakerLister
	version   string
	now       func() time.Time
	startTime time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithVersion overrides the reported API version.
func WithVersion(v string) Option {
	return func(h *Handler) {
		if v != "" {
			h.version = v
		}
	}
}

// NewHandler creates a handler reporting on the breakers in breakers.
// A nil lister reports no circuits.
func NewHandler(breakers BreakerLister, opts ...Option) *Handler {
	h := &Handler{
		breakers: breakers,
		version:  Version,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.startTime = h.now()
	return h
}

// Report builds the current health report.
func (h *Handler) Report() Report {
	now := h.now()
	circuits := make(map[string]Circuit)
	if h.breakers != nil {
		for _, b := range h.breakers.List() {
			stats := b.Stats()
			circuits[b.Name()] = Circuit{Status: stats.State, Stats: stats}
		}
	}
	return Report{
		Status:    runningMessage,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Circuits:  circuits,
	}
}

// Health handles GET /health. It always answers 200 while the process can
// serve; an open breaker is reported, not treated as unhealthy.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, util.Success(h.Report()))
}

// Status handles GET /api/v1/status.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, util.Success(StatusReport{
		Status:    apiStatusMessage,
		Version:   h.version,
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
	}))
}
