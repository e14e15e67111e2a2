// Package circuitbreaker isolates the gateway from failing downstream
// services. Each service gets one Breaker; its closed/open/half-open state
// machine is driven by sony/gobreaker, while the decision to trip comes from
// a rolling window of recent call outcomes.
package circuitbreaker

import (
	"time"
)

// Default settings.
const (
	DefaultCallTimeout              = 5 * time.Second
	DefaultErrorThresholdPercentage = 50.0
	DefaultResetTimeout             = 30 * time.Second
	DefaultMinRequests              = 10
	DefaultRollingWindow            = 10 * time.Second
	DefaultRollingBuckets           = 10
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// CallTimeout bounds each call. Exceeding it counts as a failure.
	CallTimeout time.Duration

	// ErrorThresholdPercentage trips the breaker when the window's failure
	// percentage is strictly greater than this value.
	ErrorThresholdPercentage float64

	// ResetTimeout is how long the breaker stays open before allowing a trial call.
	ResetTimeout time.Duration

	// MinRequests is the number of completed calls the window must hold
	// before the threshold is evaluated.
	MinRequests int

	// RollingWindow is the span over which outcomes are counted.
	RollingWindow time.Duration

	// RollingBuckets is the number of slices RollingWindow is divided into.
	RollingBuckets int

	// IsSuccessful decides whether an error returned by a call is healthy.
	// If nil, only a nil error is a success.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		CallTimeout:              DefaultCallTimeout,
		ErrorThresholdPercentage: DefaultErrorThresholdPercentage,
		ResetTimeout:             DefaultResetTimeout,
		MinRequests:              DefaultMinRequests,
		RollingWindow:            DefaultRollingWindow,
		RollingBuckets:           DefaultRollingBuckets,
	}
}

// Validate replaces out-of-range values with defaults.
func (c *Config) Validate() {
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.ErrorThresholdPercentage <= 0 || c.ErrorThresholdPercentage > 100 {
		c.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.MinRequests < 1 {
		c.MinRequests = DefaultMinRequests
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = DefaultRollingWindow
	}
	if c.RollingBuckets < 1 {
		c.RollingBuckets = DefaultRollingBuckets
	}
}

// WithCallTimeout sets the per-call timeout.
func (c *Config) WithCallTimeout(d time.Duration) *Config {
	c.CallTimeout = d
	return c
}

// WithErrorThresholdPercentage sets the trip threshold.
func (c *Config) WithErrorThresholdPercentage(p float64) *Config {
	c.ErrorThresholdPercentage = p
	return c
}

// WithResetTimeout sets the open duration.
func (c *Config) WithResetTimeout(d time.Duration) *Config {
	c.ResetTimeout = d
	return c
}

// WithMinRequests sets the minimum sample size.
func (c *Config) WithMinRequests(n int) *Config {
	c.MinRequests = n
	return c
}

// WithRollingWindow sets the window span and bucket count.
func (c *Config) WithRollingWindow(span time.Duration, buckets int) *Config {
	c.RollingWindow = span
	c.RollingBuckets = buckets
	return c
}

// WithIsSuccessful sets the success check function.
func (c *Config) WithIsSuccessful(fn func(err error) bool) *Config {
	c.IsSuccessful = fn
	return c
}
