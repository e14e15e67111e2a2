package config

import (
	"time"
)

// Service identifiers used by routes and breakers.
const (
	ServiceUsers  = "users"
	ServiceOrders = "orders"
)

// Rate limiter classes.
const (
	ClassAuth = "auth"
	ClassAPI  = "api"
)

// Rate limiter algorithms.
const (
	AlgorithmFixedWindow = "fixed_window"
	AlgorithmTokenBucket = "token_bucket"
)

// Default values.
const (
	DefaultPort            = 8000
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20

	DefaultJWTAlgorithm = "HS256"

	DefaultAuthLimitRequests = 10
	DefaultAPILimitRequests  = 100
	DefaultLimitWindow       = 15 * time.Minute
	DefaultCleanupInterval   = time.Minute

	DefaultCallTimeout              = 5 * time.Second
	DefaultErrorThresholdPercentage = 50.0
	DefaultResetTimeout             = 30 * time.Second
	DefaultMinRequests              = 10
	DefaultRollingWindow            = 10 * time.Second
	DefaultRollingBuckets           = 10

	DefaultUsersURL  = "http://service_users:8000"
	DefaultOrdersURL = "http://service_orders:8000"

	DefaultCORSMaxAge = 24 * time.Hour

	DefaultFrameOptions       = "DENY"
	DefaultContentTypeOptions = "nosniff"
	DefaultReferrerPolicy     = "no-referrer"
	DefaultHSTSMaxAge         = 180 * 24 * time.Hour

	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
	DefaultServiceName = "api-gateway"
)

// GatewayConfig is the root configuration document.
type GatewayConfig struct {
	Server         ServerConfig         `yaml:"server" json:"server"`
	Auth           AuthConfig           `yaml:"auth" json:"auth"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit" json:"rateLimit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
	Services       ServicesConfig       `yaml:"services" json:"services"`
	CORS           CORSConfig           `yaml:"cors" json:"cors"`
	Security       SecurityConfig       `yaml:"security" json:"security"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
}

// ServerConfig configures the public HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Port            int      `yaml:"port" json:"port"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	MaxBodyBytes    int64    `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	// TrustedProxies lists the peer IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are honored. Empty means the client IP is the peer.
	TrustedProxies  []string `yaml:"trustedProxies,omitempty" json:"trustedProxies,omitempty"`
}

// AuthConfig configures bearer credential verification.
type AuthConfig struct {
	JWTSecret string       `yaml:"jwtSecret" json:"-"`
	Algorithm string       `yaml:"algorithm" json:"algorithm"`
	ClockSkew Duration     `yaml:"clockSkew" json:"clockSkew"`
	Claims    ClaimsConfig `yaml:"claims" json:"claims"`
}

// ClaimsConfig names the private claims that carry the principal.
type ClaimsConfig struct {
	Subject string `yaml:"subject" json:"subject"`
	Role    string `yaml:"role" json:"role"`
	Name    string `yaml:"name" json:"name"`
	Email   string `yaml:"email" json:"email"`
}

// RateLimitConfig holds one limit per route class.
type RateLimitConfig struct {
	Auth            LimitConfig `yaml:"auth" json:"auth"`
	API             LimitConfig `yaml:"api" json:"api"`
	CleanupInterval Duration    `yaml:"cleanupInterval" json:"cleanupInterval"`
}

// LimitConfig is a max-count per window.
type LimitConfig struct {
	Algorithm string   `yaml:"algorithm" json:"algorithm"`
	Requests  int      `yaml:"requests" json:"requests"`
	Window    Duration `yaml:"window" json:"window"`
}

// Class returns the limit for a route class.
func (r RateLimitConfig) Class(class string) (LimitConfig, bool) {
	switch class {
	case ClassAuth:
		return r.Auth, true
	case ClassAPI:
		return r.API, true
	default:
		return LimitConfig{}, false
	}
}

// CircuitBreakerConfig configures a per-service breaker.
type CircuitBreakerConfig struct {
	CallTimeout              Duration `yaml:"callTimeout" json:"callTimeout"`
	ErrorThresholdPercentage float64  `yaml:"errorThresholdPercentage" json:"errorThresholdPercentage"`
	ResetTimeout             Duration `yaml:"resetTimeout" json:"resetTimeout"`
	MinRequests              int      `yaml:"minRequests" json:"minRequests"`
	RollingWindow            Duration `yaml:"rollingWindow" json:"rollingWindow"`
	RollingBuckets           int      `yaml:"rollingBuckets" json:"rollingBuckets"`
}

// merge returns c with every non-zero field of o applied on top.
func (c CircuitBreakerConfig) merge(o *CircuitBreakerConfig) CircuitBreakerConfig {
	if o == nil {
		return c
	}
	if o.CallTimeout > 0 {
		c.CallTimeout = o.CallTimeout
	}
	if o.ErrorThresholdPercentage > 0 {
		c.ErrorThresholdPercentage = o.ErrorThresholdPercentage
	}
	if o.ResetTimeout > 0 {
		c.ResetTimeout = o.ResetTimeout
	}
	if o.MinRequests > 0 {
		c.MinRequests = o.MinRequests
	}
	if o.RollingWindow > 0 {
		c.RollingWindow = o.RollingWindow
	}
	if o.RollingBuckets > 0 {
		c.RollingBuckets = o.RollingBuckets
	}
	return c
}

// ServicesConfig lists the downstream services.
type ServicesConfig struct {
	Users  ServiceConfig `yaml:"users" json:"users"`
	Orders ServiceConfig `yaml:"orders" json:"orders"`
}

// ServiceConfig describes one downstream service.
type ServiceConfig struct {
	URL string `yaml:"url" json:"url"`
	// DisplayName is used in fallback messages ("Users service temporarily unavailable").
	DisplayName    string                `yaml:"displayName" json:"displayName"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// All returns the services keyed by identifier.
func (s ServicesConfig) All() map[string]ServiceConfig {
	return map[string]ServiceConfig{
		ServiceUsers:  s.Users,
		ServiceOrders: s.Orders,
	}
}

// BreakerFor returns the breaker settings for a service: the global section
// with the service's overrides applied.
func (c *GatewayConfig) BreakerFor(service string) CircuitBreakerConfig {
	svc, ok := c.Services.All()[service]
	if !ok {
		return c.CircuitBreaker
	}
	return c.CircuitBreaker.merge(svc.CircuitBreaker)
}

// CORSConfig controls cross-origin access from browsers.
type CORSConfig struct {
	// AllowOrigins lists permitted origins. "*" allows any origin.
	AllowOrigins     []string `yaml:"allowOrigins" json:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods" json:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders" json:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders" json:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials" json:"allowCredentials"`
	MaxAge           Duration `yaml:"maxAge" json:"maxAge"`
}

// SecurityConfig sets the hardening headers added to every response.
// Strict-Transport-Security is only sent on requests that arrived over TLS.
type SecurityConfig struct {
	Disabled           bool     `yaml:"disabled" json:"disabled"`
	FrameOptions       string   `yaml:"frameOptions" json:"frameOptions"`
	ContentTypeOptions string   `yaml:"contentTypeOptions" json:"contentTypeOptions"`
	ReferrerPolicy     string   `yaml:"referrerPolicy" json:"referrerPolicy"`
	HSTSMaxAge         Duration `yaml:"hstsMaxAge" json:"hstsMaxAge"`
	HSTSSubdomains     bool     `yaml:"hstsIncludeSubdomains" json:"hstsIncludeSubdomains"`
}

// ObservabilityConfig groups logging, metrics, and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
}

// DefaultConfig returns a configuration with every default applied.
// JWTSecret is left empty and must come from the file or JWT_SECRET.
func DefaultConfig() *GatewayConfig {
	cfg := &GatewayConfig{
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *GatewayConfig) {
	s := &cfg.Server
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	s.ReadTimeout = s.ReadTimeout.orDefault(DefaultReadTimeout)
	s.WriteTimeout = s.WriteTimeout.orDefault(DefaultWriteTimeout)
	s.IdleTimeout = s.IdleTimeout.orDefault(DefaultIdleTimeout)
	s.ShutdownTimeout = s.ShutdownTimeout.orDefault(DefaultShutdownTimeout)
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}

	a := &cfg.Auth
	if a.Algorithm == "" {
		a.Algorithm = DefaultJWTAlgorithm
	}
	if a.Claims.Subject == "" {
		a.Claims.Subject = "userId"
	}
	if a.Claims.Role == "" {
		a.Claims.Role = "role"
	}
	if a.Claims.Name == "" {
		a.Claims.Name = "name"
	}
	if a.Claims.Email == "" {
		a.Claims.Email = "email"
	}

	applyLimitDefaults(&cfg.RateLimit.Auth, DefaultAuthLimitRequests)
	applyLimitDefaults(&cfg.RateLimit.API, DefaultAPILimitRequests)
	cfg.RateLimit.CleanupInterval = cfg.RateLimit.CleanupInterval.orDefault(DefaultCleanupInterval)

	cb := &cfg.CircuitBreaker
	cb.CallTimeout = cb.CallTimeout.orDefault(DefaultCallTimeout)
	cb.ResetTimeout = cb.ResetTimeout.orDefault(DefaultResetTimeout)
	cb.RollingWindow = cb.RollingWindow.orDefault(DefaultRollingWindow)
	if cb.ErrorThresholdPercentage == 0 {
		cb.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = DefaultMinRequests
	}
	if cb.RollingBuckets == 0 {
		cb.RollingBuckets = DefaultRollingBuckets
	}

	applyServiceDefaults(&cfg.Services.Users, DefaultUsersURL, "Users")
	applyServiceDefaults(&cfg.Services.Orders, DefaultOrdersURL, "Orders")

	c := &cfg.CORS
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
	if len(c.AllowMethods) == 0 {
		c.AllowMethods = []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"}
	}
	if len(c.AllowHeaders) == 0 {
		c.AllowHeaders = []string{"Authorization", "Content-Type", "X-Request-Id"}
	}
	if len(c.ExposeHeaders) == 0 {
		c.ExposeHeaders = []string{
			"X-Request-Id", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After",
		}
	}
	c.MaxAge = c.MaxAge.orDefault(DefaultCORSMaxAge)

	sec := &cfg.Security
	if sec.FrameOptions == "" {
		sec.FrameOptions = DefaultFrameOptions
	}
	if sec.ContentTypeOptions == "" {
		sec.ContentTypeOptions = DefaultContentTypeOptions
	}
	if sec.ReferrerPolicy == "" {
		sec.ReferrerPolicy = DefaultReferrerPolicy
	}
	sec.HSTSMaxAge = sec.HSTSMaxAge.orDefault(DefaultHSTSMaxAge)

	o := &cfg.Observability
	if o.Logging.Level == "" {
		o.Logging.Level = "info"
	}
	if o.Logging.Format == "" {
		o.Logging.Format = "json"
	}
	if o.Logging.Output == "" {
		o.Logging.Output = "stdout"
	}
	if o.Metrics.Port == 0 {
		o.Metrics.Port = DefaultMetricsPort
	}
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}
}

func applyLimitDefaults(l *LimitConfig, requests int) {
	if l.Algorithm == "" {
		l.Algorithm = AlgorithmFixedWindow
	}
	if l.Requests == 0 {
		l.Requests = requests
	}
	l.Window = l.Window.orDefault(DefaultLimitWindow)
}

func applyServiceDefaults(s *ServiceConfig, url, name string) {
	if s.URL == "" {
		s.URL = url
	}
	if s.DisplayName == "" {
		s.DisplayName = name
	}
}
