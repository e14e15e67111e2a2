package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/vyrodovalexey/edgegw/internal/util"
)

var (
	validAlgorithms    = map[string]bool{"HS256": true, "HS384": true, "HS512": true}
	validLimiters      = map[string]bool{AlgorithmFixedWindow: true, AlgorithmTokenBucket: true}
	validLogLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats    = map[string]bool{"json": true, "console": true}
	minSecretLength    = 16
	maxRollingBuckets  = 1000
	validServiceFields = []string{ServiceUsers, ServiceOrders}
)

// validator accumulates field errors so one pass reports all of them.
type validator struct {
	errs []*util.ConfigError
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, util.NewConfigError(field, fmt.Sprintf(format, args...)))
}

func (v *validator) check(field string, err error) {
	if err != nil {
		v.errs = append(v.errs, util.NewConfigErrorWithCause(field, err.Error(), err))
	}
}

// ValidateConfig validates a fully defaulted configuration. The returned
// error matches util.ErrConfigInvalid.
func ValidateConfig(cfg *GatewayConfig) error {
	v := &validator{}

	v.check("server.port", util.ValidatePort(cfg.Server.Port))
	if cfg.Server.MaxBodyBytes < 0 {
		v.add("server.maxBodyBytes", "must not be negative")
	}
	for i, proxy := range cfg.Server.TrustedProxies {
		if !validProxy(proxy) {
			v.add(fmt.Sprintf("server.trustedProxies[%d]", i), "must be an IP address or CIDR, got %q", proxy)
		}
	}

	v.validateAuth(&cfg.Auth)
	v.validateLimit("rateLimit.auth", cfg.RateLimit.Auth)
	v.validateLimit("rateLimit.api", cfg.RateLimit.API)
	v.check("rateLimit.cleanupInterval", util.ValidatePositiveDuration(cfg.RateLimit.CleanupInterval.Duration()))

	for _, name := range validServiceFields {
		v.validateService("services."+name, cfg.Services.All()[name])
		v.validateBreaker("services."+name+".circuitBreaker", cfg.BreakerFor(name))
	}

	v.validateCORS(&cfg.CORS)
	v.validateSecurity(&cfg.Security)
	v.validateObservability(&cfg.Observability)

	return util.JoinConfigErrors(v.errs)
}

func (v *validator) validateAuth(a *AuthConfig) {
	switch {
	case a.JWTSecret == "":
		v.add("auth.jwtSecret", "is required (set JWT_SECRET)")
	case len(a.JWTSecret) < minSecretLength:
		v.add("auth.jwtSecret", "must be at least %d bytes", minSecretLength)
	}
	if !validAlgorithms[strings.ToUpper(a.Algorithm)] {
		v.add("auth.algorithm", "unsupported algorithm %q", a.Algorithm)
	}
	if a.ClockSkew < 0 {
		v.add("auth.clockSkew", "must not be negative")
	}
}

func (v *validator) validateLimit(field string, l LimitConfig) {
	if !validLimiters[l.Algorithm] {
		v.add(field+".algorithm", "unsupported algorithm %q", l.Algorithm)
	}
	if l.Requests <= 0 {
		v.add(field+".requests", "must be positive")
	}
	v.check(field+".window", util.ValidatePositiveDuration(l.Window.Duration()))
}

func (v *validator) validateService(field string, s ServiceConfig) {
	v.check(field+".url", util.ValidateURL(s.URL))
	v.check(field+".displayName", util.ValidateNonEmpty(s.DisplayName, "displayName"))
}

func (v *validator) validateBreaker(field string, cb CircuitBreakerConfig) {
	v.check(field+".callTimeout", util.ValidatePositiveDuration(cb.CallTimeout.Duration()))
	v.check(field+".resetTimeout", util.ValidatePositiveDuration(cb.ResetTimeout.Duration()))
	v.check(field+".rollingWindow", util.ValidatePositiveDuration(cb.RollingWindow.Duration()))
	v.check(field+".errorThresholdPercentage", util.ValidatePercentage(cb.ErrorThresholdPercentage))
	if cb.MinRequests < 1 {
		v.add(field+".minRequests", "must be at least 1")
	}
	if cb.RollingBuckets < 1 || cb.RollingBuckets > maxRollingBuckets {
		v.add(field+".rollingBuckets", "must be between 1 and %d", maxRollingBuckets)
	}
	if cb.RollingBuckets > 0 && cb.RollingWindow.Duration()%time.Duration(cb.RollingBuckets) != 0 {
		v.add(field+".rollingWindow", "must divide evenly into %d buckets", cb.RollingBuckets)
	}
}

func (v *validator) validateCORS(c *CORSConfig) {
	if c.MaxAge < 0 {
		v.add("cors.maxAge", "must not be negative")
	}
	if c.AllowCredentials {
		for _, o := range c.AllowOrigins {
			if o == "*" {
				v.add("cors.allowOrigins", "wildcard origin cannot be combined with allowCredentials")
				break
			}
		}
	}
}

func (v *validator) validateSecurity(s *SecurityConfig) {
	switch strings.ToUpper(s.FrameOptions) {
	case "DENY", "SAMEORIGIN":
	default:
		v.add("security.frameOptions", "must be DENY or SAMEORIGIN, got %q", s.FrameOptions)
	}
	if s.HSTSMaxAge < 0 {
		v.add("security.hstsMaxAge", "must not be negative")
	}
}

func (v *validator) validateObservability(o *ObservabilityConfig) {
	if !validLogLevels[strings.ToLower(o.Logging.Level)] {
		v.add("observability.logging.level", "unsupported level %q", o.Logging.Level)
	}
	if !validLogFormats[o.Logging.Format] {
		v.add("observability.logging.format", "unsupported format %q", o.Logging.Format)
	}
	if o.Metrics.Enabled {
		v.check("observability.metrics.port", util.ValidatePort(o.Metrics.Port))
		if !strings.HasPrefix(o.Metrics.Path, "/") {
			v.add("observability.metrics.path", "must start with /")
		}
	}
	if o.Tracing.SamplingRate < 0 || o.Tracing.SamplingRate > 1 {
		v.add("observability.tracing.samplingRate", "must be between 0 and 1")
	}
}

func validProxy(s string) bool {
	if net.ParseIP(s) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(s)
	return err == nil
}
