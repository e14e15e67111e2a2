package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// LimiterSource resolves the limiter for a class at request time, so a
// reloaded configuration takes effect without rebuilding routes.
type LimiterSource interface {
	Get(class string) (ratelimit.Limiter, bool)
}

// KeyFunc returns the client identity used for rate limiting.
type KeyFunc func(c *gin.Context) string

// ClientIPKey keys clients by address.
func ClientIPKey(c *gin.Context) string {
	return c.ClientIP()
}

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	Source  LimiterSource
	Class   string
	KeyFunc KeyFunc
	Metrics *observability.Metrics
	Logger  observability.Logger
}

// RateLimit admits at most the configured number of requests per client and
// class. Rejections get TOO_MANY_REQUESTS and a Retry-After hint. Limiter
// errors let the request through.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIPKey
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		limiter, ok := cfg.Source.Get(cfg.Class)
		if !ok {
			c.Next()
			return
		}

		key := ratelimit.Key(cfg.Class, cfg.KeyFunc(c))
		result, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			cfg.Logger.WithContext(c.Request.Context()).Error("rate limit check failed",
				observability.String("key", key),
				observability.Error(err),
			)
			c.Next()
			return
		}

		c.Header(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
		c.Header(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(result.ResetAfter)))

		if !result.Allowed {
			c.Header(HeaderRetryAfter, strconv.Itoa(ceilSeconds(result.RetryAfter)))
			if cfg.Metrics != nil {
				cfg.Metrics.RecordRateLimitHit(cfg.Class)
			}
			cfg.Logger.WithContext(c.Request.Context()).Debug("rate limit exceeded",
				observability.String("key", key),
				observability.Int("limit", result.Limit),
			)
			util.Abort(c, util.CodeTooManyRequests, "")
			return
		}

		c.Next()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
