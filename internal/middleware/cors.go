package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowOrigins lists origins that may access the gateway. "*" allows any.
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// corsPolicy holds pre-computed header values.
type corsPolicy struct {
	config        CORSConfig
	allowAll      bool
	origins       map[string]struct{}
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
}

func newCORSPolicy(config CORSConfig) *corsPolicy {
	p := &corsPolicy{
		config:        config,
		origins:       make(map[string]struct{}, len(config.AllowOrigins)),
		allowMethods:  strings.Join(config.AllowMethods, ", "),
		allowHeaders:  strings.Join(config.AllowHeaders, ", "),
		exposeHeaders: strings.Join(config.ExposeHeaders, ", "),
		maxAge:        strconv.Itoa(int(config.MaxAge.Seconds())),
	}
	for _, o := range config.AllowOrigins {
		if o == "*" {
			p.allowAll = true
		}
		p.origins[o] = struct{}{}
	}
	return p
}

func (p *corsPolicy) allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// CORS answers preflight requests and decorates responses for allowed
// origins. Requests without an Origin header pass through untouched; a
// preflight stops the chain with 204 before any limiter or guard runs.
func CORS(config CORSConfig) gin.HandlerFunc {
	p := newCORSPolicy(config)

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" || !p.allowed(origin) {
			c.Next()
			return
		}

		if p.allowAll && !p.config.AllowCredentials {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		if p.config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if p.exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", p.exposeHeaders)
		}

		if c.Request.Method == http.MethodOptions && c.Request.Header.Get("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", p.allowMethods)
			c.Header("Access-Control-Allow-Headers", p.allowHeaders)
			c.Header("Access-Control-Max-Age", p.maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
