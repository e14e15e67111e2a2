package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/authz"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// PrincipalKey is the gin context key for the authenticated principal.
const PrincipalKey = "principal"

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Principal, error)
}

// TokenExtractor pulls the bearer token out of request headers.
type TokenExtractor interface {
	Extract(h http.Header) (string, error)
}

// AuthConfig configures Authenticate and Authorize.
type AuthConfig struct {
	Verifier  TokenVerifier
	Extractor TokenExtractor
	Metrics   *observability.Metrics
	Logger    observability.Logger
}

// Authenticate verifies the bearer credential and attaches the principal to
// the request. On failure it answers UNAUTHORIZED, TOKEN_EXPIRED or
// INVALID_TOKEN and the chain stops.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		token, err := cfg.Extractor.Extract(c.Request.Header)
		if err != nil {
			fail(c, cfg, err)
			return
		}

		principal, err := cfg.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			fail(c, cfg, err)
			return
		}

		c.Set(PrincipalKey, principal)
		c.Request = c.Request.WithContext(auth.ContextWithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// Authorize admits the principal if its role is in roles, or if roles is
// empty. It must run after Authenticate; without a principal it answers
// UNAUTHORIZED.
func Authorize(roles authz.RoleSet, cfg AuthConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		principal, _ := GetPrincipal(c)
		if err := authz.Authorize(principal, roles); err != nil {
			fail(c, cfg, err)
			return
		}
		c.Next()
	}
}

// GetPrincipal returns the principal attached by Authenticate.
func GetPrincipal(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*auth.Principal)
	return p, ok && p != nil
}

func fail(c *gin.Context, cfg AuthConfig, err error) {
	code := auth.CodeFor(err)
	if cfg.Metrics != nil {
		cfg.Metrics.RecordAuthFailure(string(code))
	}
	cfg.Logger.WithContext(c.Request.Context()).Debug("request rejected",
		observability.String("code", string(code)),
		observability.String("route", c.FullPath()),
		observability.Error(err),
	)
	util.Abort(c, code, "")
}
