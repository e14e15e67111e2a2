package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/middleware"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
	"github.com/vyrodovalexey/edgegw/internal/router"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

// Gateway-owned endpoints.
const (
	HealthPath = "/health"
	StatusPath = router.APIPrefix + "/status"
)

func (g *Gateway) buildEngine() (*gin.Engine, error) {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	// Rate-limit keys use c.ClientIP(), so forwarding headers are only
	// honored from configured proxies.
	if err := engine.SetTrustedProxies(g.config.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("server.trustedProxies: %w", err)
	}

	engine.Use(middleware.Recovery(g.logger), middleware.RequestID())
	if sec := g.config.Security; !sec.Disabled {
		engine.Use(middleware.SecurityHeaders(middleware.SecurityConfig{
			FrameOptions:          sec.FrameOptions,
			ContentTypeOptions:    sec.ContentTypeOptions,
			ReferrerPolicy:        sec.ReferrerPolicy,
			HSTSMaxAge:            sec.HSTSMaxAge.Duration(),
			HSTSIncludeSubdomains: sec.HSTSSubdomains,
		}))
	}
	engine.Use(
		middleware.CORS(corsConfig(g.config.CORS)),
		middleware.Tracing(g.tracer),
		middleware.Logging(g.logger, HealthPath),
		middleware.Metrics(g.metrics),
		middleware.BodyLimit(g.config.Server.MaxBodyBytes),
	)

	engine.GET(HealthPath, g.health.Health)
	engine.GET(StatusPath, g.rateLimit(config.ClassAPI), g.health.Status)

	authCfg := middleware.AuthConfig{
		Verifier:  g.verifier,
		Extractor: g.extractor,
		Metrics:   g.metrics,
		Logger:    g.logger,
	}
	for _, route := range g.routes.Routes() {
		var chain []gin.HandlerFunc
		if route.Class != "" {
			chain = append(chain, g.rateLimit(route.Class))
		}
		if route.RequiresAuth {
			chain = append(chain,
				middleware.Authenticate(authCfg),
				middleware.Authorize(route.Roles, authCfg),
			)
		}
		chain = append(chain, g.forward(route, g.clients[route.Service]))
		engine.Handle(route.Method, route.Path, chain...)
	}

	engine.NoRoute(func(c *gin.Context) {
		util.Abort(c, util.CodeNotFound, "")
	})
	engine.NoMethod(func(c *gin.Context) {
		util.Abort(c, util.CodeMethodNotAllowed, "")
	})

	return engine, nil
}

func corsConfig(c config.CORSConfig) middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowOrigins:     c.AllowOrigins,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		ExposeHeaders:    c.ExposeHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge.Duration(),
	}
}

func (g *Gateway) rateLimit(class string) gin.HandlerFunc {
	return middleware.RateLimit(middleware.RateLimitConfig{
		Source:  g.limiters,
		Class:   class,
		Metrics: g.metrics,
		Logger:  g.logger,
	})
}

// forward is the last stage of every proxied route: it rewrites the inbound
// request for the downstream service and relays the outcome.
func (g *Gateway) forward(route router.Route, client *proxy.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readBody(c.Request)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				util.Abort(c, util.CodeBadRequest, "request body too large")
				return
			}
			util.Abort(c, util.CodeBadRequest, "")
			return
		}

		principal, _ := middleware.GetPrincipal(c)
		req, err := route.Upstream(&router.Inbound{
			Params:    params(c.Params),
			Query:     c.Request.URL.Query(),
			Body:      body,
			Header:    c.Request.Header,
			Principal: principal,
		})
		if err != nil {
			g.rejectUpstream(c, route, err)
			return
		}

		reply := client.Reply(client.Do(c.Request.Context(), req))
		c.Data(reply.Status, reply.ContentType, reply.Body)
	}
}

func (g *Gateway) rejectUpstream(c *gin.Context, route router.Route, err error) {
	var authErr *auth.Error
	switch {
	case errors.Is(err, router.ErrBadRequest):
		util.Abort(c, util.CodeBadRequest, "")
	case errors.As(err, &authErr):
		util.Abort(c, auth.CodeFor(err), "")
	default:
		g.logger.WithContext(c.Request.Context()).Error("failed to build downstream request",
			observability.String("route", route.Name),
			observability.Error(err),
		)
		util.Abort(c, util.CodeInternal, "")
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func params(ps gin.Params) map[string]string {
	if len(ps) == 0 {
		return nil
	}
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		out[p.Key] = p.Value
	}
	return out
}
