package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/authz"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/util"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) util.Envelope {
	t.Helper()
	var env util.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(RequestIDWithGenerator(func() string { return "generated" }))
	var seenCtx, seenGin string
	engine.GET("/x", func(c *gin.Context) {
		seenCtx = observability.RequestIDFromContext(c.Request.Context())
		seenGin = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name    string
		inbound string
		want    string
	}{
		{name: "propagates inbound id", inbound: "abc-123", want: "abc-123"},
		{name: "generates when missing", inbound: "", want: "generated"},
		{name: "replaces oversized id", inbound: strings.Repeat("a", maxRequestIDLength+1), want: "generated"},
		{name: "replaces id with spaces", inbound: "a b", want: "generated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.inbound != "" {
				req.Header.Set("x-request-id", tt.inbound)
			}
			w := serve(engine, req)
			assert.Equal(t, tt.want, w.Header().Get(util.HeaderRequestID))
			assert.Equal(t, tt.want, seenCtx)
			assert.Equal(t, tt.want, seenGin)
		})
	}
}

func TestRequestID_DefaultGeneratorIsUUID(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, w.Header().Get(util.HeaderRequestID), 36)
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	engine := gin.New()
	engine.Use(Recovery(observability.NewLoggerFromZap(zap.New(core))))
	engine.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, util.CodeInternal, env.Error.Code)
	assert.NotContains(t, w.Body.String(), "kaboom")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "panic recovered", entry.Message)
	assert.Equal(t, "kaboom", entry.ContextMap()["panic"])
}

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	engine := gin.New()
	engine.Use(RequestID(), Logging(observability.NewLoggerFromZap(zap.New(core)), "/health"))
	engine.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	engine.GET("/err", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/ok", "/bad", "/err", "/health"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		serve(engine, req)
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	for _, e := range entries {
		assert.Equal(t, "request completed", e.Message)
		assert.NotEmpty(t, e.ContextMap()["request_id"])
		for _, v := range e.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, "secret-token")
			}
		}
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := observability.NewMetrics("test")
	engine := gin.New()
	engine.Use(Metrics(m))
	engine.GET("/orders/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(engine, httptest.NewRequest(http.MethodGet, "/orders/1", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/orders/2", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/nope", nil))

	count, err := testutil.GatherAndCount(m.Registry(), "test_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	expected := `
# HELP test_requests_total Total number of HTTP requests
# TYPE test_requests_total counter
test_requests_total{method="GET",route="/orders/:id",status="200"} 2
test_requests_total{method="GET",route="unmatched",status="404"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "test_requests_total"))

	// nil metrics is a pass-through
	engine = gin.New()
	engine.Use(Metrics(nil))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestBodyLimit(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.Use(BodyLimit(8))
	engine.POST("/x", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("small"))).Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge,
		serve(engine, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("much too large"))).Code)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimit_FixedWindow(t *testing.T) {
	t.Parallel()

	clock := &testClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	set := ratelimit.NewSet(nil, ratelimit.WithClock(clock.Now), ratelimit.WithCleanupInterval(0))
	defer func() { _ = set.Close() }()
	require.NoError(t, set.Apply("auth", ratelimit.Config{
		Algorithm: ratelimit.AlgorithmFixedWindow,
		Limit:     ratelimit.Limit{Requests: 3, Window: 15 * time.Minute},
	}))

	m := observability.NewMetrics("test")
	var reached int
	engine := gin.New()
	engine.POST("/login", RateLimit(RateLimitConfig{Source: set, Class: "auth", Metrics: m}), func(c *gin.Context) {
		reached++
		c.Status(http.StatusOK)
	})

	login := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5555"
		return serve(engine, req)
	}

	for i := 0; i < 3; i++ {
		w := login("10.0.0.1")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, []string{"2", "1", "0"}[i], w.Header().Get(HeaderRateLimitRemaining))
	}

	w := login("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, util.CodeTooManyRequests, decodeEnvelope(t, w).Error.Code)
	assert.Equal(t, "900", w.Header().Get(HeaderRetryAfter))
	assert.Equal(t, 3, reached)
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP test_rate_limit_hits_total Total number of requests rejected by a rate limiter
# TYPE test_rate_limit_hits_total counter
test_rate_limit_hits_total{class="auth"} 1
`), "test_rate_limit_hits_total"))

	assert.Equal(t, http.StatusOK, login("10.0.0.2").Code, "other clients are independent")

	clock.Advance(15 * time.Minute)
	assert.Equal(t, http.StatusOK, login("10.0.0.1").Code, "window reset")
}

type failingLimiter struct{ ratelimit.Limiter }

func (failingLimiter) Allow(context.Context, string) (*ratelimit.Result, error) {
	return nil, errors.New("store down")
}

type staticSource map[string]ratelimit.Limiter

func (s staticSource) Get(class string) (ratelimit.Limiter, bool) {
	l, ok := s[class]
	return l, ok
}

func TestRateLimit_FailsOpen(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.GET("/a", RateLimit(RateLimitConfig{Source: staticSource{"api": failingLimiter{}}, Class: "api"}),
		func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/b", RateLimit(RateLimitConfig{Source: staticSource{}, Class: "api"}),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/a", nil)).Code)
	assert.Equal(t, http.StatusOK, serve(engine, httptest.NewRequest(http.MethodGet, "/b", nil)).Code)
}

func TestCeilSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ceilSeconds(0))
	assert.Equal(t, 0, ceilSeconds(-time.Second))
	assert.Equal(t, 1, ceilSeconds(10*time.Millisecond))
	assert.Equal(t, 2, ceilSeconds(1500*time.Millisecond))
}

type stubVerifier struct {
	principal *auth.Principal
	err       error
	calls     int
}

func (s *stubVerifier) Verify(context.Context, string) (*auth.Principal, error) {
	s.calls++
	return s.principal, s.err
}

type headerExtractor struct{}

func (headerExtractor) Extract(h http.Header) (string, error) {
	v := h.Get("Authorization")
	if !strings.HasPrefix(v, "Bearer ") {
		return "", auth.NewError(auth.ErrMissingCredential, "missing")
	}
	return strings.TrimPrefix(v, "Bearer "), nil
}

func TestAuthenticateAndAuthorize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		principal  *auth.Principal
		verifyErr  error
		roles      authz.RoleSet
		wantStatus int
		wantCode   util.Code
		wantVerify bool
	}{
		{
			name:       "missing credential",
			wantStatus: http.StatusUnauthorized,
			wantCode:   util.CodeUnauthorized,
		},
		{
			name:       "expired",
			header:     "Bearer t",
			verifyErr:  auth.NewError(auth.ErrTokenExpired, "x"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   util.CodeTokenExpired,
			wantVerify: true,
		},
		{
			name:       "invalid",
			header:     "Bearer t",
			verifyErr:  auth.NewError(auth.ErrInvalidToken, "x"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   util.CodeInvalidToken,
			wantVerify: true,
		},
		{
			name:       "user on admin route",
			header:     "Bearer t",
			principal:  &auth.Principal{SubjectID: "u1", Role: auth.RoleUser},
			roles:      authz.NewRoleSet(auth.RoleAdmin),
			wantStatus: http.StatusForbidden,
			wantCode:   util.CodeForbidden,
			wantVerify: true,
		},
		{
			name:       "admin on admin route",
			header:     "Bearer t",
			principal:  &auth.Principal{SubjectID: "a1", Role: auth.RoleAdmin},
			roles:      authz.NewRoleSet(auth.RoleAdmin),
			wantStatus: http.StatusOK,
			wantVerify: true,
		},
		{
			name:       "any role on open route",
			header:     "Bearer t",
			principal:  &auth.Principal{SubjectID: "e1", Role: auth.RoleEngineer},
			wantStatus: http.StatusOK,
			wantVerify: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := &stubVerifier{principal: tt.principal, err: tt.verifyErr}
			m := observability.NewMetrics("test")
			cfg := AuthConfig{Verifier: v, Extractor: headerExtractor{}, Metrics: m}

			var handled bool
			var seen *auth.Principal
			engine := gin.New()
			engine.GET("/r", Authenticate(cfg), Authorize(tt.roles, cfg), func(c *gin.Context) {
				handled = true
				seen, _ = auth.PrincipalFromContext(c.Request.Context())
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/r", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(engine, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantVerify, v.calls == 1)
			if tt.wantCode != "" {
				assert.False(t, handled, "handler must not run")
				assert.Equal(t, tt.wantCode, decodeEnvelope(t, w).Error.Code)
				count, err := testutil.GatherAndCount(m.Registry(), "test_auth_failures_total")
				require.NoError(t, err)
				assert.Equal(t, 1, count)
				return
			}
			assert.True(t, handled)
			assert.Same(t, tt.principal, seen)
		})
	}
}

func TestAuthorize_WithoutPrincipal(t *testing.T) {
	t.Parallel()

	engine := gin.New()
	engine.GET("/r", Authorize(nil, AuthConfig{}), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/r", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, util.CodeUnauthorized, decodeEnvelope(t, w).Error.Code)
}
