package gateway

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/edgegw/internal/auth/jwt"
	"github.com/vyrodovalexey/edgegw/internal/circuitbreaker"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/health"
	"github.com/vyrodovalexey/edgegw/internal/observability"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
	"github.com/vyrodovalexey/edgegw/internal/ratelimit"
	"github.com/vyrodovalexey/edgegw/internal/router"
)

// MetricsNamespace prefixes every gateway metric.
const MetricsNamespace = "gateway"

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// State represents the gateway state.
type State int32

const (
	// StateStopped indicates the gateway is stopped.
	StateStopped State = iota
	// StateStarting indicates the gateway is starting.
	StateStarting
	// StateRunning indicates the gateway is running.
	StateRunning
	// StateStopping indicates the gateway is stopping.
	StateStopping
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Gateway is the assembled edge gateway.
type Gateway struct {
	config  *config.GatewayConfig
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	routes  *router.Table

	engine    *gin.Engine
	listener  *Listener
	breakers  *circuitbreaker.Registry
	clients   map[string]*proxy.Client
	limiters  *ratelimit.Set
	verifier  *jwt.Verifier
	extractor *jwt.HeaderExtractor
	health    *health.Handler

	httpClient  *http.Client
	limiterOpts []ratelimit.Option
	breakerOpts []circuitbreaker.Option
	onEvent     func(circuitbreaker.Event)

	state      atomic.Int32
	startTime  time.Time
	mu         sync.RWMutex
	stopEvents func()
}

// Option is a functional option for configuring the gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger observability.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics sets the registry the gateway records into. Breaker and
// downstream collectors are registered on it.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithTracer sets the tracer for server and client spans.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = t
	}
}

// WithRoutes replaces the default route table.
func WithRoutes(t *router.Table) Option {
	return func(g *Gateway) {
		if t != nil {
			g.routes = t
		}
	}
}

// WithHTTPClient sets the client used for downstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = hc
	}
}

// WithRateLimitOptions passes options to every rate limiter.
func WithRateLimitOptions(opts ...ratelimit.Option) Option {
	return func(g *Gateway) {
		g.limiterOpts = append(g.limiterOpts, opts...)
	}
}

// WithBreakerOptions passes options to every circuit breaker.
func WithBreakerOptions(opts ...circuitbreaker.Option) Option {
	return func(g *Gateway) {
		g.breakerOpts = append(g.breakerOpts, opts...)
	}
}

// WithBreakerObserver registers fn for every breaker state change while the
// gateway is running.
func WithBreakerObserver(fn func(circuitbreaker.Event)) Option {
	return func(g *Gateway) {
		g.onEvent = fn
	}
}

// New assembles a gateway from cfg. The configuration must already be
// validated.
func New(cfg *config.GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	ginModeOnce.Do(func() {
		if gin.Mode() == gin.DebugMode {
			gin.SetMode(gin.ReleaseMode)
		}
	})

	g := &Gateway{
		config: cfg,
		logger: observability.NopLogger(),
		routes: router.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observability.NewMetrics(MetricsNamespace)
	}

	verifier, err := jwt.NewVerifier(jwt.ConfigFrom(&cfg.Auth))
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	g.verifier = verifier
	g.extractor = jwt.NewHeaderExtractor(jwt.DefaultHeader, jwt.DefaultScheme)

	if err := g.buildClients(); err != nil {
		return nil, err
	}

	limiterOpts := append(
		[]ratelimit.Option{ratelimit.WithCleanupInterval(cfg.RateLimit.CleanupInterval.Duration())},
		g.limiterOpts...,
	)
	g.limiters = ratelimit.NewSet(observability.Zap(g.logger), limiterOpts...)
	if err := g.applyLimits(cfg.RateLimit); err != nil {
		_ = g.limiters.Close()
		return nil, err
	}

	g.health = health.NewHandler(g.breakers)
	engine, err := g.buildEngine()
	if err != nil {
		_ = g.limiters.Close()
		return nil, err
	}
	g.engine = engine
	g.state.Store(int32(StateStopped))

	return g, nil
}

func (g *Gateway) buildClients() error {
	cbMetrics := circuitbreaker.NewMetrics(MetricsNamespace)
	if err := g.metrics.RegisterCollector(cbMetrics); err != nil {
		return fmt.Errorf("register breaker metrics: %w", err)
	}
	pxMetrics := proxy.NewMetrics(MetricsNamespace)
	if err := g.metrics.RegisterCollector(pxMetrics); err != nil {
		return fmt.Errorf("register downstream metrics: %w", err)
	}

	breakerOpts := append([]circuitbreaker.Option{circuitbreaker.WithMetrics(cbMetrics)}, g.breakerOpts...)
	g.breakers = circuitbreaker.NewRegistry(nil, g.logger, breakerOpts...)
	g.clients = make(map[string]*proxy.Client)

	services := g.config.Services.All()
	for _, name := range g.routes.Services() {
		svc, ok := services[name]
		if !ok {
			return fmt.Errorf("route table references unknown service %q", name)
		}

		b := g.breakers.GetOrCreateWithConfig(name,
			breakerConfig(g.config.BreakerFor(name)),
			circuitbreaker.WithDisplayName(svc.DisplayName),
		)
		client, err := proxy.NewClient(name, svc.URL, b,
			proxy.WithLogger(g.logger),
			proxy.WithMetrics(pxMetrics),
			proxy.WithHTTPClient(g.httpClient),
			proxy.WithTracer(g.tracer),
		)
		if err != nil {
			return err
		}
		g.clients[name] = client
	}
	return nil
}

func breakerConfig(c config.CircuitBreakerConfig) *circuitbreaker.Config {
	return circuitbreaker.DefaultConfig().
		WithCallTimeout(c.CallTimeout.Duration()).
		WithErrorThresholdPercentage(c.ErrorThresholdPercentage).
		WithResetTimeout(c.ResetTimeout.Duration()).
		WithMinRequests(c.MinRequests).
		WithRollingWindow(c.RollingWindow.Duration(), c.RollingBuckets)
}

func (g *Gateway) applyLimits(rl config.RateLimitConfig) error {
	for _, class := range []string{config.ClassAuth, config.ClassAPI} {
		l, _ := rl.Class(class)
		err := g.limiters.Apply(class, ratelimit.Config{
			Algorithm: ratelimit.Algorithm(l.Algorithm),
			Limit: ratelimit.Limit{
				Requests: l.Requests,
				Window:   l.Window.Duration(),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Start binds the listener and starts observing breaker events.
func (g *Gateway) Start(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("gateway is not in stopped state")
	}

	g.logger.Info("starting gateway",
		observability.Int("routes", len(g.routes.Routes())),
		observability.Any("services", g.routes.Services()),
	)

	listener := NewListener(g.config.Server, g.engine, WithListenerLogger(g.logger))
	if err := listener.Start(ctx); err != nil {
		g.state.Store(int32(StateStopped))
		return err
	}

	g.mu.Lock()
	g.listener = listener
	g.stopEvents = g.observeBreakers()
	g.mu.Unlock()

	g.startTime = time.Now()
	g.state.Store(int32(StateRunning))

	g.logger.Info("gateway started", observability.String("address", listener.Addr()))
	return nil
}

// Stop drains in-flight requests. Without a deadline on ctx the configured
// shutdown timeout applies.
func (g *Gateway) Stop(ctx context.Context) error {
	if !g.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("gateway is not running")
	}

	g.logger.Info("stopping gateway")

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Server.ShutdownTimeout.Duration())
		defer cancel()
	}

	g.mu.Lock()
	listener, stopEvents := g.listener, g.stopEvents
	g.listener, g.stopEvents = nil, nil
	g.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Stop(ctx)
	}
	if stopEvents != nil {
		stopEvents()
	}

	g.state.Store(int32(StateStopped))
	g.logger.Info("gateway stopped")
	return err
}

// Close releases the rate limiters. Call it once the gateway is stopped.
func (g *Gateway) Close() error {
	return g.limiters.Close()
}

// Reload applies the live-reloadable parts of cfg: the log level and the rate
// limits. Other changes are logged and take effect on restart.
func (g *Gateway) Reload(cfg *config.GatewayConfig) error {
	if err := config.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if setter, ok := g.logger.(observability.LevelSetter); ok {
		if err := setter.SetLevel(cfg.Observability.Logging.Level); err != nil {
			return fmt.Errorf("log level: %w", err)
		}
	}
	if err := g.applyLimits(cfg.RateLimit); err != nil {
		return err
	}

	if pending := restartRequired(g.config, cfg); len(pending) > 0 {
		g.logger.Warn("configuration changes require a restart",
			observability.Any("sections", pending),
		)
	}

	g.config = cfg
	g.logger.Info("gateway configuration reloaded")
	return nil
}

func restartRequired(old, next *config.GatewayConfig) []string {
	var sections []string
	if !reflect.DeepEqual(old.Server, next.Server) {
		sections = append(sections, "server")
	}
	if !reflect.DeepEqual(old.Auth, next.Auth) {
		sections = append(sections, "auth")
	}
	if !reflect.DeepEqual(old.CircuitBreaker, next.CircuitBreaker) {
		sections = append(sections, "circuitBreaker")
	}
	if !reflect.DeepEqual(old.Services, next.Services) {
		sections = append(sections, "services")
	}
	if !reflect.DeepEqual(old.CORS, next.CORS) {
		sections = append(sections, "cors")
	}
	if !reflect.DeepEqual(old.Security, next.Security) {
		sections = append(sections, "security")
	}
	if !reflect.DeepEqual(old.Observability.Metrics, next.Observability.Metrics) ||
		!reflect.DeepEqual(old.Observability.Tracing, next.Observability.Tracing) {
		sections = append(sections, "observability")
	}
	return sections
}

// State returns the current gateway state.
func (g *Gateway) State() State {
	return State(g.state.Load())
}

// IsRunning returns true if the gateway is running.
func (g *Gateway) IsRunning() bool {
	return g.State() == StateRunning
}

// Uptime returns the gateway uptime.
func (g *Gateway) Uptime() time.Duration {
	if !g.IsRunning() {
		return 0
	}
	return time.Since(g.startTime)
}

// Config returns the current configuration.
func (g *Gateway) Config() *config.GatewayConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.config
}

// Addr returns the bound listener address, or "" when not running.
func (g *Gateway) Addr() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr()
}

// Handler returns the request pipeline.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Breakers returns the per-service breaker registry.
func (g *Gateway) Breakers() *circuitbreaker.Registry {
	return g.breakers
}

// Limiters returns the rate limiter set.
func (g *Gateway) Limiters() *ratelimit.Set {
	return g.limiters
}
