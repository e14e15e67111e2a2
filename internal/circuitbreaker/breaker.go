package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// cbTracer is the OTEL tracer used for circuit breaker operations.
var cbTracer = otel.Tracer("edgegw/circuitbreaker")

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed lets calls through.
	StateClosed State = iota

	// StateOpen rejects every call until ResetTimeout elapses.
	StateOpen

	// StateHalfOpen lets exactly one trial call through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

var (
	// ErrOpen is returned when the breaker is open and the call was not attempted.
	ErrOpen = errors.New("circuit breaker is open")

	// ErrTrialInFlight is returned in half-open state to every caller except the trial call.
	ErrTrialInFlight = errors.New("circuit breaker half-open trial already in flight")

	// ErrCallTimeout is returned when a call exceeds CallTimeout.
	ErrCallTimeout = errors.New("call timed out")

	errPanic = errors.New("call panicked")

	// errTrip never reaches a caller; it pushes gobreaker through ReadyToTrip.
	errTrip = errors.New("error threshold exceeded")
)

// IsRejection reports whether err means the breaker refused the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrTrialInFlight)
}

// Breaker guards calls to one downstream service.
//
// Calls run through gobreaker with MaxRequests=1, which gives the half-open
// single-flight trial call: gobreaker claims the trial slot under its own lock and
// rejects every concurrent caller with ErrTooManyRequests. gobreaker's
// counters are not used for tripping; ReadyToTrip consults the rolling window.
type Breaker struct {
	name        string
	displayName string
	cfg         Config

	cb     *gobreaker.CircuitBreaker
	window *rollingWindow
	clock  func() time.Time

	logger  observability.Logger
	metrics *Metrics
	bus     *eventBus   // this breaker only
	shared  []*eventBus // e.g. the owning registry's

	openedAt atomic.Int64 // unix nanos, 0 when not open
	totals   struct {
		fires, successes, failures, timeouts, rejects, fallbacks atomic.Uint64
	}
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics sets the Prometheus collector the breaker reports to.
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// WithDisplayName sets the name used in fallback messages.
func WithDisplayName(name string) Option {
	return func(b *Breaker) {
		if name != "" {
			b.displayName = name
		}
	}
}

// WithClock overrides the time source of the rolling window.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

func withSharedEventBus(bus *eventBus) Option {
	return func(b *Breaker) {
		b.shared = append(b.shared, bus)
	}
}

// New creates a breaker for the named service.
func New(name string, config *Config, opts ...Option) *Breaker {
	cfg := DefaultConfig()
	if config != nil {
		cfg = new(Config)
		*cfg = *config
	}
	cfg.Validate()

	b := &Breaker{
		name:        name,
		displayName: name,
		cfg:         *cfg,
		clock:       time.Now,
		logger:      observability.NopLogger(),
		bus:         newEventBus(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(observability.String("service", name))
	b.window = newRollingWindow(cfg.RollingWindow, cfg.RollingBuckets, b.clock)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:          name,
		MaxRequests:   1,
		Interval:      0,
		Timeout:       cfg.ResetTimeout,
		ReadyToTrip:   func(gobreaker.Counts) bool { return b.shouldTrip() },
		OnStateChange: b.onStateChange,
		IsSuccessful:  b.isSuccessful,
	})

	b.metrics.setState(name, StateClosed)
	return b
}

// Name returns the service identifier.
func (b *Breaker) Name() string {
	return b.name
}

// DisplayName returns the human readable service name.
func (b *Breaker) DisplayName() string {
	return b.displayName
}

// Config returns a copy of the effective configuration.
func (b *Breaker) Config() Config {
	return b.cfg
}

// State returns the current state. An open breaker whose reset timeout has
// passed reports half-open.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Execute runs fn under breaker protection.
//
// fn receives a context that is detached from ctx's cancellation and bounded
// by CallTimeout: a client that goes away does not abort the call, so its
// outcome is still counted. On timeout Execute returns ErrCallTimeout and
// the late result is discarded.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	b.tripIfExceeded()

	v, err := b.cb.Execute(func() (any, error) {
		return b.call(ctx, fn)
	})
	if !errors.Is(err, gobreaker.ErrOpenState) && !errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.tripIfExceeded()
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		b.reject()
		return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		b.reject()
		return nil, fmt.Errorf("%s: %w", b.name, ErrTrialInFlight)
	}
	return v, err
}

// Do is a typed wrapper around Breaker.Execute.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	v, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	t, _ := v.(T)
	return t, err
}

type callResult struct {
	value any
	err   error
}

func (b *Breaker) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	gen := b.window.generation()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.CallTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		v, err := fn(callCtx)
		done <- callResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		if callCtx.Err() != nil && errors.Is(res.err, context.DeadlineExceeded) {
			// fn gave up on our deadline; same as the timeout branch.
			return nil, b.timedOut(gen)
		}
		if b.isSuccessful(res.err) {
			b.record(gen, OutcomeSuccess)
		} else {
			b.record(gen, OutcomeFailure)
			b.logger.Debug("call failed", observability.Error(res.err))
		}
		return res.value, res.err
	case <-callCtx.Done():
		return nil, b.timedOut(gen)
	}
}

func (b *Breaker) timedOut(gen uint64) error {
	b.record(gen, OutcomeTimeout)
	b.logger.Warn("call timed out", observability.Duration("timeout", b.cfg.CallTimeout))
	return fmt.Errorf("%s: %w", b.name, ErrCallTimeout)
}

func (b *Breaker) isSuccessful(err error) bool {
	if errors.Is(err, ErrCallTimeout) || errors.Is(err, errPanic) || errors.Is(err, errTrip) {
		return false
	}
	if b.cfg.IsSuccessful != nil {
		return b.cfg.IsSuccessful(err)
	}
	return err == nil
}

func (b *Breaker) record(gen uint64, o Outcome) {
	b.window.record(gen, o)
	b.totals.fires.Add(1)
	switch o {
	case OutcomeSuccess:
		b.totals.successes.Add(1)
	case OutcomeTimeout:
		b.totals.timeouts.Add(1)
		b.totals.failures.Add(1)
	default:
		b.totals.failures.Add(1)
	}
	b.metrics.recordCall(b.name, o)
}

func (b *Breaker) reject() {
	b.window.recordAny(OutcomeReject)
	b.totals.rejects.Add(1)
	b.metrics.recordCall(b.name, OutcomeReject)
}

// tripIfExceeded opens a closed breaker whose window is already over the
// threshold. gobreaker only consults ReadyToTrip after a failure, so a window
// pushed over the threshold by a success would otherwise let the next call
// through. The synthetic failure is not recorded in the window or totals.
func (b *Breaker) tripIfExceeded() {
	if b.cb.State() != gobreaker.StateClosed || !b.shouldTrip() {
		return
	}
	_, _ = b.cb.Execute(func() (any, error) { return nil, errTrip })
}

// shouldTrip reports whether the rolling window is over the error threshold.
func (b *Breaker) shouldTrip() bool {
	c := b.window.snapshot()
	return c.Completed() >= uint64(b.cfg.MinRequests) &&
		c.ErrorPercentage() > b.cfg.ErrorThresholdPercentage
}

// onStateChange runs under gobreaker's lock and must not block.
func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	f, t := fromGobreaker(from), fromGobreaker(to)
	now := b.clock()
	counts := b.window.snapshot()

	switch t {
	case StateClosed:
		b.window.reset()
		b.openedAt.Store(0)
	case StateOpen:
		b.openedAt.Store(now.UnixNano())
	}

	fields := []observability.Field{
		observability.String("from", f.String()),
		observability.String("to", t.String()),
		observability.Float64("error_percentage", counts.ErrorPercentage()),
		observability.Int64("completed", int64(counts.Completed())), //nolint:gosec // counts fit in int64
	}
	if t == StateOpen {
		b.logger.Warn("circuit breaker opened", fields...)
	} else {
		b.logger.Info("circuit breaker state change", fields...)
	}

	b.metrics.setState(b.name, t)
	b.metrics.recordTransition(b.name, f, t)

	// Record an OTEL span event so the transition shows up in traces.
	_, span := cbTracer.Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", b.name),
		attribute.String("circuitbreaker.from", f.String()),
		attribute.String("circuitbreaker.to", t.String()),
	))
	span.End()

	ev := Event{
		Service: b.name,
		From:    f,
		To:      t,
		At:      now,
		Counts:  counts,
	}
	b.bus.publish(ev)
	for _, bus := range b.shared {
		bus.publish(ev)
	}
}

// Fallback records a degraded answer for cause and returns it. It never fails.
func (b *Breaker) Fallback(cause error) *Unavailable {
	b.window.recordFallback()
	b.totals.fallbacks.Add(1)
	b.metrics.recordFallback(b.name)

	b.logger.Debug("serving fallback", observability.Error(cause))

	return &Unavailable{
		Service: b.name,
		Message: b.displayName + " service temporarily unavailable",
		Cause:   cause,
	}
}

// Subscribe returns a channel of this breaker's state changes.
// Slow subscribers miss events rather than block the breaker. Call the
// returned function to unsubscribe.
func (b *Breaker) Subscribe(buffer int) (<-chan Event, func()) {
	return b.bus.subscribe(buffer)
}

// Stats is a point-in-time view of a breaker.
type Stats struct {
	State           State      `json:"state"`
	Rolling         Counts     `json:"rolling"`
	Totals          Counts     `json:"totals"`
	ErrorPercentage float64    `json:"errorPercentage"`
	OpenedAt        *time.Time `json:"openedAt,omitempty"`
}

// Stats returns the current statistics.
func (b *Breaker) Stats() Stats {
	rolling := b.window.snapshot()
	s := Stats{
		State:           b.State(),
		Rolling:         rolling,
		ErrorPercentage: rolling.ErrorPercentage(),
		Totals: Counts{
			Fires:     b.totals.fires.Load(),
			Successes: b.totals.successes.Load(),
			Failures:  b.totals.failures.Load(),
			Timeouts:  b.totals.timeouts.Load(),
			Rejects:   b.totals.rejects.Load(),
			Fallbacks: b.totals.fallbacks.Load(),
		},
	}
	if ns := b.openedAt.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.OpenedAt = &t
	}
	return s
}
