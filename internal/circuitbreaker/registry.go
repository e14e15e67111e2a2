package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/vyrodovalexey/edgegw/internal/observability"
)

// Registry owns one breaker per downstream service for the life of the process.
// All breakers it creates publish to a shared event bus.
type Registry struct {
	breakers sync.Map
	config   *Config
	opts     []Option
	bus      *eventBus
	logger   observability.Logger
}

// NewRegistry creates a registry. config is the default for GetOrCreate;
// opts are applied to every breaker.
func NewRegistry(config *Config, logger observability.Logger, opts ...Option) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	r := &Registry{
		config: config,
		bus:    newEventBus(),
		logger: logger,
	}
	r.opts = append([]Option{WithLogger(logger)}, opts...)
	r.opts = append(r.opts, withSharedEventBus(r.bus))
	return r
}

// Get returns a circuit breaker by name, or nil if not found.
func (r *Registry) Get(name string) *Breaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*Breaker)
}

// GetOrCreate returns an existing breaker or creates one with the default config.
func (r *Registry) GetOrCreate(name string, opts ...Option) *Breaker {
	return r.GetOrCreateWithConfig(name, r.config, opts...)
}

// GetOrCreateWithConfig returns an existing breaker or creates one with config.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config, opts ...Option) *Breaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*Breaker)
	}

	all := make([]Option, 0, len(r.opts)+len(opts))
	all = append(all, r.opts...)
	all = append(all, opts...)
	cb := New(name, config, all...)

	// Store or get existing (handles race condition)
	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*Breaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("name", name),
		observability.Duration("reset_timeout", cb.cfg.ResetTimeout),
		observability.Float64("error_threshold_percentage", cb.cfg.ErrorThresholdPercentage),
	)

	return cb
}

// List returns all breakers sorted by name.
func (r *Registry) List() []*Breaker {
	var breakers []*Breaker
	r.breakers.Range(func(_, value any) bool {
		breakers = append(breakers, value.(*Breaker))
		return true
	})
	sort.Slice(breakers, func(i, j int) bool {
		return breakers[i].name < breakers[j].name
	})
	return breakers
}

// Stats returns statistics for every breaker keyed by name.
func (r *Registry) Stats() map[string]Stats {
	out := make(map[string]Stats)
	for _, b := range r.List() {
		out[b.name] = b.Stats()
	}
	return out
}

// Subscribe returns state changes from every breaker in the registry.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	return r.bus.subscribe(buffer)
}
