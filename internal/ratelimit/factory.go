package ratelimit

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Config holds configuration for creating a rate limiter.
type Config struct {
	Algorithm Algorithm
	Limit     Limit
}

// NewLimiter creates a limiter for the configured algorithm.
func NewLimiter(cfg Config, opts ...Option) (Limiter, error) {
	if cfg.Limit.Requests <= 0 {
		return nil, fmt.Errorf("rate limit requests must be positive, got %d", cfg.Limit.Requests)
	}
	if cfg.Limit.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", cfg.Limit.Window)
	}

	switch cfg.Algorithm {
	case AlgorithmFixedWindow, "":
		return NewFixedWindowLimiter(cfg.Limit, opts...), nil
	case AlgorithmTokenBucket:
		return NewTokenBucketLimiter(cfg.Limit, opts...), nil
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm: %s", cfg.Algorithm)
	}
}

// Set holds one independent limiter per route class.
type Set struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	configs  map[string]Config
	opts     []Option
	logger   *zap.Logger
}

// NewSet creates an empty set. opts are applied to every limiter it builds.
func NewSet(logger *zap.Logger, opts ...Option) *Set {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Set{
		limiters: make(map[string]Limiter),
		configs:  make(map[string]Config),
		opts:     append([]Option{WithLogger(logger)}, opts...),
		logger:   logger,
	}
}

// Apply installs or updates the limiter for class. A changed limit is
// applied in place; a changed algorithm replaces the limiter and drops its
// per-key state.
func (s *Set) Apply(class string, cfg Config) error {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmFixedWindow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.limiters[class]
	if ok && s.configs[class].Algorithm == cfg.Algorithm {
		if s.configs[class].Limit != cfg.Limit {
			current.Update(cfg.Limit)
			s.logger.Info("rate limit updated",
				zap.String("class", class),
				zap.Int("requests", cfg.Limit.Requests),
				zap.Duration("window", cfg.Limit.Window),
			)
		}
		s.configs[class] = cfg
		return nil
	}

	next, err := NewLimiter(cfg, s.opts...)
	if err != nil {
		return fmt.Errorf("rate limiter %s: %w", class, err)
	}
	s.limiters[class] = next
	s.configs[class] = cfg

	if ok {
		_ = current.Close()
		s.logger.Info("rate limiter replaced",
			zap.String("class", class),
			zap.String("algorithm", string(cfg.Algorithm)),
		)
	}
	return nil
}

// Get returns the limiter for class.
func (s *Set) Get(class string) (Limiter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.limiters[class]
	return l, ok
}

// Close closes every limiter.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for class, l := range s.limiters {
		_ = l.Close()
		delete(s.limiters, class)
	}
	return nil
}
