package acts

import (
	"time"

	"github.com/dshills/acts-go/emit"
)

// Option is a functional option for NewEngineWithOptions, following the
// teacher's graph/options.go pattern: chainable, self-documenting,
// composes with the plain RuntimeConfig struct.
type Option func(*RuntimeConfig) error

// WithTickInterval sets the timeout-check tick interval (spec.md §4.6,
// minimum 1s — smaller values are clamped by NewRuntime).
func WithTickInterval(d time.Duration) Option {
	return func(cfg *RuntimeConfig) error {
		cfg.TickInterval = d
		return nil
	}
}

// WithQueueDepth sets the Signal queue's buffer size (spec.md §2
// component 5).
func WithQueueDepth(n int) Option {
	return func(cfg *RuntimeConfig) error {
		cfg.QueueDepth = n
		return nil
	}
}

// NewEngineWithOptions builds an Engine the way NewEngine does, applying
// opts over DefaultRuntimeConfig first.
func NewEngineWithOptions(st Store, sh ScriptHost, em emit.Emitter, opts ...Option) (*Engine, error) {
	cfg := DefaultRuntimeConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, Wrap(ErrConfig, "", err)
		}
	}
	return NewEngine(st, sh, em, cfg), nil
}
