package acts

import (
	"context"
	"time"

	"github.com/dshills/acts-go/emit"
)

// ScriptHost is the embedded script evaluation contract (spec.md §4.10).
// The concrete implementation lives in package script (goja-backed); it is
// referenced here only through this interface to keep the scheduler
// decoupled from the script engine's implementation.
type ScriptHost interface {
	// Eval evaluates script against the given scope and decodes the result
	// into a value of the requested shape. Scripts are non-fatal to the
	// scheduler: callers convert a non-nil error into Failed(Error::Script).
	Eval(ctx context.Context, script string, scope map[string]any) (any, error)
}

// Runtime is the process-wide singleton (spec.md §2 component 8): the
// cache of active processes, the store adapter, the script-host
// environment, the package registry, the emitter channel, and the tick
// source for timeouts.
type Runtime struct {
	Cache    *Cache
	Store    Store
	Script   ScriptHost
	Registry *Registry
	Emitter  emit.Emitter

	Queue *Queue

	// Vars holds user-registered script scope roots, e.g. "secrets", set
	// once at engine start and visible read-only to every script evaluation
	// (spec.md §4.10).
	Vars map[string]any

	TickInterval time.Duration // must be >= 1s, per spec.md §4.6
	done         chan struct{}

	metrics *Metrics

	// SomeRule backs by:some(rule) iteration (iterate.go); defaults to
	// RateRule when nil.
	SomeRule RateRule
}

// Metrics returns the Runtime's metrics collector. It is safe to call on
// every dispatch even when collection is disabled: a nil *Metrics absorbs
// every call (metrics.go).
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// SetMetrics installs m as the Runtime's metrics collector.
func (rt *Runtime) SetMetrics(m *Metrics) { rt.metrics = m }

// RuntimeConfig configures a new Runtime (mirrors the teacher's
// functional-options Options pattern, graph/options.go).
type RuntimeConfig struct {
	QueueDepth   int
	TickInterval time.Duration
}

// DefaultRuntimeConfig returns the engine's documented defaults.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{QueueDepth: 1024, TickInterval: time.Second}
}

// NewRuntime builds a Runtime with the given collaborators. cfg.TickInterval
// is clamped up to 1s if smaller, per spec.md §4.6 "configured interval >= 1s".
func NewRuntime(st Store, sh ScriptHost, reg *Registry, em emit.Emitter, cfg RuntimeConfig) *Runtime {
	if cfg.TickInterval < time.Second {
		cfg.TickInterval = time.Second
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1024
	}
	return &Runtime{
		Cache:        NewCache(),
		Store:        st,
		Script:       sh,
		Registry:     reg,
		Emitter:      em,
		Queue:        NewQueue(cfg.QueueDepth),
		TickInterval: cfg.TickInterval,
		done:         make(chan struct{}),
	}
}

// RateRule decides whether a by:some(...) iteration has succeeded enough of
// its completed children to finish, given the task's $rate scope variable
// (spec.md §9 Supplemented Features, grounded on the original's pluggable
// adapter/rule/rate.rs SomeRule trait — swappable so deployments can supply
// a stricter or domain-specific rule without forking iterate.go).
type RateRule interface {
	Satisfied(succeeded, total int, rate float64) bool
}

// PercentRateRule is the default RateRule: succeeded/total must be >= rate,
// matching adapter/rule/rate.rs's Rate.
type PercentRateRule struct{}

func (PercentRateRule) Satisfied(succeeded, total int, rate float64) bool {
	if total == 0 {
		return false
	}
	return float64(succeeded)/float64(total)+1e-9 >= rate
}

// Stop closes the tick source and the queue, causing the Scheduler loop to
// drain and exit.
func (rt *Runtime) Stop() {
	select {
	case <-rt.done:
	default:
		close(rt.done)
	}
	rt.Queue.Close()
}
