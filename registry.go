package acts

import "context"

// ActResultKind is the closed set of outcomes a package handler can return
// for a dispatched act (spec.md §4.4 "Act (leaf)").
type ActResultKind int

const (
	// ActComplete: task Completed with Outputs merged into the parent scope.
	ActComplete ActResultKind = iota
	// ActInterrupt: task Interrupted; a Message is created and emitted.
	ActInterrupt
	// ActFail: task Failed; catch resolution runs.
	ActFail
	// ActDefer: task stays Running; the handler already enqueued follow-ups.
	ActDefer
)

// ActResult is returned by a PackageHandler's Call.
type ActResult struct {
	Kind     ActResultKind
	Outputs  map[string]any
	Request  map[string]any // IRQ request payload, for ActInterrupt
	Err      *Error         // for ActFail
}

// Complete builds an ActResult of kind ActComplete.
func Complete(outputs map[string]any) ActResult {
	return ActResult{Kind: ActComplete, Outputs: outputs}
}

// Interrupt builds an ActResult of kind ActInterrupt.
func Interrupt(request map[string]any) ActResult {
	return ActResult{Kind: ActInterrupt, Request: request}
}

// Fail builds an ActResult of kind ActFail.
func Fail(err *Error) ActResult {
	return ActResult{Kind: ActFail, Err: err}
}

// Defer builds an ActResult of kind ActDefer.
func Defer() ActResult {
	return ActResult{Kind: ActDefer}
}

// PackageHandler is the interface a registered act implementation satisfies.
// It mirrors the teacher's tool.Tool contract (Name + Call over a plain
// map[string]interface{} payload) generalized to the act dispatch protocol.
type PackageHandler interface {
	// Uses returns the package identifier this handler answers to, e.g.
	// "acts.core.irq".
	Uses() string

	// Call executes the act for the given Context and inputs, returning one
	// of Complete/Interrupt/Fail/Defer (spec.md §4.4).
	Call(ctx context.Context, sctx *Context, inputs map[string]any) ActResult
}

// Registry resolves an act's uses string to a PackageHandler (spec.md §2
// component 12). It is process-wide and append-only after construction, to
// avoid cross-process data races on the shared registry (spec.md §9).
type Registry struct {
	handlers map[string]PackageHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]PackageHandler)}
}

// Register adds a handler, keyed by its Uses(). Returns an error if a
// handler is already registered for that uses string.
func (r *Registry) Register(h PackageHandler) error {
	if _, exists := r.handlers[h.Uses()]; exists {
		return NewError(ErrRuntime, "", "package already registered: "+h.Uses())
	}
	r.handlers[h.Uses()] = h
	return nil
}

// Resolves implements PackageResolver.
func (r *Registry) Resolves(uses string) bool {
	_, ok := r.handlers[uses]
	return ok
}

// Lookup returns the handler for uses, or ErrUnknownUses.
func (r *Registry) Lookup(uses string) (PackageHandler, error) {
	h, ok := r.handlers[uses]
	if !ok {
		return nil, ErrUnknownUses
	}
	return h, nil
}
