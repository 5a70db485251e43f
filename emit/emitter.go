package emit

import "context"

// Emitter receives and processes lifecycle events from process execution
// (spec.md §2 component 11).
//
// Implementations should be non-blocking and thread-safe: event delivery
// happens on the scheduler's single worker goroutine (spec.md §5), so a slow
// subscriber must buffer or hand off rather than stall the loop.
type Emitter interface {
	// Emit sends a single lifecycle event. Must not block or panic.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation. Returns an error
	// only on catastrophic/config failures; individual event failures
	// should be logged, not returned.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush ensures all buffered events are delivered. Safe to call
	// multiple times.
	Flush(ctx context.Context) error
}
