package emit

import (
	"context"
	"sync"
)

// BufferedEmitter stores events in memory, indexed by pid, for querying a
// process's message inbox or execution history without a Store round-trip
// (teacher's graph/emit/buffered.go, reindexed from runID to pid).
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // pid -> events
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.PID] = append(b.events[event.PID], event)
}

func (b *BufferedEmitter) EmitBatch(ctx context.Context, events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

func (b *BufferedEmitter) Flush(ctx context.Context) error { return nil }

// History returns a copy of all events recorded for pid, in emission order.
func (b *BufferedEmitter) History(pid string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, len(b.events[pid]))
	copy(out, b.events[pid])
	return out
}

// Clear removes buffered events for pid. Called with "" to clear everything.
func (b *BufferedEmitter) Clear(pid string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pid == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, pid)
}
