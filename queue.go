package acts

import "context"

// SignalKind distinguishes the two signal variants the scheduler consumes
// (spec.md §2 component 5).
type SignalKind int

const (
	SignalTask SignalKind = iota
	SignalTerminal
	// SignalRetry asks the scheduler to spawn a fresh task for NodeID under
	// ParentTID, continuing a backed-off retry (spec.md §4.6). It is kept
	// distinct from SignalTask because no Task exists yet to dispatch.
	SignalRetry
	// SignalTimeoutFire asks the scheduler to run a timeout's Then handlers
	// for TID, identified by NodeID + the timeout index carried in
	// RetriesLeft (spec.md §4.6).
	SignalTimeoutFire
)

// Signal is a schedulable unit of work. Producers are task state
// transitions, external actions, and timers; the single consumer is the
// Scheduler loop (spec.md §2 component 5, §4.3).
type Signal struct {
	Kind SignalKind
	PID  string
	TID  string

	// NodeID/ParentTID/RetriesLeft are only populated for SignalRetry.
	NodeID      string
	ParentTID   string
	RetriesLeft int
}

// TaskSignal builds a Signal that asks the scheduler to dispatch tid in pid.
func TaskSignal(pid, tid string) Signal {
	return Signal{Kind: SignalTask, PID: pid, TID: tid}
}

// TerminalSignal builds the Signal that drains the queue and stops the loop.
func TerminalSignal() Signal {
	return Signal{Kind: SignalTerminal}
}

// Queue is a bounded FIFO of Signals (spec.md §2 component 5). It is backed
// by a buffered channel: Send blocks once the channel is full, providing
// natural backpressure to producers, and Close causes pending and future
// Recv calls to drain then return ErrQueueClosed.
type Queue struct {
	ch     chan Signal
	closed chan struct{}
}

// NewQueue creates a Queue with the given bounded capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		ch:     make(chan Signal, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues sig, blocking if the queue is full until space frees up or
// ctx is cancelled or the queue is closed.
func (q *Queue) Send(ctx context.Context, sig Signal) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- sig:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until a Signal is available, ctx is cancelled, or the queue
// is closed and drained.
func (q *Queue) Recv(ctx context.Context) (Signal, error) {
	select {
	case sig, ok := <-q.ch:
		if !ok {
			return Signal{}, ErrQueueClosed
		}
		return sig, nil
	case <-ctx.Done():
		return Signal{}, ctx.Err()
	}
}

// Close stops further Sends and causes Recv to return ErrQueueClosed once
// buffered signals are drained. Safe to call once.
func (q *Queue) Close() {
	select {
	case <-q.closed:
		return
	default:
		close(q.closed)
		close(q.ch)
	}
}

// Len reports the number of signals currently buffered.
func (q *Queue) Len() int { return len(q.ch) }
