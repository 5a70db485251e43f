package acts

import (
	"context"
	"time"
)

// RunTicks drives timeout firing on Runtime.TickInterval until ctx is
// cancelled or Stop is called (spec.md §4.6 "a tick source fires timeout
// hooks whose deadline has passed"). It runs in its own goroutine,
// separate from the Scheduler's dispatch loop; it only ever enqueues
// SignalTimeout signals, never mutates a TaskTree directly, keeping the
// "only the scheduler worker mutates it" invariant intact (spec.md §9).
func (s *Scheduler) RunTicks(ctx context.Context) {
	ticker := time.NewTicker(s.rt.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanTimeouts(ctx)
		}
	}
}

func (s *Scheduler) scanTimeouts(ctx context.Context) {
	now := nowFunc()
	for _, proc := range s.rt.Cache.All() {
		for _, t := range proc.Tasks.All() {
			if t.State != Running && t.State != Interrupted {
				continue
			}
			if t.Hooks.IsCatchProcessed {
				continue // spec.md §9: catch pre-empts any further timeout firing
			}
			node, ok := proc.Tree.Tree.Node(t.NodeRef)
			if !ok {
				continue
			}
			for i, to := range node.Timeout {
				key := timeoutKey(to)
				if t.Hooks.FiredTimeouts[key] {
					continue
				}
				deadline, ok := t.Hooks.TimeoutDeadlines[key]
				if !ok || now.Before(deadline) {
					continue
				}
				t.Hooks.FiredTimeouts[key] = true
				s.rt.Metrics().IncTimeouts(node.ID)
				_ = s.rt.Queue.Send(ctx, Signal{
					Kind: SignalTimeoutFire, PID: proc.ID, TID: t.ID,
					NodeID: node.ID, RetriesLeft: i, // RetriesLeft reused to carry the timeout index
				})
			}
		}
	}
}

// dispatchTimeoutFire runs the Then handlers for a fired timeout, following
// the same pre-empt-over-terminal-failure shape as failTask's catch
// handling (spec.md §4.6).
func (s *Scheduler) dispatchTimeoutFire(ctx context.Context, sig Signal) error {
	proc, err := s.loadProcess(ctx, sig.PID)
	if err != nil {
		return err
	}
	t, ok := proc.Tasks.Get(sig.TID)
	if !ok || t.IsCompleted() || t.Hooks.IsCatchProcessed {
		return nil
	}
	node, ok := proc.Tree.Tree.Node(sig.NodeID)
	if !ok {
		return nil
	}
	idx := sig.RetriesLeft
	if idx < 0 || idx >= len(node.TimeoutNodes) {
		return nil
	}
	t.Hooks.IsCatchProcessed = true // reuse the same guard: at most one recovery handler per task
	cctx, err := newContext(ctx, s.rt, proc, t)
	if err != nil {
		return err
	}
	return s.runHookThen(cctx, node.TimeoutNodes[idx])
}
