package acts

import "context"

// onTaskTransition is installed on every process's TaskTree and runs
// synchronously, in the scheduler's own goroutine, immediately after a
// task's state changes (spec.md §4.3 "producers are task state
// transitions"). Non-terminal transitions only emit a message; terminal
// transitions additionally continue a sequential chain (if this task was
// spawned as one) or wake the parent for its next dispatch.
func (s *Scheduler) onTaskTransition(proc *Process, t *Task) {
	ctx := context.Background()
	s.emitTaskMessage(ctx, proc, t)

	if !t.State.IsTerminal() {
		return
	}

	if next, chained := s.chainNext[t.ID]; chained {
		delete(s.chainNext, t.ID)
		if t.State != Aborted && next != nil {
			child := s.spawnChainChild(proc, t.Prev, next)
			s.enqueue(ctx, child)
			return
		}
	}

	if t.Prev == "" {
		s.emitProcTerminal(ctx, proc)
		s.persistTerminalProcess(ctx, proc)
		s.resolveSubflowParent(ctx, proc)
		return
	}

	parent, ok := proc.Tasks.Get(t.Prev)
	if !ok || parent.IsCompleted() {
		return
	}
	s.enqueue(ctx, parent)
}

// persistTerminalProcess saves the process record and evicts it from the
// cache once its root task reaches a terminal state (spec.md §3 Process
// "destroyed from cache when terminal and persisted").
func (s *Scheduler) persistTerminalProcess(ctx context.Context, proc *Process) {
	root := proc.RootTask()
	for k, v := range root.Data {
		proc.Outputs[k] = v
	}
	proc.End = nowFunc()
	proc.State = root.State
	if s.rt.Store != nil {
		_ = s.rt.Store.SaveProc(ctx, ProcRecord{
			ID: proc.ID, MID: proc.ModelID, State: proc.State,
			Env: proc.Env, Outputs: proc.Outputs, Start: proc.Start, End: proc.End,
		})
	}
	s.rt.Cache.Evict(proc.ID)
}
