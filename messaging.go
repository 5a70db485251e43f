package acts

import (
	"context"

	"github.com/dshills/acts-go/emit"
)

// emitEvent converts a ProcEvent into an emit.Event and fans it out via the
// Runtime's Emitter, and persists Message records for IRQ acts so external
// systems can query the inbox (spec.md §4.9).
func (s *Scheduler) emitEvent(ctx context.Context, proc *Process, task *Task, kind emit.Kind) {
	ev := emit.Event{
		Kind:  kind,
		PID:   proc.ID,
		Time:  nowFunc(),
		State: task.State.String(),
	}
	if task != nil {
		ev.TID = task.ID
		if node, ok := proc.Tree.Tree.Node(task.NodeRef); ok {
			if a, ok := node.Content.(*Act); ok {
				ev.Uses = a.Uses
				ev.Key = a.Key
				ev.Tag = a.Tag
			}
		}
		ev.Inputs = task.Data
		if task.Err != nil {
			ev.Err = task.Err.Error()
		}
	}
	if s.rt.Emitter != nil {
		s.rt.Emitter.Emit(ev)
	}
}

// emitTaskMessage emits a "message" event for a task's state change, unless
// emission is disabled for the task (spec.md §4.9: "message (per task state
// change when emit_disabled is false)").
func (s *Scheduler) emitTaskMessage(ctx context.Context, proc *Process, task *Task) {
	if task.EmitOff {
		return
	}
	s.emitEvent(ctx, proc, task, emit.Message)
}

// emitProcStart emits the process-level "start" event (spec.md §4.9).
func (s *Scheduler) emitProcStart(ctx context.Context, proc *Process) {
	s.emitEvent(ctx, proc, proc.RootTask(), emit.Start)
}

// emitProcTerminal emits "complete" or "error" depending on the root task's
// terminal state (spec.md §4.9).
func (s *Scheduler) emitProcTerminal(ctx context.Context, proc *Process) {
	root := proc.RootTask()
	kind := emit.Complete
	if root.State == Failed || root.State == Aborted {
		kind = emit.Error
	}
	s.emitEvent(ctx, proc, root, kind)
}

// persistIRQMessage creates and persists a durable Message record for an
// IRQ act transitioning to Interrupted (spec.md §4.7, §4.9).
func (s *Scheduler) persistIRQMessage(ctx context.Context, proc *Process, task *Task, a *Act, request map[string]any) error {
	if s.rt.Store == nil {
		return nil
	}
	uid, _ := request["uid"].(string)
	msg := Message{
		ID:      NewID(),
		PID:     proc.ID,
		TID:     task.ID,
		UID:     uid,
		Key:     a.Key,
		Tag:     a.Tag,
		State:   MsgCreated,
		Inputs:  request,
		Created: nowFunc(),
		Updated: nowFunc(),
	}
	return s.rt.Store.SaveMessage(ctx, msg)
}
