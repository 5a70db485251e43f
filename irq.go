package acts

import "context"

// resolveIRQ loads pid/tid, checks the task is Interrupted and durably
// confirms uid (when the message carries one), and builds a fresh Context
// for fn to apply the caller's resolution (spec.md §4.7). Durability always
// happens before the state transition so a crash mid-action cannot lose
// the external caller's intent (spec.md §4.9 "durable-before-emit").
func (s *Scheduler) resolveIRQ(ctx context.Context, pid, tid, uid string, fn func(*Context, Message) error) error {
	proc, err := s.loadProcess(ctx, pid)
	if err != nil {
		return err
	}
	t, ok := proc.Tasks.Get(tid)
	if !ok {
		return ErrNotFound
	}
	if t.State != Interrupted {
		return NewError(ErrAction, "", "task is not interrupted")
	}
	var msg Message
	if s.rt.Store != nil {
		msg, err = s.rt.Store.LoadMessageByTask(ctx, pid, tid)
		if err != nil {
			return Wrap(ErrStore, "", err)
		}
		if msg.UID != "" && uid != "" && msg.UID != uid {
			return ErrWrongUID
		}
	}
	cctx, err := newContext(ctx, s.rt, proc, t)
	if err != nil {
		return err
	}
	return fn(cctx, msg)
}

func (s *Scheduler) saveMessage(ctx context.Context, msg Message) error {
	if s.rt.Store == nil {
		return nil
	}
	return s.rt.Store.SaveMessage(ctx, msg)
}

// CompleteAction resolves an Interrupted task successfully (spec.md §4.7 "complete").
func (s *Scheduler) CompleteAction(ctx context.Context, pid, tid, uid string, outputs map[string]any) error {
	return s.resolveIRQ(ctx, pid, tid, uid, func(cctx *Context, msg Message) error {
		msg.State, msg.Outputs, msg.Updated = MsgCompleted, outputs, nowFunc()
		if err := s.saveMessage(ctx, msg); err != nil {
			return err
		}
		cctx.Merge(outputs)
		s.rt.Metrics().IncIRQ("complete")
		return cctx.Task.SetState(Completed)
	})
}

// ErrorAction resolves an Interrupted task as failed, entering catch
// resolution like any other failure (spec.md §4.7 "error").
func (s *Scheduler) ErrorAction(ctx context.Context, pid, tid, uid, errKey, errMsg string) error {
	return s.resolveIRQ(ctx, pid, tid, uid, func(cctx *Context, msg Message) error {
		msg.State, msg.Updated = MsgError, nowFunc()
		if err := s.saveMessage(ctx, msg); err != nil {
			return err
		}
		s.rt.Metrics().IncIRQ("error")
		return s.failTask(cctx, NewError(ErrAction, errKey, errMsg))
	})
}

// CancelAction aborts the Interrupted task's whole subtree (spec.md §4.7 "cancel").
func (s *Scheduler) CancelAction(ctx context.Context, pid, tid, uid string) error {
	return s.resolveIRQ(ctx, pid, tid, uid, func(cctx *Context, msg Message) error {
		msg.State, msg.Updated = MsgCancelled, nowFunc()
		if err := s.saveMessage(ctx, msg); err != nil {
			return err
		}
		s.rt.Metrics().IncIRQ("cancel")
		cctx.Proc.Tasks.AbortSubtree(cctx.Task.ID)
		return nil
	})
}

// SkipAction marks the Interrupted task Skipped without running it (spec.md §4.7 "skip").
func (s *Scheduler) SkipAction(ctx context.Context, pid, tid, uid string) error {
	return s.resolveIRQ(ctx, pid, tid, uid, func(cctx *Context, msg Message) error {
		msg.State, msg.Updated = MsgCancelled, nowFunc()
		if err := s.saveMessage(ctx, msg); err != nil {
			return err
		}
		s.rt.Metrics().IncIRQ("skip")
		return cctx.Task.SetState(Skipped)
	})
}

// AckAction records receipt of an Interrupted task's message without
// resolving the task itself (spec.md §4.7 "ack").
func (s *Scheduler) AckAction(ctx context.Context, pid, tid, uid string) error {
	return s.resolveIRQ(ctx, pid, tid, uid, func(cctx *Context, msg Message) error {
		msg.State, msg.Updated = MsgAcked, nowFunc()
		s.rt.Metrics().IncIRQ("ack")
		return s.saveMessage(ctx, msg)
	})
}

// BackAction rewinds a step or branch task to Pending for re-evaluation.
// Unlike the other actions it targets a container, not an Interrupted leaf,
// and is not uid-gated: it is a workflow-author/operator recovery tool, not
// an external-system resolution (spec.md §9 Open Question (b): "back" is
// step-scope only). Per spec.md §4.7 "back" first aborts the current step
// subtree, then re-schedules: every existing child task is aborted before
// the container itself is rewound, so gating and the run phase start the
// step over from a clean slate rather than re-running alongside stale
// children.
func (s *Scheduler) BackAction(ctx context.Context, pid, tid string) error {
	proc, err := s.loadProcess(ctx, pid)
	if err != nil {
		return err
	}
	t, ok := proc.Tasks.Get(tid)
	if !ok {
		return ErrNotFound
	}
	node, ok := proc.Tree.Tree.Node(t.NodeRef)
	if !ok || (node.Kind != KindStep && node.Kind != KindBranch) {
		return NewError(ErrAction, "", "back only applies to a step or branch task")
	}
	if t.State.IsTerminal() && t.State != Completed && t.State != Skipped && t.State != Failed {
		return ErrAlreadyTerminal
	}
	for _, cid := range proc.Tasks.Children(t.ID) {
		proc.Tasks.AbortSubtree(cid)
	}
	t.Hooks = TaskHooks{}
	t.Err = nil
	t.Rewind()
	s.enqueue(ctx, t)
	return nil
}
