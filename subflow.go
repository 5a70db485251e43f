package acts

import "context"

// RegisterModel makes m resolvable by id for acts.core.subflow acts
// (spec.md §4.8). Deploy (start.go) calls this whenever a model is
// successfully compiled.
func (s *Scheduler) RegisterModel(m *Model) {
	s.models[m.Workflow.ID] = m
}

// runSubflow starts a child Process for the model named by inputs.mid and
// leaves the parent task Running, to be re-enqueued once the child's root
// task reaches a terminal state (spec.md §4.8). Unlike a leaf act, subflow
// invocation is handled natively by the scheduler rather than through the
// package registry, since it needs to start a whole second process.
func (s *Scheduler) runSubflow(cctx *Context, a *Act) error {
	mid, _ := a.Inputs["mid"].(string)
	if mid == "" {
		return s.failTask(cctx, NewError(ErrModel, "", "acts.core.subflow requires inputs.mid"))
	}
	model, ok := s.models[mid]
	if !ok {
		return s.failTask(cctx, NewError(ErrRuntime, "", "unknown subflow model: "+mid))
	}

	childEnv := make(map[string]any, len(a.Inputs))
	for k, v := range a.Inputs {
		if k == "mid" {
			continue
		}
		childEnv[k] = v
	}

	childPID := NewID()
	child := NewProcess(childPID, model, childEnv)
	s.subflowParents[childPID] = subflowLink{pid: cctx.Proc.ID, tid: cctx.Task.ID}
	return s.StartProcess(cctx.Go, child)
}

// resolveSubflowParent is called from onTaskTransition when a process's
// root task terminates: if the process was started as a subflow, its
// outputs are merged into the parent task and the parent is re-enqueued
// (spec.md §4.8 "outputs propagate back, parent re-enqueued").
func (s *Scheduler) resolveSubflowParent(ctx context.Context, child *Process) bool {
	link, ok := s.subflowParents[child.ID]
	if !ok {
		return false
	}
	delete(s.subflowParents, child.ID)

	parentProc, err := s.loadProcess(ctx, link.pid)
	if err != nil {
		return true
	}
	parent, ok := parentProc.Tasks.Get(link.tid)
	if !ok || parent.IsCompleted() {
		return true
	}

	root := child.RootTask()
	if root.State == Failed || root.State == Aborted {
		cctx, err := newContext(ctx, s.rt, parentProc, parent)
		if err == nil {
			_ = s.failTask(cctx, NewError(ErrRuntime, "subflow", "subflow process failed"))
		}
		return true
	}
	for k, v := range child.Outputs {
		parent.Data[k] = v
	}
	_ = parent.SetState(Completed)
	return true
}
