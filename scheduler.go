package acts

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/acts-go/emit"
)

// Scheduler is the single-threaded consumer draining the Queue. For each
// signal it constructs a fresh Context, dispatches the task through exactly
// one lifecycle transition, and enqueues follow-ups (spec.md §4.3).
//
// The loop never recurses into another task directly; it always enqueues.
// This keeps execution fully replayable and matches the teacher's
// preference (graph/scheduler.go's Frontier) for an explicit work queue
// over chained callbacks (spec.md §9 "Signals not futures").
type Scheduler struct {
	rt *Runtime

	// chainNext records, for a task spawned as part of a sequential chain
	// (Workflow step chaining, catch/timeout Then handlers), the node to
	// spawn next under the same parent once this task terminates. Read and
	// written only from the scheduler's own goroutine (lifecycle.go).
	chainNext map[string]*Node

	// models is the in-memory deploy registry consulted by acts.core.subflow
	// to resolve a model id to its compiled Model (spec.md §4.8, §6 deploy).
	models map[string]*Model

	// subflowParents links a child process id back to the parent task that
	// started it, so the parent can be re-enqueued and receive the child's
	// outputs once the child's root task terminates (spec.md §4.8).
	subflowParents map[string]subflowLink
}

type subflowLink struct {
	pid string
	tid string
}

// NewScheduler builds a Scheduler over rt.
func NewScheduler(rt *Runtime) *Scheduler {
	return &Scheduler{
		rt:             rt,
		chainNext:      make(map[string]*Node),
		models:         make(map[string]*Model),
		subflowParents: make(map[string]subflowLink),
	}
}

// StartProcess wires proc's TaskTree to this scheduler's lifecycle hook and
// enqueues its root task, then emits the process-start event (spec.md §4.2).
func (s *Scheduler) StartProcess(ctx context.Context, proc *Process) error {
	proc.Tasks.OnTransition(func(t *Task) { s.onTaskTransition(proc, t) })
	s.rt.Cache.Put(proc)
	s.emitProcStart(ctx, proc)
	root := proc.RootTask()
	return s.rt.Queue.Send(ctx, TaskSignal(proc.ID, root.ID))
}

// Run drains the queue until a Terminal signal is received or ctx is
// cancelled. It is the only goroutine that mutates any process's task tree
// (spec.md §5 "only the scheduler worker mutates it").
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		sig, err := s.rt.Queue.Recv(ctx)
		if err != nil {
			return err
		}
		if sig.Kind == SignalTerminal {
			return nil
		}
		s.rt.Metrics().SetQueueDepth(s.rt.Queue.Len())
		if sig.Kind == SignalRetry {
			if err := s.dispatchRetry(ctx, sig); err != nil {
				s.emitDispatchError(sig, err)
			}
			continue
		}
		if sig.Kind == SignalTimeoutFire {
			if err := s.dispatchTimeoutFire(ctx, sig); err != nil {
				s.emitDispatchError(sig, err)
			}
			continue
		}
		if err := s.dispatch(ctx, sig); err != nil {
			// Dispatch errors that are not task-level failures (e.g. process
			// not found) are logged via the emitter rather than propagated,
			// so one bad signal cannot stop the worker.
			s.emitDispatchError(sig, err)
		}
	}
}

func (s *Scheduler) emitDispatchError(sig Signal, err error) {
	if s.rt.Emitter == nil {
		return
	}
	s.rt.Emitter.Emit(emit.Event{
		Kind: emit.Error, PID: sig.PID, TID: sig.TID,
		Err: err.Error(), Time: nowFunc(),
	})
}

// loadProcess resolves pid via the cache, falling back to the store on a
// cold miss (spec.md §2 component 9).
func (s *Scheduler) loadProcess(ctx context.Context, pid string) (*Process, error) {
	if p, ok := s.rt.Cache.Get(pid); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: process %s not cached and cold load is not wired", ErrNotFound, pid)
}

// dispatch builds a Context for sig's task and drives exactly one lifecycle
// transition (spec.md §4.3).
func (s *Scheduler) dispatch(ctx context.Context, sig Signal) error {
	proc, err := s.loadProcess(ctx, sig.PID)
	if err != nil {
		return err
	}
	task, ok := proc.Tasks.Get(sig.TID)
	if !ok {
		return fmt.Errorf("%w: task %s", ErrNotFound, sig.TID)
	}

	cctx, err := newContext(ctx, s.rt, proc, task)
	if err != nil {
		return err
	}

	switch task.State {
	case Pending:
		return s.stepPending(cctx)
	case Ready:
		return s.stepReady(cctx)
	case Running, Interrupted:
		return s.stepRunning(cctx)
	default:
		// Interrupted and terminal states are only advanced by external
		// actions (irq.go) or are already done; a stray signal is a no-op.
		return nil
	}
}

// enqueue sends a Task signal for t, logging (not failing the caller) if the
// queue send is cancelled — callers that need to guarantee delivery should
// check the returned error themselves.
func (s *Scheduler) enqueue(ctx context.Context, t *Task) {
	_ = s.rt.Queue.Send(ctx, TaskSignal(t.PID, t.ID))
}

// stepPending evaluates gating: needs must all be completed with a
// non-fail terminal state, and `if` must be truthy, before the task may
// progress to Ready (spec.md §4.4 "Gating & progress").
func (s *Scheduler) stepPending(cctx *Context) error {
	t, node, proc := cctx.Task, cctx.Node, cctx.Proc

	for _, need := range node.Needs {
		sib, ok := s.siblingTask(proc, t.Prev, need)
		if !ok || !sib.IsCompleted() {
			return nil // still waiting; re-dispatched when the need completes
		}
		if sib.State == Failed || sib.State == Aborted {
			return s.skipTask(cctx)
		}
	}

	ok, err := cctx.EvalBool(node.If)
	if err != nil {
		return s.failTask(cctx, Wrap(ErrScript, "", err))
	}
	if !ok {
		return s.skipTask(cctx)
	}

	if err := t.SetState(Ready); err != nil {
		return err
	}
	s.enqueue(cctx.Go, t)
	return nil
}

// siblingTask finds the task bound to nodeID under parent tid.
func (s *Scheduler) siblingTask(proc *Process, parentTID, nodeID string) (*Task, bool) {
	for _, cid := range proc.Tasks.Children(parentTID) {
		c, ok := proc.Tasks.Get(cid)
		if ok && c.NodeRef == nodeID {
			return c, true
		}
	}
	return nil, false
}

// skipTask transitions t to Skipped and runs the standard terminal
// bookkeeping (messaging + parent notification).
func (s *Scheduler) skipTask(cctx *Context) error {
	if err := cctx.Task.SetState(Skipped); err != nil {
		return err
	}
	return nil
}

// failTask resolves a catch for err before the task is marked terminal: a
// matching catch pre-empts Failed entirely and the task instead schedules
// the catch's Then acts (spec.md §4.6, §9 "catch pre-empts timeout and
// terminal failure"). Absent a catch, the task transitions to Failed and
// failure propagates to the parent's review phase as usual.
func (s *Scheduler) failTask(cctx *Context, err *Error) error {
	t, node := cctx.Task, cctx.Node
	if !t.Hooks.IsCatchProcessed {
		if idx, catch := matchCatch(node.Catches, err); catch != nil {
			t.Hooks.IsCatchProcessed = true
			t.Err = err
			s.rt.Metrics().IncCatches(catchKey(catch))
			return s.runHookThen(cctx, node.CatchNodes[idx])
		}
	}
	if node.Retry != nil && t.Hooks.RetriesLeft > 0 {
		return s.retryTask(cctx, err)
	}
	return t.Fail(err)
}

// stepReady runs the one-shot init phase then the run phase, advancing the
// task to Running (spec.md §4.4 "init" and "run").
func (s *Scheduler) stepReady(cctx *Context) error {
	if err := cctx.Task.SetState(Running); err != nil {
		return err
	}
	if err := s.initPhase(cctx); err != nil {
		return s.failTask(cctx, asEngineError(err))
	}
	return s.runPhase(cctx)
}

// stepRunning is re-entered when a child of a container task completes, or
// when a leaf act's follow-up work (iteration, deferred completion) needs
// attention (spec.md §4.4 "next", "review").
func (s *Scheduler) stepRunning(cctx *Context) error {
	node := cctx.Node
	if node.Kind == KindAct && cctx.Task.Scope != "iter" {
		if a, ok := node.Content.(*Act); ok && a.For != nil {
			return s.nextIterationPhase(cctx)
		}
	}
	hasChildren := len(cctx.Proc.Tasks.Children(cctx.Task.ID)) > 0
	if isContainer(node, cctx.Task.Scope) || hasChildren {
		if cctx.Proc.Tasks.AllChildrenTerminal(cctx.Task.ID) {
			return s.reviewPhaseOrRecover(cctx)
		}
		return nil // still waiting on children
	}
	return nil // Interrupted leaf with no hook children: still awaiting an external action
}

// reviewPhaseOrRecover routes a Running task whose children just all went
// terminal to either the normal container review, or catch-recovery review
// when this task's own failure was pre-empted by a catch (spec.md §4.6).
func (s *Scheduler) reviewPhaseOrRecover(cctx *Context) error {
	if cctx.Task.Hooks.IsCatchProcessed {
		return s.reviewCatchChildren(cctx)
	}
	return s.reviewPhase(cctx)
}

// reviewCatchChildren finishes catch (or timeout) handling: the task
// recovers to Completed once its catch/timeout Then acts all succeed, or
// fails for good if any of them fail (spec.md §4.6 "parent marked
// recovered").
func (s *Scheduler) reviewCatchChildren(cctx *Context) error {
	t := cctx.Task
	for _, cid := range cctx.Proc.Tasks.Children(t.ID) {
		c, ok := cctx.Proc.Tasks.Get(cid)
		if !ok {
			continue
		}
		for k, v := range c.Data {
			t.Data[k] = v
		}
		if c.State == Failed || c.State == Aborted {
			return t.Fail(NewError(ErrRuntime, "", "catch handler failed"))
		}
	}
	return t.SetState(Completed)
}

// isContainer reports whether node schedules children rather than
// dispatching a single package handler (spec.md §4.4 per-kind behavior).
// scope is the task's Scope label: an individual iteration-item task
// ("iter") is always a leaf, even though its node carries a For clause.
func isContainer(node *Node, scope string) bool {
	switch node.Kind {
	case KindWorkflow, KindStep, KindBranch:
		return true
	case KindAct:
		if scope == "iter" {
			return false
		}
		a, _ := node.Content.(*Act)
		if a == nil {
			return false
		}
		return isBuiltinControlFlow(a.Uses) || a.For != nil
	}
	return false
}

// initPhase performs one-shot preparation before any child scheduling
// (spec.md §4.4 "init").
func (s *Scheduler) initPhase(cctx *Context) error {
	node := cctx.Node
	registerHooks(cctx.Task, node)

	if node.Kind == KindWorkflow {
		for k, v := range cctx.Proc.Tree.Workflow.Env {
			if _, exists := cctx.Proc.Env[k]; !exists {
				cctx.Proc.Env[k] = v
			}
		}
		for _, setup := range cctx.Proc.Tree.Workflow.Setup {
			if err := s.runSetupAct(cctx, setup); err != nil {
				return err
			}
		}
	}

	if node.Kind == KindAct && cctx.Task.Scope != "iter" {
		if a, ok := node.Content.(*Act); ok && a.For != nil {
			return s.initIteration(cctx, a)
		}
	}
	return nil
}

// runSetupAct executes a Workflow setup act synchronously, in-process,
// without going through the queue (spec.md §4.4 "runs setup acts
// synchronously").
func (s *Scheduler) runSetupAct(cctx *Context, a Act) error {
	h, err := s.rt.Registry.Lookup(a.Uses)
	if err != nil {
		return err
	}
	res := h.Call(cctx.Go, cctx, a.Inputs)
	if res.Kind == ActFail {
		return res.Err
	}
	cctx.Merge(res.Outputs)
	return nil
}

// runPhase dispatches work for the current task (spec.md §4.4 "run").
func (s *Scheduler) runPhase(cctx *Context) error {
	node := cctx.Node

	if node.Kind == KindAct {
		if a, ok := node.Content.(*Act); ok {
			if a.For != nil && cctx.Task.Scope != "iter" {
				return s.runIteration(cctx, a)
			}
			if isBuiltinControlFlow(a.Uses) {
				return s.runContainer(cctx, a.Uses)
			}
			if a.Uses == UsesSubflow {
				return s.runSubflow(cctx, a)
			}
			return s.dispatchAct(cctx, a)
		}
	}

	// Workflow: schedule the first Step child; Step/Branch: schedule all
	// direct children at once (spec.md §4.4 Workflow/Step/per-kind; §4.4
	// Parallel/Sequence/Block).
	if node.Kind == KindWorkflow {
		return s.runContainer(cctx, UsesSequence)
	}
	return s.runContainer(cctx, UsesParallel)
}

// runContainer creates child tasks for node's children and schedules them
// per mode: UsesSequence schedules only the first child, chaining through
// Node.Next on completion (onTaskTerminal); UsesParallel/UsesBlock schedule
// every child at once (spec.md §4.4).
func (s *Scheduler) runContainer(cctx *Context, mode string) error {
	node := cctx.Node
	if len(node.Children) == 0 {
		return s.reviewPhase(cctx)
	}
	switch mode {
	case UsesSequence:
		t := s.spawnChainChild(cctx.Proc, cctx.Task.ID, node.Children[0])
		s.enqueue(cctx.Go, t)
	default: // UsesParallel, UsesBlock
		selected := selectChildren(cctx, node.Children)
		for _, c := range selected {
			s.spawnChild(cctx, c)
		}
		for _, c := range node.Children {
			if !contains(selected, c) {
				s.spawnSkippedChild(cctx, c)
			}
		}
	}
	return nil
}

// selectChildren applies branch-exclusivity (spec.md §4.4 "Step": exactly
// one non-else branch whose if yields truthy is selected by document order;
// otherwise the else branch if present) while leaving non-branch children
// (acts) untouched.
func selectChildren(cctx *Context, children []*Node) []*Node {
	var acts []*Node
	var branches []*Node
	for _, c := range children {
		if c.Kind == KindBranch {
			branches = append(branches, c)
		} else {
			acts = append(acts, c)
		}
	}
	if len(branches) == 0 {
		return children
	}
	var elseBranch *Node
	var selected *Node
	for _, b := range branches {
		if b.Else {
			elseBranch = b
			continue
		}
		ok, err := cctx.EvalBool(b.If)
		if err == nil && ok {
			selected = b
			break
		}
	}
	out := append([]*Node{}, acts...)
	if selected != nil {
		out = append(out, selected)
	} else if elseBranch != nil {
		out = append(out, elseBranch)
	}
	return out
}

func contains(list []*Node, n *Node) bool {
	for _, x := range list {
		if x == n {
			return true
		}
	}
	return false
}

// spawnChild creates a task for child under cctx.Task and enqueues it.
func (s *Scheduler) spawnChild(cctx *Context, child *Node) *Task {
	t := cctx.Proc.Tasks.NewTask(child.ID, cctx.Task.ID)
	s.enqueue(cctx.Go, t)
	return t
}

// spawnChainChild creates a task for child under parentTID and records its
// Node.Next (if any) so onTaskTransition continues the chain when this task
// terminates, instead of treating the parent's children as a parallel set
// (spec.md §6 Step.next chaining; §4.6 catch/timeout Then handlers).
func (s *Scheduler) spawnChainChild(proc *Process, parentTID string, node *Node) *Task {
	t := proc.Tasks.NewTask(node.ID, parentTID)
	if node.Next != nil {
		s.chainNext[t.ID] = node.Next
	}
	return t
}

// spawnSkippedChild creates a task for an unselected branch and marks it
// Skipped immediately (spec.md §4.4 "the step records a Skipped for
// unselected branches").
func (s *Scheduler) spawnSkippedChild(cctx *Context, child *Node) {
	t := cctx.Proc.Tasks.NewTask(child.ID, cctx.Task.ID)
	_ = t.SetState(Ready)
	_ = t.SetState(Running)
	_ = t.SetState(Skipped)
}

// reviewPhase decides a container task's terminal state once every child is
// terminal (spec.md §4.4 "review"): Completed if any non-failed child
// completed, Skipped if all children skipped, Failed if any child failed
// and no catch applied, Aborted if any child aborted.
func (s *Scheduler) reviewPhase(cctx *Context) error {
	t := cctx.Task
	children := cctx.Proc.Tasks.Children(t.ID)

	allSkipped := true
	anyFailed, anyAborted, anyCompleted := false, false, false
	for _, cid := range children {
		c, _ := cctx.Proc.Tasks.Get(cid)
		if c == nil {
			continue
		}
		switch c.State {
		case Failed:
			anyFailed = true
			allSkipped = false
		case Aborted:
			anyAborted = true
			allSkipped = false
		case Completed:
			anyCompleted = true
			allSkipped = false
		case Skipped:
		default:
			allSkipped = false
		}
		for k, v := range c.Data {
			t.Data[k] = v
		}
	}

	switch {
	case len(children) == 0:
		return t.SetState(Completed)
	case anyAborted:
		return t.SetState(Aborted)
	case anyFailed:
		return s.failTask(cctx, NewError(ErrRuntime, "", "child task failed"))
	case allSkipped:
		return t.SetState(Skipped)
	case anyCompleted:
		return t.SetState(Completed)
	default:
		return t.SetState(Completed)
	}
}

// dispatchAct resolves the package handler for a leaf act and applies its
// ActResult (spec.md §4.4 "Act (leaf)").
func (s *Scheduler) dispatchAct(cctx *Context, a *Act) error {
	h, err := s.rt.Registry.Lookup(a.Uses)
	if err != nil {
		return s.failTask(cctx, Wrap(ErrRuntime, "", err))
	}
	inputs := mergeInputs(cctx, a)
	res := h.Call(cctx.Go, cctx, inputs)
	return s.applyActResult(cctx, a, res)
}

func mergeInputs(cctx *Context, a *Act) map[string]any {
	out := make(map[string]any, len(a.Inputs))
	for k, v := range a.Inputs {
		out[k] = v
	}
	return out
}

// applyActResult applies the four possible handler outcomes (spec.md §4.4).
func (s *Scheduler) applyActResult(cctx *Context, a *Act, res ActResult) error {
	switch res.Kind {
	case ActComplete:
		cctx.Merge(res.Outputs)
		return cctx.Task.SetState(Completed)
	case ActInterrupt:
		if err := cctx.Task.SetState(Interrupted); err != nil {
			return err
		}
		if err := s.persistIRQMessage(cctx.Go, cctx.Proc, cctx.Task, a, res.Request); err != nil {
			return Wrap(ErrStore, "", err)
		}
		s.rt.Metrics().IncIRQ("created")
		return nil
	case ActFail:
		return s.failTask(cctx, res.Err)
	case ActDefer:
		return nil // handler already enqueued its own follow-up signals
	default:
		return s.failTask(cctx, NewError(ErrRuntime, "", "unknown act result kind"))
	}
}

func asEngineError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(ErrRuntime, "", err)
}
