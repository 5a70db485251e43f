package acts

import "time"

// TaskState is the closed set of task lifecycle states (spec.md §3).
type TaskState int

const (
	Pending TaskState = iota
	Ready
	Running
	Interrupted
	Completed
	Skipped
	Failed
	Aborted
	Removed
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Interrupted:
		return "interrupted"
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	case Aborted:
		return "aborted"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the terminal states
// {Completed, Skipped, Failed, Aborted, Removed} (spec.md §3 invariants).
// Terminal states never transition further.
func (s TaskState) IsTerminal() bool {
	switch s {
	case Completed, Skipped, Failed, Aborted, Removed:
		return true
	default:
		return false
	}
}

// TaskHooks tracks registered timeout/catch runtime flags for a task
// (spec.md §3 Task.hooks, §4.6).
type TaskHooks struct {
	// IsCatchProcessed guards "at most one catch fires per failure".
	IsCatchProcessed bool
	// FiredTimeouts names timeout entries that have already fired, keyed by
	// "is_timeout_<name>" to prevent repeated firing (spec.md §4.6).
	FiredTimeouts map[string]bool
	// TimeoutDeadlines maps a timeout entry name to its absolute fire time,
	// registered at task init.
	TimeoutDeadlines map[string]time.Time
	// RetriesLeft is the remaining retry count for this task's node.
	RetriesLeft int
	// RetriesInit marks that RetriesLeft has already been seeded for this
	// task, so registerHooks can tell a freshly-spawned task (budget not
	// yet seeded) apart from a retried task whose budget has been legally
	// exhausted to 0 (spec.md §4.6 "up to times times, decrementing the
	// remaining count").
	RetriesInit bool
	// IterIndex/IterTotal track for-iteration progress (spec.md §4.5).
	IterIndex int
	IterTotal int
	IterItems []any
	IterBy    string
}

// Task is a mutable runtime node in a process's execution tree, bound 1:1
// to a Node. A node may spawn multiple tasks under iteration or retry
// (spec.md §3).
type Task struct {
	ID       string // tid, unique within the process
	PID      string
	NodeRef  string // Node.ID this task is bound to
	Prev     string // parent task id, "" for the root
	State    TaskState
	Data     map[string]any
	Scope    string // optional iteration/catch sub-scope label
	Start    time.Time
	End      time.Time
	Hooks    TaskHooks
	EmitOff  bool
	Err      *Error

	tree *TaskTree
}

// IsCompleted reports whether the task has reached any terminal state
// (spec.md §3: "A task is completed iff its state is in {Completed, Skipped,
// Failed, Aborted, Removed}").
func (t *Task) IsCompleted() bool { return t.State.IsTerminal() }

// transitions lists the allowed source states for each target state,
// enforcing spec.md §3's "terminal states never transition" invariant and
// the documented lifecycle Pending -> Ready -> Running -> terminal.
var transitions = map[TaskState][]TaskState{
	Ready:       {Pending},
	Running:     {Ready, Running, Interrupted}, // Running->Running allows re-entrant dispatch of next/review phases
	Interrupted: {Running},
	Completed:   {Running, Interrupted, Pending},
	Skipped:     {Pending, Running},
	Failed:      {Pending, Running, Interrupted},
	Aborted:     {Pending, Ready, Running, Interrupted},
	Removed:     {Pending, Ready, Running, Interrupted},
}

// SetState attempts the transition to next, returning ErrIllegalTransition if
// the task is already terminal or next is not reachable from the current
// state.
func (t *Task) SetState(next TaskState) error {
	if t.State.IsTerminal() {
		return ErrAlreadyTerminal
	}
	allowed := transitions[next]
	ok := false
	for _, from := range allowed {
		if from == t.State {
			ok = true
			break
		}
	}
	if !ok {
		return ErrIllegalTransition
	}
	t.State = next
	if next.IsTerminal() && t.End.IsZero() {
		t.End = nowFunc()
	}
	if t.tree != nil {
		t.tree.onTransition(t)
	}
	return nil
}

// Rewind forces the task back to Pending for re-evaluation, the one
// sanctioned exception to "terminal states never transition" (spec.md §4.7
// "back", §9 Open Question (b)). Unlike SetState it does not consult the
// transitions table or reject an already-terminal task — callers
// (BackAction) are responsible for aborting the task's subtree first — but
// it still clears End and runs the tree's transition hook, so messaging
// and parent wake-up fire exactly as they would for any other transition.
func (t *Task) Rewind() {
	t.State = Pending
	t.End = time.Time{}
	if t.tree != nil {
		t.tree.onTransition(t)
	}
}

// Fail transitions the task to Failed, recording err (spec.md §3 Failed(error)).
func (t *Task) Fail(err *Error) error {
	if e := t.SetState(Failed); e != nil {
		return e
	}
	t.Err = err
	return nil
}

// nowFunc is indirected for deterministic tests.
var nowFunc = time.Now

// TaskTree is the per-process mutable tree of Task instances. Tasks are
// stored in a flat arena keyed by tid with parent/children indices, not by
// cyclic owning references, per the design note on avoiding Process<->Task
// reference cycles.
type TaskTree struct {
	PID      string
	RootID   string
	byID     map[string]*Task
	children map[string][]string
	onChange func(*Task)
}

// NewTaskTree creates an empty arena for pid.
func NewTaskTree(pid string) *TaskTree {
	return &TaskTree{
		PID:      pid,
		byID:     make(map[string]*Task),
		children: make(map[string][]string),
	}
}

// OnTransition installs a callback invoked after every successful state
// transition of any task owned by this tree; the scheduler uses this hook
// to enqueue follow-up signals.
func (tt *TaskTree) OnTransition(fn func(*Task)) { tt.onChange = fn }

func (tt *TaskTree) onTransition(t *Task) {
	if tt.onChange != nil {
		tt.onChange(t)
	}
}

// NewTask allocates a fresh Task bound to nodeRef under parent tid (empty
// for the root) and registers it in the arena in Pending state.
func (tt *TaskTree) NewTask(nodeRef, parent string) *Task {
	t := &Task{
		ID:      NewID(),
		PID:     tt.PID,
		NodeRef: nodeRef,
		Prev:    parent,
		State:   Pending,
		Data:    make(map[string]any),
		Start:   nowFunc(),
		tree:    tt,
	}
	tt.byID[t.ID] = t
	if parent != "" {
		tt.children[parent] = append(tt.children[parent], t.ID)
	} else {
		tt.RootID = t.ID
	}
	return t
}

// Get returns the task by id.
func (tt *TaskTree) Get(tid string) (*Task, bool) {
	t, ok := tt.byID[tid]
	return t, ok
}

// Children returns the child task ids of tid in creation order.
func (tt *TaskTree) Children(tid string) []string {
	return tt.children[tid]
}

// AllChildrenTerminal reports whether every child of tid is in a terminal
// state (spec.md §3: "A parent with children can only become Completed when
// every child is completed").
func (tt *TaskTree) AllChildrenTerminal(tid string) bool {
	for _, cid := range tt.children[tid] {
		c, ok := tt.byID[cid]
		if !ok || !c.IsCompleted() {
			return false
		}
	}
	return true
}

// All returns every task currently in the arena, for the timeout tick scan
// (spec.md §4.6). Order is unspecified.
func (tt *TaskTree) All() []*Task {
	out := make([]*Task, 0, len(tt.byID))
	for _, t := range tt.byID {
		out = append(out, t)
	}
	return out
}

// Root returns the process's root task.
func (tt *TaskTree) Root() *Task {
	t, _ := tt.byID[tt.RootID]
	return t
}

// AbortSubtree cancels tid and every descendant, depth-first,
// terminal-replace (spec.md §5 Cancellation & timeouts: "Cancellation
// propagates top-down: aborting a task first aborts all its descendant
// tasks ... then marks itself Aborted").
func (tt *TaskTree) AbortSubtree(tid string) {
	for _, cid := range tt.children[tid] {
		tt.AbortSubtree(cid)
	}
	if t, ok := tt.byID[tid]; ok && !t.State.IsTerminal() {
		_ = t.SetState(Aborted)
	}
}
