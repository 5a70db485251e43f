package acts_test

import (
	"testing"

	acts "github.com/dshills/acts-go"
)

// TestTask_SetState_RejectsTransitionOutOfTerminal verifies the core
// "terminal states never transition" invariant (spec.md §3).
func TestTask_SetState_RejectsTransitionOutOfTerminal(t *testing.T) {
	tree := acts.NewTaskTree("pid-1")
	task := tree.NewTask("node-1", "")
	if err := task.SetState(acts.Ready); err != nil {
		t.Fatalf("Pending->Ready: %v", err)
	}
	if err := task.SetState(acts.Running); err != nil {
		t.Fatalf("Ready->Running: %v", err)
	}
	if err := task.SetState(acts.Completed); err != nil {
		t.Fatalf("Running->Completed: %v", err)
	}
	if err := task.SetState(acts.Ready); err != acts.ErrAlreadyTerminal {
		t.Fatalf("Completed->Ready = %v, want ErrAlreadyTerminal", err)
	}
}

// TestTask_SetState_RejectsIllegalTransition verifies a structurally
// disallowed transition (not via a terminal state) is rejected too.
func TestTask_SetState_RejectsIllegalTransition(t *testing.T) {
	tree := acts.NewTaskTree("pid-1")
	task := tree.NewTask("node-1", "")
	if err := task.SetState(acts.Running); err != acts.ErrIllegalTransition {
		t.Fatalf("Pending->Running = %v, want ErrIllegalTransition (must pass through Ready)", err)
	}
}

// TestTask_SetState_FiresTransitionHook verifies every successful
// transition invokes the tree's registered hook (lifecycle.go depends on
// this to enqueue follow-ups).
func TestTask_SetState_FiresTransitionHook(t *testing.T) {
	tree := acts.NewTaskTree("pid-1")
	var seen []acts.TaskState
	tree.OnTransition(func(task *acts.Task) { seen = append(seen, task.State) })

	task := tree.NewTask("node-1", "")
	_ = task.SetState(acts.Ready)
	_ = task.SetState(acts.Running)
	_ = task.SetState(acts.Completed)

	want := []acts.TaskState{acts.Ready, acts.Running, acts.Completed}
	if len(seen) != len(want) {
		t.Fatalf("hook fired %d times, want %d: %v", len(seen), len(want), seen)
	}
	for i, s := range want {
		if seen[i] != s {
			t.Errorf("hook[%d] = %v, want %v", i, seen[i], s)
		}
	}
}

// TestTask_Rewind_BypassesTerminalGuardAndFiresHook verifies Rewind is the
// one sanctioned exception to "terminal states never transition" (spec.md
// §4.7 "back", §9 Open Question (b)): it forces a terminal task back to
// Pending and still runs the transition hook, unlike a direct field
// assignment would.
func TestTask_Rewind_BypassesTerminalGuardAndFiresHook(t *testing.T) {
	tree := acts.NewTaskTree("pid-1")
	var hookFired int
	tree.OnTransition(func(*acts.Task) { hookFired++ })

	task := tree.NewTask("node-1", "")
	_ = task.SetState(acts.Ready)
	_ = task.SetState(acts.Running)
	_ = task.SetState(acts.Aborted)
	hookFired = 0 // only count the Rewind's own hook call

	task.Rewind()

	if task.State != acts.Pending {
		t.Fatalf("State after Rewind = %v, want Pending", task.State)
	}
	if !task.End.IsZero() {
		t.Error("End should be cleared by Rewind")
	}
	if hookFired != 1 {
		t.Errorf("transition hook fired %d times for Rewind, want 1", hookFired)
	}
}

// TestTaskTree_AbortSubtree_CancelsDepthFirst verifies aborting a task
// cancels every descendant before marking itself Aborted, and leaves
// already-terminal descendants untouched (spec.md §5 "Cancellation
// propagates top-down").
func TestTaskTree_AbortSubtree_CancelsDepthFirst(t *testing.T) {
	tree := acts.NewTaskTree("pid-1")
	root := tree.NewTask("root", "")
	child := tree.NewTask("child", root.ID)
	grandchild := tree.NewTask("grandchild", child.ID)
	finishedSibling := tree.NewTask("finished", root.ID)
	_ = finishedSibling.SetState(acts.Ready)
	_ = finishedSibling.SetState(acts.Running)
	_ = finishedSibling.SetState(acts.Completed)

	tree.AbortSubtree(root.ID)

	if root.State != acts.Aborted {
		t.Errorf("root.State = %v, want Aborted", root.State)
	}
	if child.State != acts.Aborted {
		t.Errorf("child.State = %v, want Aborted", child.State)
	}
	if grandchild.State != acts.Aborted {
		t.Errorf("grandchild.State = %v, want Aborted", grandchild.State)
	}
	if finishedSibling.State != acts.Completed {
		t.Errorf("finishedSibling.State = %v, want untouched Completed", finishedSibling.State)
	}
}

// TestTaskState_IsTerminal verifies the closed terminal-state set matches
// spec.md §3: "{Completed, Skipped, Failed, Aborted, Removed}".
func TestTaskState_IsTerminal(t *testing.T) {
	terminal := map[acts.TaskState]bool{
		acts.Completed: true, acts.Skipped: true, acts.Failed: true,
		acts.Aborted: true, acts.Removed: true,
	}
	for _, s := range []acts.TaskState{
		acts.Pending, acts.Ready, acts.Running, acts.Interrupted,
		acts.Completed, acts.Skipped, acts.Failed, acts.Aborted, acts.Removed,
	} {
		if got := s.IsTerminal(); got != terminal[s] {
			t.Errorf("%v.IsTerminal() = %v, want %v", s, got, terminal[s])
		}
	}
}

// TestPercentRateRule_Satisfied verifies the default by:some(rate) rule
// computes succeeded/total against the threshold (spec.md §9 Supplemented
// Features, grounded on adapter/rule/rate.rs Rate).
func TestPercentRateRule_Satisfied(t *testing.T) {
	rule := acts.PercentRateRule{}
	cases := []struct {
		succeeded, total int
		rate              float64
		want              bool
	}{
		{2, 4, 0.5, true},
		{1, 4, 0.5, false},
		{0, 0, 0.5, false},
		{4, 4, 1.0, true},
		{3, 4, 1.0, false},
	}
	for _, c := range cases {
		if got := rule.Satisfied(c.succeeded, c.total, c.rate); got != c.want {
			t.Errorf("Satisfied(%d, %d, %v) = %v, want %v", c.succeeded, c.total, c.rate, got, c.want)
		}
	}
}
