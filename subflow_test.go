package acts_test

import (
	"testing"
	"time"

	acts "github.com/dshills/acts-go"
)

// TestSubflow_ChildOutputsPropagateToParent verifies that acts.core.subflow
// starts a child Process for the named model, and once the child's root
// task terminates, its outputs are merged into the parent task and the
// parent process completes (spec.md §4.8 "outputs propagate back, parent
// re-enqueued").
func TestSubflow_ChildOutputsPropagateToParent(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(echoHandler{uses: "test.subflow.child-act"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	childWF := acts.Workflow{
		ID: "subflow-child", Name: "child",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "a", Uses: "test.subflow.child-act",
				Inputs: map[string]any{"child_result": "done"},
			}},
		}},
	}
	parentWF := acts.Workflow{
		ID: "subflow-parent", Name: "parent",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "call", Uses: acts.UsesSubflow,
				Inputs: map[string]any{"mid": "subflow-child"},
			}},
		}},
	}

	ctx := runEngine(t, eng)
	if _, err := eng.Deploy(ctx, childWF); err != nil {
		t.Fatalf("Deploy child: %v", err)
	}
	if _, err := eng.Deploy(ctx, parentWF); err != nil {
		t.Fatalf("Deploy parent: %v", err)
	}
	pid, err := eng.Start(ctx, parentWF.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, eng, pid, 3*time.Second)
}

// TestSubflow_ChildFailurePropagatesToParent verifies a failed subflow
// fails the parent task rather than silently completing it.
func TestSubflow_ChildFailurePropagatesToParent(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(failHandler{uses: "test.subflow.child-fail", key: "child-broke"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	childWF := acts.Workflow{
		ID: "subflow-child-fail", Name: "child-fail",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{ID: "a", Uses: "test.subflow.child-fail"}},
		}},
	}
	parentWF := acts.Workflow{
		ID: "subflow-parent-fail", Name: "parent-fail",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "call", Uses: acts.UsesSubflow,
				Inputs: map[string]any{"mid": "subflow-child-fail"},
			}},
		}},
	}

	ctx := runEngine(t, eng)
	if _, err := eng.Deploy(ctx, childWF); err != nil {
		t.Fatalf("Deploy child: %v", err)
	}
	if _, err := eng.Deploy(ctx, parentWF); err != nil {
		t.Fatalf("Deploy parent: %v", err)
	}
	pid, err := eng.Start(ctx, parentWF.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, eng, pid, 3*time.Second)
}
