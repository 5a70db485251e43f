package acts_test

import (
	"errors"
	"testing"

	acts "github.com/dshills/acts-go"
)

type alwaysResolves struct{}

func (alwaysResolves) Resolves(string) bool { return true }

// TestBuildTree_RequiresWorkflowID verifies a Workflow without an id is
// rejected at deploy time (spec.md §4.1 step 1).
func TestBuildTree_RequiresWorkflowID(t *testing.T) {
	_, err := acts.BuildTree(acts.Workflow{}, alwaysResolves{})
	var e *acts.Error
	if !errors.As(err, &e) || e.Kind != acts.ErrModel {
		t.Fatalf("BuildTree with no id = %v, want *Error{Kind: ErrModel}", err)
	}
}

// TestBuildTree_RejectsDuplicateIDs verifies two sibling steps sharing an
// id fail validation (spec.md §4.1 step 4 "reject duplicate ids").
func TestBuildTree_RejectsDuplicateIDs(t *testing.T) {
	wf := acts.Workflow{
		ID: "dup-wf",
		Steps: []acts.Step{
			{ID: "same"},
			{ID: "same"},
		},
	}
	if _, err := acts.BuildTree(wf, alwaysResolves{}); err == nil {
		t.Fatal("expected an error for duplicate sibling ids")
	}
}

// TestBuildTree_RejectsUnknownNeeds verifies a need naming a nonexistent
// sibling id fails validation (spec.md §4.1 step 3).
func TestBuildTree_RejectsUnknownNeeds(t *testing.T) {
	wf := acts.Workflow{
		ID: "needs-wf",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{
				{ID: "a", Uses: "noop", Needs: []string{"ghost"}},
			},
		}},
	}
	if _, err := acts.BuildTree(wf, alwaysResolves{}); err == nil {
		t.Fatal("expected an error for a need naming an unknown sibling")
	}
}

// TestBuildTree_RejectsNeedsCycle verifies a cycle among sibling needs
// fails validation rather than hanging (spec.md §4.1 step 3 "rejecting ...
// needs-cycles").
func TestBuildTree_RejectsNeedsCycle(t *testing.T) {
	wf := acts.Workflow{
		ID: "cycle-wf",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{
				{ID: "a", Uses: "noop", Needs: []string{"b"}},
				{ID: "b", Uses: "noop", Needs: []string{"a"}},
			},
		}},
	}
	if _, err := acts.BuildTree(wf, alwaysResolves{}); err == nil {
		t.Fatal("expected an error for a needs cycle")
	}
}

// TestBuildTree_RejectsUnresolvedUses verifies an act whose uses does not
// resolve in the registry (and is not built-in control flow) fails
// validation (spec.md §4.1 step 5).
func TestBuildTree_RejectsUnresolvedUses(t *testing.T) {
	wf := acts.Workflow{
		ID: "unresolved-wf",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{ID: "a", Uses: "nothing.like.this"}},
		}},
	}
	reg := acts.NewRegistry()
	if _, err := acts.BuildTree(wf, reg); err == nil {
		t.Fatal("expected an error for an unresolved uses")
	}
}

// TestBuildTree_ExplicitNextOverridesSiblingOrder verifies an act's
// explicit `next` field links to that sibling regardless of document
// order (model.go Act.Next, node.go linkExplicitNext).
func TestBuildTree_ExplicitNextOverridesSiblingOrder(t *testing.T) {
	wf := acts.Workflow{
		ID: "next-wf",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{
				{ID: "a", Uses: "noop", Next: "c"},
				{ID: "b", Uses: "noop"},
				{ID: "c", Uses: "noop"},
			},
		}},
	}
	tree, err := acts.BuildTree(wf, alwaysResolves{})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	a, ok := tree.Node("a")
	if !ok {
		t.Fatal("node a not found")
	}
	if a.Next == nil || a.Next.ID != "c" {
		t.Fatalf("a.Next = %v, want node c (explicit next overrides sibling order)", a.Next)
	}
}

// TestBuildTree_CatchThenNodesAreNotScheduledChildren verifies a step's
// catch Then acts are compiled and addressable but excluded from
// Children, so the normal run phase never schedules them directly
// (spec.md §4.6, node.go CatchNodes).
func TestBuildTree_CatchThenNodesAreNotScheduledChildren(t *testing.T) {
	wf := acts.Workflow{
		ID: "catch-compile-wf",
		Steps: []acts.Step{{
			ID: "step1",
			Catches: []acts.Catch{{On: "err", Then: []acts.Act{{ID: "handler", Uses: "noop"}}}},
		}},
	}
	tree, err := acts.BuildTree(wf, alwaysResolves{})
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	step, ok := tree.Node("step1")
	if !ok {
		t.Fatal("node step1 not found")
	}
	for _, c := range step.Children {
		if c.ID == "handler" {
			t.Fatal("catch Then node must not appear in Children")
		}
	}
	if len(step.CatchNodes) != 1 || len(step.CatchNodes[0]) != 1 || step.CatchNodes[0][0].ID != "handler" {
		t.Fatalf("CatchNodes = %+v, want one compiled handler node", step.CatchNodes)
	}
}
