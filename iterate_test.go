package acts_test

import (
	"context"
	"testing"
	"time"

	acts "github.com/dshills/acts-go"
)

// branchingIterHandler completes immediately for items whose "value" field
// is "ok", and issues an IRQ (parking indefinitely) for items whose value
// is "hang" — used to control exactly which iteration children have
// terminated at a given point in a by:some(rate) test.
type branchingIterHandler struct{ uses string }

func (h branchingIterHandler) Uses() string { return h.uses }
func (h branchingIterHandler) Call(_ context.Context, sctx *acts.Context, _ map[string]any) acts.ActResult {
	item, _ := sctx.Task.Data["$value"].(map[string]any)
	if v, _ := item["value"].(string); v == "hang" {
		return acts.Interrupt(map[string]any{"uid": "never-resolved"})
	}
	return acts.Complete(nil)
}

// TestIterate_SomeCompletesEarlyAndAbortsRemainder verifies that a
// by:some(rate) iteration completes as soon as the success rate is
// satisfied and aborts the still in-flight iterations, rather than waiting
// for every item to terminate (spec.md §8 "by: some(r) completes as soon
// as r is satisfied and remaining iterations are Aborted").
func TestIterate_SomeCompletesEarlyAndAbortsRemainder(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(branchingIterHandler{uses: "test.iter.branch"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "some-wf", Name: "some",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "iter", Uses: "test.iter.branch",
				For: &acts.For{
					In: `[{value:"ok"},{value:"ok"},{value:"hang"},{value:"hang"}]`,
					By: "some(0.5)",
				},
			}},
		}},
	}

	ctx := runEngine(t, eng)
	if _, err := eng.Deploy(ctx, wf); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	pid, err := eng.Start(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, eng, pid, 2*time.Second)
}

// TestIterate_SeqRunsOneAtATime verifies by:seq dispatches iteration items
// one after another rather than all at once (spec.md §4.5).
func TestIterate_SeqRunsOneAtATime(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(echoHandler{uses: "test.iter.seq"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "seq-iter-wf", Name: "seq-iter",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "iter", Uses: "test.iter.seq",
				For: &acts.For{In: `[1,2,3]`, By: "seq"},
			}},
		}},
	}

	ctx := runEngine(t, eng)
	if _, err := eng.Deploy(ctx, wf); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	pid, err := eng.Start(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, eng, pid, 2*time.Second)
}

// TestIterate_AllFailsWhenAnyItemFails verifies by:all requires every
// iteration item to succeed (spec.md §4.5).
func TestIterate_AllFailsWhenAnyItemFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := &allOrNothingHandler{uses: "test.iter.all"}
	if err := eng.Runtime.Registry.Register(handler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "all-iter-wf", Name: "all-iter",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "iter", Uses: "test.iter.all",
				For: &acts.For{In: `[{value:"ok"},{value:"fail"}]`, By: "all"},
			}},
		}},
	}

	ctx := runEngine(t, eng)
	if _, err := eng.Deploy(ctx, wf); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	pid, err := eng.Start(ctx, wf.ID, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, eng, pid, 2*time.Second)
}

// allOrNothingHandler fails for items whose "value" is "fail", completes
// otherwise.
type allOrNothingHandler struct{ uses string }

func (h allOrNothingHandler) Uses() string { return h.uses }
func (h allOrNothingHandler) Call(_ context.Context, sctx *acts.Context, _ map[string]any) acts.ActResult {
	item, _ := sctx.Task.Data["$value"].(map[string]any)
	if v, _ := item["value"].(string); v == "fail" {
		return acts.Fail(acts.NewError(acts.ErrAction, "item-failed", "iteration item failed"))
	}
	return acts.Complete(nil)
}
