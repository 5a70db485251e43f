package acts_test

import (
	"testing"
	"time"

	acts "github.com/dshills/acts-go"
)

// TestPolicy_CatchMatchesRecoversTask verifies that a catch whose `on` names
// the failing error's key pre-empts the terminal Failed transition: the
// task instead runs the catch's Then act and recovers to Completed
// (spec.md §4.6 "a catch with on == error.key matches that kind").
func TestPolicy_CatchMatchesRecoversTask(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(failHandler{uses: "test.catch.boom", key: "boom"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := eng.Runtime.Registry.Register(echoHandler{uses: "test.catch.recover"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "catch-wf", Name: "catch",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "risky", Uses: "test.catch.boom",
				Catches: []acts.Catch{{On: "boom", Then: []acts.Act{
					{ID: "recover", Uses: "test.catch.recover", Inputs: map[string]any{"recovered": true}},
				}}},
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

	rec, err := eng.Runtime.Store.LoadProc(ctx, pid)
	if err != nil {
		t.Fatalf("LoadProc: %v", err)
	}
	if rec.State != acts.Completed {
		t.Fatalf("proc.State = %v, want Completed (catch should recover, not fail)", rec.State)
	}
}

// TestPolicy_CatchDefaultFallback verifies that a catch with no `on` acts as
// the default, matching any error key not matched by a more specific catch
// (spec.md §4.6 "a catch with no on is the default").
func TestPolicy_CatchDefaultFallback(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(failHandler{uses: "test.catch.other", key: "unmatched-key"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := eng.Runtime.Registry.Register(echoHandler{uses: "test.catch.default-recover"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "catch-default-wf", Name: "catch-default",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "risky", Uses: "test.catch.other",
				Catches: []acts.Catch{
					{On: "specific-key", Then: []acts.Act{{ID: "wrong", Uses: "test.catch.default-recover"}}},
					{Then: []acts.Act{{ID: "default", Uses: "test.catch.default-recover"}}},
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

	rec, err := eng.Runtime.Store.LoadProc(ctx, pid)
	if err != nil {
		t.Fatalf("LoadProc: %v", err)
	}
	if rec.State != acts.Completed {
		t.Fatalf("proc.State = %v, want Completed (default catch should recover, not fail)", rec.State)
	}
}

// TestPolicy_RetrySucceedsWithinBudget verifies a task that fails fewer
// times than its retry budget eventually completes (spec.md §4.6 "up to
// times times").
func TestPolicy_RetrySucceedsWithinBudget(t *testing.T) {
	eng, _ := newTestEngine(t)
	counter := &countingFailHandler{uses: "test.retry.eventually", fail: 2}
	if err := eng.Runtime.Registry.Register(counter); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "retry-ok-wf", Name: "retry-ok",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "a", Uses: "test.retry.eventually",
				Retry: &acts.Retry{Times: 3},
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
	waitTerminal(t, eng, pid, 5*time.Second)

	if counter.calls != 3 {
		t.Errorf("handler calls = %d, want 3 (2 failures + 1 success)", counter.calls)
	}
}

// TestPolicy_RetryExhaustsAndTerminates is the regression test for the
// infinite-retry bug: registerHooks previously re-inflated RetriesLeft to
// node.Retry.Times on every dispatch because it could not tell a
// freshly-spawned task apart from one whose budget had been legally
// exhausted to 0, so a persistently-failing act with retry.times=1 never
// terminated. With RetriesInit guarding the seed, the task must fail for
// good after exactly one retry (spec.md §4.6 "decrementing the remaining
// count").
func TestPolicy_RetryExhaustsAndTerminates(t *testing.T) {
	eng, _ := newTestEngine(t)
	handler := &alwaysFailHandler{uses: "test.retry.never"}
	if err := eng.Runtime.Registry.Register(handler); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "retry-exhaust-wf", Name: "retry-exhaust",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "a", Uses: "test.retry.never",
				Retry: &acts.Retry{Times: 1},
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

	// Before the fix this process would never reach a terminal state: the
	// bound here is the proof the scheduler actually stops retrying.
	waitTerminal(t, eng, pid, 5*time.Second)

	if handler.calls != 2 {
		t.Fatalf("handler calls = %d, want exactly 2 (original attempt + 1 retry)", handler.calls)
	}
}

// TestTimeout_FiresAndRunsThenHandler verifies that a timeout registered on
// a step whose act never resolves fires once its deadline passes and runs
// the timeout's Then act, recovering the step instead of leaving it stuck
// forever (spec.md §4.6 "a tick source fires timeout hooks whose deadline
// has passed").
func TestTimeout_FiresAndRunsThenHandler(t *testing.T) {
	eng, _ := newTestEngine(t)
	if err := eng.Runtime.Registry.Register(echoHandler{uses: "test.timeout.recover"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	wf := acts.Workflow{
		ID: "timeout-wf", Name: "timeout",
		Steps: []acts.Step{{
			ID: "step1",
			Acts: []acts.Act{{
				ID: "wait", Uses: acts.UsesIRQ, Key: "never-resolved",
				Timeout: []acts.Timeout{{
					Name: "deadline", On: 10 * time.Millisecond,
					Then: []acts.Act{{ID: "recover", Uses: "test.timeout.recover"}},
				}},
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

	// RunTicks fires on Runtime.TickInterval, clamped to a minimum of 1s
	// (runtime.go NewRuntime), so the deadline above is comfortably past by
	// the first tick; the timeout recovers the process well within this
	// bound regardless.
	waitTerminal(t, eng, pid, 3*time.Second)
}
