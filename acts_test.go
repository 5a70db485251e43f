// Package acts_test exercises the scheduler, task-tree, and lifecycle
// machinery end-to-end, driving a real Engine over an in-memory Store and
// the goja-backed script Host exactly as a deployment would (spec.md §8).
package acts_test

import (
	"context"
	"testing"
	"time"

	acts "github.com/dshills/acts-go"
	"github.com/dshills/acts-go/emit"
	"github.com/dshills/acts-go/script"
	"github.com/dshills/acts-go/store"
)

// newTestEngine builds an Engine over a fresh MemoryStore, the real script
// Host, and a BufferedEmitter so tests can inspect the emitted lifecycle
// events alongside process/task state (spec.md §4.9).
func newTestEngine(t *testing.T) (*acts.Engine, *emit.BufferedEmitter) {
	t.Helper()
	em := emit.NewBufferedEmitter()
	eng := acts.NewEngine(store.NewMemoryStore(), script.NewHost(nil), em, acts.DefaultRuntimeConfig())
	return eng, em
}

// runEngine starts the scheduler's dispatch loop (and tick source) in the
// background for the duration of the test, matching how cmd/acts/main.go
// drives it, and stops it on cleanup.
func runEngine(t *testing.T, eng *acts.Engine) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

// waitFor polls cond every 2ms until it returns true or deadline elapses,
// failing the test on timeout. Signal dispatch is asynchronous (spec.md §4.3
// "single consumer draining a queue"), so tests observe completion by
// polling process/task state rather than blocking on a synchronous call.
func waitFor(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", deadline)
	}
}

// waitTerminal polls until pid's process has been evicted from the cache,
// which only happens once its root task reaches a terminal state
// (lifecycle.go persistTerminalProcess).
func waitTerminal(t *testing.T, eng *acts.Engine, pid string, deadline time.Duration) {
	t.Helper()
	waitFor(t, deadline, func() bool {
		_, ok := eng.Runtime.Cache.Get(pid)
		return !ok
	})
}

// echoHandler completes immediately, returning its inputs as outputs
// (models acts.core.action's shape but under a distinct uses string per
// test, so tests can register several independent fakes side by side).
type echoHandler struct{ uses string }

func (h echoHandler) Uses() string { return h.uses }
func (h echoHandler) Call(_ context.Context, _ *acts.Context, inputs map[string]any) acts.ActResult {
	return acts.Complete(inputs)
}

// failHandler always fails with the given catch key.
type failHandler struct {
	uses string
	key  string
}

func (h failHandler) Uses() string { return h.uses }
func (h failHandler) Call(_ context.Context, _ *acts.Context, _ map[string]any) acts.ActResult {
	return acts.Fail(acts.NewError(acts.ErrAction, h.key, "handler configured to fail"))
}

// countingFailHandler fails its first n calls then completes, used to pin
// down exact retry-attempt counts (policy_test.go).
type countingFailHandler struct {
	uses   string
	key    string
	fail   int
	calls  int
}

func (h *countingFailHandler) Uses() string { return h.uses }
func (h *countingFailHandler) Call(_ context.Context, _ *acts.Context, inputs map[string]any) acts.ActResult {
	h.calls++
	if h.calls <= h.fail {
		return acts.Fail(acts.NewError(acts.ErrAction, h.key, "still failing"))
	}
	return acts.Complete(inputs)
}

// alwaysFailHandler fails every call, for the retry-exhaustion regression.
type alwaysFailHandler struct {
	uses  string
	calls int
}

func (h *alwaysFailHandler) Uses() string { return h.uses }
func (h *alwaysFailHandler) Call(_ context.Context, _ *acts.Context, _ map[string]any) acts.ActResult {
	h.calls++
	return acts.Fail(acts.NewError(acts.ErrAction, "persistent", "always fails"))
}
