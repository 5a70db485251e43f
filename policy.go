package acts

import (
	"context"
	"math/rand"
	"time"
)

// registerHooks initializes a fresh task's hooks from its node's retry and
// timeout configuration (spec.md §3 Task.hooks, §4.6).
func registerHooks(t *Task, node *Node) {
	if node.Retry != nil && !t.Hooks.RetriesInit {
		t.Hooks.RetriesLeft = node.Retry.Times
		t.Hooks.RetriesInit = true
	}
	if len(node.Timeout) > 0 {
		t.Hooks.FiredTimeouts = make(map[string]bool, len(node.Timeout))
		t.Hooks.TimeoutDeadlines = make(map[string]time.Time, len(node.Timeout))
		now := nowFunc()
		for _, to := range node.Timeout {
			t.Hooks.TimeoutDeadlines[timeoutKey(to)] = now.Add(to.On)
		}
	}
}

func timeoutKey(to Timeout) string {
	if to.Name != "" {
		return to.Name
	}
	return to.On.String()
}

// matchCatch finds the first catch whose On equals err.Key, in document
// order, falling back to a single default catch (On == "") if present
// (spec.md §4.6 "a catch with on == error.key matches that kind; a catch
// with no on is the default").
func matchCatch(catches []Catch, err *Error) (int, *Catch) {
	defIdx, hasDefault := -1, false
	var def Catch
	for i, c := range catches {
		if c.On == "" {
			defIdx, def, hasDefault = i, c, true
			continue
		}
		if err != nil && c.On == err.Key {
			return i, &catches[i]
		}
	}
	if hasDefault {
		return defIdx, &def
	}
	return -1, nil
}

func catchKey(c *Catch) string {
	if c.On == "" {
		return "default"
	}
	return c.On
}

// runHookThen spawns the first of a catch/timeout's compiled Then nodes as
// a chained child of cctx.Task, or recovers immediately if there are none
// (spec.md §4.6).
func (s *Scheduler) runHookThen(cctx *Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return cctx.Task.SetState(Completed)
	}
	t := s.spawnChainChild(cctx.Proc, cctx.Task.ID, nodes[0])
	s.enqueue(cctx.Go, t)
	return nil
}

// retryTask re-initializes node by spawning a fresh sibling task after an
// exponential backoff with jitter, replacing rather than stacking the
// failed task (spec.md §4.6 "terminal-replace, not stacked"). The original
// task is marked Failed for good; retrying happens via a brand-new task id.
func (s *Scheduler) retryTask(cctx *Context, err *Error) error {
	t, node := cctx.Task, cctx.Node
	if e := t.Fail(err); e != nil {
		return e
	}
	remaining := t.Hooks.RetriesLeft
	attempt := node.Retry.Times - remaining
	backoff := computeBackoff(attempt)
	s.rt.Metrics().IncRetries(node.ID)

	sig := Signal{
		Kind: SignalRetry, PID: cctx.Proc.ID,
		NodeID: node.ID, ParentTID: t.Prev, RetriesLeft: remaining - 1,
	}
	go func() {
		timer := time.NewTimer(backoff)
		defer timer.Stop()
		<-timer.C
		_ = s.rt.Queue.Send(context.Background(), sig)
	}()
	return nil
}

// dispatchRetry handles a SignalRetry: it is the only place outside the
// main dispatch path that mutates a process's TaskTree, and runs on the
// scheduler's own goroutine like every other signal, so no additional
// locking is required.
func (s *Scheduler) dispatchRetry(ctx context.Context, sig Signal) error {
	proc, err := s.loadProcess(ctx, sig.PID)
	if err != nil {
		return err
	}
	t := proc.Tasks.NewTask(sig.NodeID, sig.ParentTID)
	t.Hooks.RetriesLeft = sig.RetriesLeft
	t.Hooks.RetriesInit = true
	s.enqueue(ctx, t)
	return nil
}

// computeBackoff returns an exponentially growing delay with full jitter,
// capped at 30s (teacher's graph/policy.go retry backoff shape, generalized
// from step-retry to task-retry).
func computeBackoff(attempt int) time.Duration {
	const base = 200 * time.Millisecond
	const maxDelay = 30 * time.Second
	d := base << attempt
	if d <= 0 || d > maxDelay {
		d = maxDelay
	}
	return time.Duration(rand.Int63n(int64(d)))
}
