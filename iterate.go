package acts

import (
	"sort"
	"strconv"
	"strings"
)

// initIteration evaluates a.For.In once and caches the resulting items on
// the task's hooks (spec.md §4.5). Ordering for by:ord(key) is applied here
// so runIteration and nextIterationPhase can treat ord like seq.
func (s *Scheduler) initIteration(cctx *Context, a *Act) error {
	t := cctx.Task
	val, err := cctx.Eval(a.For.In)
	if err != nil {
		return Wrap(ErrScript, "", err)
	}
	items, ok := val.([]any)
	if !ok {
		return NewError(ErrModel, "", "for.in did not evaluate to a list")
	}
	mode, arg := parseFor(a.For.By)
	if mode == forOrd {
		items = sortByKey(items, arg)
	}
	t.Hooks.IterItems = items
	t.Hooks.IterTotal = len(items)
	t.Hooks.IterBy = a.For.By
	t.Hooks.IterIndex = 0
	return nil
}

// runIteration kicks off the first wave of iteration children, per the
// for.by mode (spec.md §4.5).
func (s *Scheduler) runIteration(cctx *Context, a *Act) error {
	t := cctx.Task
	if t.Hooks.IterTotal == 0 {
		return t.SetState(Completed)
	}
	mode, _ := parseFor(a.For.By)
	switch mode {
	case forAll, forSome:
		for i, item := range t.Hooks.IterItems {
			s.spawnIterationChild(cctx, i, item)
		}
	default: // forSeq, forOrd: one at a time
		s.spawnIterationChild(cctx, 0, t.Hooks.IterItems[0])
	}
	return nil
}

// nextIterationPhase is re-entered whenever an iteration child terminates: it
// advances a sequential/ordered iteration, or reviews a completed parallel
// batch (spec.md §4.5).
func (s *Scheduler) nextIterationPhase(cctx *Context) error {
	t := cctx.Task
	children := cctx.Proc.Tasks.Children(t.ID)

	terminal, failedCount := 0, 0
	for _, cid := range children {
		c, ok := cctx.Proc.Tasks.Get(cid)
		if !ok || !c.IsCompleted() {
			continue
		}
		terminal++
		if c.State == Failed || c.State == Aborted {
			failedCount++
		}
		for k, v := range c.Data {
			if k == "$index" || k == "$value" || k == "uid" {
				continue
			}
			t.Data[k] = v
		}
	}

	mode, arg := parseFor(t.Hooks.IterBy)
	switch mode {
	case forSeq, forOrd:
		if failedCount > 0 {
			return s.failTask(cctx, NewError(ErrRuntime, "", "iteration item failed, aborting remaining"))
		}
		if terminal >= t.Hooks.IterTotal {
			return t.SetState(Completed)
		}
		s.spawnIterationChild(cctx, terminal, t.Hooks.IterItems[terminal])
		return nil
	case forSome:
		threshold := parseRate(arg, 0.5)
		rule := s.rt.SomeRule
		if rule == nil {
			rule = PercentRateRule{}
		}
		// Re-evaluated after every child termination (not just once the
		// whole batch is in) so a satisfied rule can complete early and
		// abort the still-running remainder (spec.md §8 "by: some(r)
		// completes as soon as r is satisfied and remaining iterations are
		// Aborted").
		if rule.Satisfied(terminal-failedCount, t.Hooks.IterTotal, threshold) {
			s.abortInFlightChildren(cctx.Proc.Tasks, children)
			return t.SetState(Completed)
		}
		if terminal < len(children) {
			return nil // batch still in flight, rule not yet satisfied
		}
		return s.failTask(cctx, NewError(ErrRuntime, "", "iteration success rate below threshold"))
	default: // forAll
		if terminal < len(children) {
			return nil
		}
		if failedCount > 0 {
			return s.failTask(cctx, NewError(ErrRuntime, "", "iteration item failed"))
		}
		return t.SetState(Completed)
	}
}

// abortInFlightChildren aborts every child in children that has not yet
// reached a terminal state, used by by:some(rule) to cancel the remainder
// of the batch once the rule is already satisfied (spec.md §8).
func (s *Scheduler) abortInFlightChildren(tasks *TaskTree, children []string) {
	for _, cid := range children {
		c, ok := tasks.Get(cid)
		if !ok || c.IsCompleted() {
			continue
		}
		tasks.AbortSubtree(cid)
	}
}

// spawnIterationChild creates and enqueues one iteration-item task, bound to
// the same node as the iterating task but scoped "iter" so it is dispatched
// as a plain leaf rather than re-entering iteration (spec.md §4.5: every
// iteration exposes $index, $value, and a fresh uid).
func (s *Scheduler) spawnIterationChild(cctx *Context, idx int, item any) *Task {
	t := cctx.Proc.Tasks.NewTask(cctx.Node.ID, cctx.Task.ID)
	t.Scope = "iter"
	t.Data["$index"] = idx
	t.Data["$value"] = item
	t.Data["uid"] = NewID()
	s.enqueue(cctx.Go, t)
	return t
}

type forMode int

const (
	forAll forMode = iota
	forSeq
	forOrd
	forSome
)

// parseFor splits a For.By string like "ord(key)" or "some(0.75)" into its
// mode and parenthesized argument (spec.md §4.5).
func parseFor(by string) (forMode, string) {
	switch {
	case by == "" || by == "all":
		return forAll, ""
	case by == "seq":
		return forSeq, ""
	case strings.HasPrefix(by, "ord("):
		return forOrd, strings.TrimSuffix(strings.TrimPrefix(by, "ord("), ")")
	case strings.HasPrefix(by, "some("):
		return forSome, strings.TrimSuffix(strings.TrimPrefix(by, "some("), ")")
	default:
		return forAll, ""
	}
}

// parseRate parses a some(rule) argument into a success-rate threshold in
// [0,1], falling back to def on a non-numeric rule (spec.md §9 Supplemented
// Features, grounded on the original's rate-based rule adapter).
func parseRate(arg string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

// sortByKey sorts map[string]any items ascending by string(item[key]).
func sortByKey(items []any, key string) []any {
	out := append([]any{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		return keyString(out[i], key) < keyString(out[j], key)
	})
	return out
}

func keyString(item any, key string) string {
	m, ok := item.(map[string]any)
	if !ok {
		return ""
	}
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	if s != "" {
		return s
	}
	return ""
}
