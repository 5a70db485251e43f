package acts

import (
	"context"
	"strings"
)

// Context binds a Runtime, the current Process, the current Task, and a
// mutable variable scope for a single scheduling step (spec.md §2 component
// 4). It is created transiently by the Scheduler for each dispatch and is
// never stored (spec.md §9 "Context is transient").
type Context struct {
	Go      context.Context
	Runtime *Runtime
	Proc    *Process
	Task    *Task
	Node    *Node

	// scope holds the variable bindings visible to script evaluation for
	// this step: env (writable), task data/inputs/outputs (read-only), and
	// any catch/iteration overlay (spec.md §4.10).
	scope map[string]any
}

// newContext builds a fresh Context for dispatching task within proc.
func newContext(goCtx context.Context, rt *Runtime, proc *Process, task *Task) (*Context, error) {
	node, ok := proc.Tree.Tree.Node(task.NodeRef)
	if !ok {
		return nil, NewError(ErrRuntime, "", "no such node: "+task.NodeRef)
	}
	c := &Context{
		Go:      goCtx,
		Runtime: rt,
		Proc:    proc,
		Task:    task,
		Node:    node,
		scope:   buildScope(proc, task),
	}
	for k, v := range rt.Vars {
		c.scope[k] = v
	}
	return c, nil
}

// buildScope assembles the script scope for task: writable $env proxy into
// the process env, read-only per-task data, plus user-defined variable
// roots registered at engine start (spec.md §4.10). The built-in globals
// (os, console, act, step) are injected by the ScriptHost implementation,
// not here.
func buildScope(proc *Process, task *Task) map[string]any {
	scope := map[string]any{
		"$env":    proc.Env,
		"data":    task.Data,
		"inputs":  task.Data,
		"outputs": proc.Outputs,
	}
	for _, k := range []string{"$index", "$value", "uid"} {
		if v, ok := task.Data[k]; ok {
			scope[k] = v
		}
	}
	return scope
}

// Eval evaluates script against the context's scope via the Runtime's
// ScriptHost. Script errors are non-fatal to the scheduler: the caller
// converts a non-nil error into Failed(Error::Script) (spec.md §4.10).
func (c *Context) Eval(script string) (any, error) {
	if c.Runtime.Script == nil {
		return nil, NewError(ErrConfig, "", "no script host configured")
	}
	scope := make(map[string]any, len(c.scope)+3)
	for k, v := range c.scope {
		scope[k] = v
	}
	scope["act"] = map[string]any{"task_id": c.Task.ID, "node_id": c.Node.ID}
	scope["step"] = map[string]any{"node_name": c.Node.Name}
	v, err := c.Runtime.Script.Eval(c.Go, script, scope)
	if err != nil {
		return nil, Wrap(ErrScript, "", err)
	}
	return v, nil
}

// EvalBool evaluates script and coerces the result to a bool, used for `if`
// predicates (spec.md §4.4 branch selection, §4.4 gating).
func (c *Context) EvalBool(script string) (bool, error) {
	if script == "" {
		return true, nil
	}
	v, err := c.Eval(script)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Merge merges delta into the task's Data (and, for the root task, the
// process Env), using last-write-wins per key — the reducer discipline
// described in spec.md §4.4 "outputs merged into parent scope". A key
// containing "." is treated as a dotted patch path (vars.go) so a step can
// merge into a nested field without clobbering its siblings.
func (c *Context) Merge(delta map[string]any) {
	for k, v := range delta {
		if strings.Contains(k, ".") {
			if err := patchVars(c.Task.Data, k, v); err == nil {
				continue
			}
		}
		c.Task.Data[k] = v
	}
}
