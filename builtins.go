package acts

import "context"

// irqHandler implements acts.core.irq: it always interrupts, handing inputs
// straight through as the IRQ request payload (spec.md §4.7).
type irqHandler struct{}

func (irqHandler) Uses() string { return UsesIRQ }
func (irqHandler) Call(_ context.Context, _ *Context, inputs map[string]any) ActResult {
	return Interrupt(inputs)
}

// msgHandler implements acts.core.msg: a fire-and-forget notification that
// completes immediately once persisted (spec.md §4.9).
type msgHandler struct{ sched *Scheduler }

func (h msgHandler) Uses() string { return UsesMsg }
func (h msgHandler) Call(ctx context.Context, sctx *Context, inputs map[string]any) ActResult {
	key, _ := inputs["key"].(string)
	if h.sched.rt.Store != nil {
		msg := Message{
			ID: NewID(), PID: sctx.Proc.ID, TID: sctx.Task.ID, Key: key,
			State: MsgCompleted, Inputs: inputs, Created: nowFunc(), Updated: nowFunc(),
		}
		_ = h.sched.rt.Store.SaveMessage(ctx, msg)
	}
	return Complete(nil)
}

// actionHandler implements acts.core.action: a synchronous passthrough act
// whose outputs are exactly its inputs, used for in-model bookkeeping steps
// that don't need a dedicated package (spec.md §9 Supplemented Features).
type actionHandler struct{}

func (actionHandler) Uses() string { return UsesAction }
func (actionHandler) Call(_ context.Context, _ *Context, inputs map[string]any) ActResult {
	return Complete(inputs)
}

// setHandler implements acts.transform.set: merges inputs directly into the
// task's outputs (spec.md §6).
type setHandler struct{}

func (setHandler) Uses() string { return UsesSet }
func (setHandler) Call(_ context.Context, _ *Context, inputs map[string]any) ActResult {
	return Complete(inputs)
}

// codeHandler implements acts.transform.code: evaluates inputs["code"] as a
// script and returns its value under "result" (spec.md §6, §4.10).
type codeHandler struct{}

func (codeHandler) Uses() string { return UsesCode }
func (codeHandler) Call(ctx context.Context, sctx *Context, inputs map[string]any) ActResult {
	code, _ := inputs["code"].(string)
	v, err := sctx.Eval(code)
	if err != nil {
		return Fail(Wrap(ErrScript, "", err))
	}
	return Complete(map[string]any{"result": v})
}

// subflowStub satisfies registry validation for acts.core.subflow; its Call
// is never invoked because the scheduler dispatches subflow acts natively
// (subflow.go) before consulting the registry.
type subflowStub struct{}

func (subflowStub) Uses() string { return UsesSubflow }
func (subflowStub) Call(_ context.Context, _ *Context, _ map[string]any) ActResult {
	return Fail(NewError(ErrRuntime, "", "acts.core.subflow must be dispatched by the scheduler"))
}

// registerBuiltins adds the core and transform catalog handlers to reg
// (spec.md §6 built-in uses).
func registerBuiltins(reg *Registry, sched *Scheduler) {
	_ = reg.Register(irqHandler{})
	_ = reg.Register(msgHandler{sched: sched})
	_ = reg.Register(actionHandler{})
	_ = reg.Register(setHandler{})
	_ = reg.Register(codeHandler{})
	_ = reg.Register(subflowStub{})
}
