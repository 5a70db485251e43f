package acts

import (
	"context"
	"encoding/json"

	"github.com/dshills/acts-go/emit"
)

// Engine is the top-level entry point: it owns the Runtime, the Scheduler,
// and the built-in package registry, and exposes the deploy/start/event/
// query surface described in spec.md §6.
type Engine struct {
	Runtime   *Runtime
	Scheduler *Scheduler
}

// NewEngine wires a Runtime and Scheduler together and registers the
// built-in core/transform packages (spec.md §2, §6).
func NewEngine(st Store, sh ScriptHost, em emit.Emitter, cfg RuntimeConfig) *Engine {
	reg := NewRegistry()
	rt := NewRuntime(st, sh, reg, em, cfg)
	sched := NewScheduler(rt)
	registerBuiltins(reg, sched)
	return &Engine{Runtime: rt, Scheduler: sched}
}

// Run starts the scheduler's dispatch loop and timeout tick source; it
// blocks until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	go e.Scheduler.RunTicks(ctx)
	return e.Scheduler.Run(ctx)
}

// Deploy compiles wf against the registry, persists it, and registers it
// for start/subflow lookup (spec.md §4.1, §6 "deploy(model)").
func (e *Engine) Deploy(ctx context.Context, wf Workflow) (*Model, error) {
	tree, err := BuildTree(wf, e.Runtime.Registry)
	if err != nil {
		return nil, err
	}
	m := &Model{Workflow: wf, Tree: tree}
	if e.Runtime.Store != nil {
		data, err := json.Marshal(wf)
		if err != nil {
			return nil, Wrap(ErrConvert, "", err)
		}
		rec := ModelRecord{
			ID: wf.ID, Name: wf.Name, Ver: wf.Ver, Size: len(data),
			Data: data, Created: nowFunc(), Updated: nowFunc(),
		}
		if err := e.Runtime.Store.SaveModel(ctx, rec); err != nil {
			return nil, Wrap(ErrStore, "", err)
		}
	}
	e.Scheduler.RegisterModel(m)
	return m, nil
}

// Start creates a new Process from a deployed model and enqueues its root
// task (spec.md §4.2, §6 "start(mid, inputs)").
func (e *Engine) Start(ctx context.Context, mid string, inputs map[string]any) (string, error) {
	model, ok := e.Scheduler.models[mid]
	if !ok {
		return "", NewError(ErrRuntime, "", "unknown model: "+mid)
	}
	pid := NewID()
	proc := NewProcess(pid, model, inputs)
	if err := e.Scheduler.StartProcess(ctx, proc); err != nil {
		return "", err
	}
	return pid, nil
}

// Event starts every deployed model whose `on` list names this event,
// merging the trigger's configured params under the caller's inputs
// (spec.md §3 Event, §6 "event(id, inputs)").
func (e *Engine) Event(ctx context.Context, name string, inputs map[string]any) ([]string, error) {
	var pids []string
	for mid, model := range e.Scheduler.models {
		for _, trig := range model.Workflow.On {
			if trig.Name != name {
				continue
			}
			merged := make(map[string]any, len(trig.Params)+len(inputs))
			for k, v := range trig.Params {
				merged[k] = v
			}
			for k, v := range inputs {
				merged[k] = v
			}
			pid, err := e.Start(ctx, mid, merged)
			if err != nil {
				return pids, err
			}
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// QueryModels, QueryProcs, QueryTasks, QueryMessages, QueryEvents, and
// QueryPackages forward paged reads to the Store (spec.md §6 "Query
// endpoints paged").
func (e *Engine) QueryModels(ctx context.Context, q PageQuery) (PageResult[ModelRecord], error) {
	return e.Runtime.Store.QueryModels(ctx, q)
}

func (e *Engine) QueryProcs(ctx context.Context, q PageQuery) (PageResult[ProcRecord], error) {
	return e.Runtime.Store.QueryProcs(ctx, q)
}

func (e *Engine) QueryTasks(ctx context.Context, q PageQuery) (PageResult[TaskRecord], error) {
	return e.Runtime.Store.QueryTasks(ctx, q)
}

func (e *Engine) QueryMessages(ctx context.Context, q PageQuery) (PageResult[Message], error) {
	return e.Runtime.Store.QueryMessages(ctx, q)
}

func (e *Engine) QueryEvents(ctx context.Context, q PageQuery) (PageResult[EventRecord], error) {
	return e.Runtime.Store.QueryEvents(ctx, q)
}

func (e *Engine) QueryPackages(ctx context.Context, q PageQuery) (PageResult[PackageRecord], error) {
	return e.Runtime.Store.QueryPackages(ctx, q)
}
