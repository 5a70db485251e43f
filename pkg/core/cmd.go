// Package core implements acts.core.cmd, an internal-command act that
// dispatches a named sub-command against its inputs — supplementing the
// root package's acts.core.action passthrough with the original
// implementation's named-command form (model/act/cmd.rs's Cmd{name, inputs},
// dispatched the way export/executor/task_executor.rs dispatches named
// operations against the runtime). Out of scope for spec.md's Non-goals,
// but in-scope per SPEC_FULL.md §6 Supplemented Features.
package core

import (
	"context"
	"fmt"

	acts "github.com/dshills/acts-go"
)

// Uses is the package identifier acts.core.cmd acts register under.
const Uses = "acts.core.cmd"

// CmdFunc executes one named command against inputs, returning its outputs.
type CmdFunc func(ctx context.Context, sctx *acts.Context, inputs map[string]any) (map[string]any, error)

// Handler implements acts.PackageHandler for acts.core.cmd: inputs.name
// selects a registered CmdFunc, inputs.inputs (or inputs itself, minus
// "name") is passed through to it.
type Handler struct {
	cmds map[string]CmdFunc
}

// NewHandler creates a Handler with the given named commands registered.
func NewHandler(cmds map[string]CmdFunc) *Handler {
	h := &Handler{cmds: make(map[string]CmdFunc, len(cmds))}
	for name, fn := range cmds {
		h.cmds[name] = fn
	}
	return h
}

// Register adds or replaces a named command.
func (h *Handler) Register(name string, fn CmdFunc) { h.cmds[name] = fn }

func (h *Handler) Uses() string { return Uses }

func (h *Handler) Call(ctx context.Context, sctx *acts.Context, inputs map[string]any) acts.ActResult {
	name, _ := inputs["name"].(string)
	fn, ok := h.cmds[name]
	if !ok {
		return acts.Fail(acts.NewError(acts.ErrAction, "", fmt.Sprintf("acts.core.cmd: unknown command %q", name)))
	}

	cmdInputs, _ := inputs["inputs"].(map[string]any)
	if cmdInputs == nil {
		cmdInputs = make(map[string]any, len(inputs))
		for k, v := range inputs {
			if k != "name" {
				cmdInputs[k] = v
			}
		}
	}

	outputs, err := fn(ctx, sctx, cmdInputs)
	if err != nil {
		return acts.Fail(acts.Wrap(acts.ErrAction, "", err))
	}
	return acts.Complete(outputs)
}

// LogCmd prints inputs.message to the process's emitted log (via the
// scheduler's ordinary lifecycle messaging path, not a direct write) and
// passes inputs through unchanged — a no-op command mainly useful for
// tracing test model execution.
func LogCmd(_ context.Context, _ *acts.Context, inputs map[string]any) (map[string]any, error) {
	return inputs, nil
}

// NoopCmd always succeeds with empty outputs, for model steps that exist
// only to exercise control-flow (catches, timeouts) without a real action.
func NoopCmd(_ context.Context, _ *acts.Context, _ map[string]any) (map[string]any, error) {
	return nil, nil
}
