// Package script implements the embedded JS Eval contract (spec.md §4.10)
// used by acts.transform.code, `if`/`while`/`some(rule)` predicates, and
// catch/timeout handler expressions. It is built on goja
// (github.com/dop251/goja), grounded on the original implementation's
// QuickJS module bindings (env/moudle/{console,os}.rs) — translated to
// goja's API, not transliterated from Rust.
package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/dop251/goja"
)

// Host evaluates acts script expressions via a fresh goja.Runtime per call.
// A fresh runtime per Eval keeps the host stateless and safe to share across
// processes without locking: the scheduler's single-consumer dispatch loop
// is the only caller, but Host makes no assumption about that.
type Host struct {
	console io.Writer
}

// NewHost creates a Host that writes console.log/info/warn/error output to
// w (defaults to os.Stdout).
func NewHost(w io.Writer) *Host {
	if w == nil {
		w = os.Stdout
	}
	return &Host{console: w}
}

// Eval implements acts.ScriptHost. scope's entries become global bindings;
// the fixed globals `os` and `console` are always injected (spec.md §4.10,
// §9 Supplemented Features: original `env/moudle/{os,console}.rs`).
func (h *Host) Eval(ctx context.Context, script string, scope map[string]any) (any, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if err := vm.Set("os", runtime.GOOS); err != nil {
		return nil, fmt.Errorf("script: bind os: %w", err)
	}
	if err := vm.Set("console", newConsole(h.console)); err != nil {
		return nil, fmt.Errorf("script: bind console: %w", err)
	}
	for k, v := range scope {
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("script: bind %q: %w", k, err)
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-done:
		}
	}()
	defer close(done)

	v, err := vm.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("script: eval: %w", err)
	}
	return v.Export(), nil
}

// console is the `console.log/info/warn/error` global (original
// env/moudle/console.rs: println! with a "[level] " prefix).
type console struct{ w io.Writer }

func newConsole(w io.Writer) *console { return &console{w: w} }

func (c *console) Log(msg string)   { fmt.Fprintf(c.w, "[log] %s\n", msg) }
func (c *console) Info(msg string)  { fmt.Fprintf(c.w, "[info] %s\n", msg) }
func (c *console) Warn(msg string)  { fmt.Fprintf(c.w, "[warn] %s\n", msg) }
func (c *console) Error(msg string) { fmt.Fprintf(c.w, "[error] %s\n", msg) }
