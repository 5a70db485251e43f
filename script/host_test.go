package script

import (
	"bytes"
	"context"
	"testing"
)

func TestHost_Eval_ScopeBinding(t *testing.T) {
	h := NewHost(nil)
	v, err := h.Eval(context.Background(), "data.x + 1", map[string]any{
		"data": map[string]any{"x": int64(41)},
	})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	n, ok := v.(int64)
	if !ok || n != 42 {
		t.Errorf("Eval result = %v (%T), want int64 42", v, v)
	}
}

func TestHost_Eval_ConsoleLog(t *testing.T) {
	var buf bytes.Buffer
	h := NewHost(&buf)
	_, err := h.Eval(context.Background(), `console.log("hello")`, nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got := buf.String(); got != "[log] hello\n" {
		t.Errorf("console output = %q, want %q", got, "[log] hello\n")
	}
}

func TestHost_Eval_OSGlobal(t *testing.T) {
	h := NewHost(nil)
	v, err := h.Eval(context.Background(), "typeof os", nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v != "string" {
		t.Errorf("typeof os = %v, want string", v)
	}
}

func TestHost_Eval_SyntaxError(t *testing.T) {
	h := NewHost(nil)
	if _, err := h.Eval(context.Background(), "{{{", nil); err == nil {
		t.Fatal("expected a syntax error")
	}
}

func TestHost_Eval_ContextCancel(t *testing.T) {
	h := NewHost(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Eval(ctx, "while(true) {}", nil); err == nil {
		t.Fatal("expected interruption error for a cancelled context")
	}
}
