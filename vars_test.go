package acts

import "testing"

// TestPatchVars_NestedPath verifies a dotted path creates the intermediate
// object structure and sets the leaf value (vars.go, spec.md §4.10).
func TestPatchVars_NestedPath(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"x": 1}}
	if err := patchVars(dst, "a.y", 2); err != nil {
		t.Fatalf("patchVars: %v", err)
	}
	inner, ok := dst["a"].(map[string]any)
	if !ok {
		t.Fatalf("dst[a] = %v (%T), want map", dst["a"], dst["a"])
	}
	if inner["y"] != float64(2) {
		t.Errorf("dst[a][y] = %v, want 2", inner["y"])
	}
	if inner["x"] != float64(1) {
		t.Errorf("patching a.y must not clobber sibling a.x, got %v", inner["x"])
	}
}

// TestPatchVars_CreatesMissingIntermediateObjects verifies patching a path
// whose parent object doesn't exist yet creates it.
func TestPatchVars_CreatesMissingIntermediateObjects(t *testing.T) {
	dst := map[string]any{}
	if err := patchVars(dst, "a.b.c", "leaf"); err != nil {
		t.Fatalf("patchVars: %v", err)
	}
	a, ok := dst["a"].(map[string]any)
	if !ok {
		t.Fatalf("dst[a] = %v, want map", dst["a"])
	}
	b, ok := a["b"].(map[string]any)
	if !ok {
		t.Fatalf("dst[a][b] = %v, want map", a["b"])
	}
	if b["c"] != "leaf" {
		t.Errorf("dst[a][b][c] = %v, want \"leaf\"", b["c"])
	}
}

// TestLookupVar_AbsentPath verifies lookupVar reports absence rather than
// a zero value for a path that doesn't exist.
func TestLookupVar_AbsentPath(t *testing.T) {
	_, ok := lookupVar(map[string]any{"a": 1}, "a.b.c")
	if ok {
		t.Error("lookupVar on an absent path returned ok=true")
	}
}

// TestLookupVar_PresentPath verifies lookupVar resolves a nested value.
func TestLookupVar_PresentPath(t *testing.T) {
	src := map[string]any{"a": map[string]any{"b": "found"}}
	v, ok := lookupVar(src, "a.b")
	if !ok || v != "found" {
		t.Errorf("lookupVar(a.b) = (%v, %v), want (\"found\", true)", v, ok)
	}
}

// TestContext_Merge_DottedPathDoesNotClobberSiblings verifies Context.Merge
// routes a "."-containing key through the dotted-path patcher instead of
// overwriting the whole top-level key (context.go Merge, spec.md §4.4
// "outputs merged into parent scope").
func TestContext_Merge_DottedPathDoesNotClobberSiblings(t *testing.T) {
	tree := NewTaskTree("pid-1")
	task := tree.NewTask("node-1", "")
	task.Data["result"] = map[string]any{"kept": "value"}

	c := &Context{Task: task}
	c.Merge(map[string]any{"result.added": "new"})

	result, ok := task.Data["result"].(map[string]any)
	if !ok {
		t.Fatalf("task.Data[result] = %v, want map", task.Data["result"])
	}
	if result["kept"] != "value" {
		t.Errorf("dotted merge clobbered sibling field: %v", result)
	}
	if result["added"] != "new" {
		t.Errorf("dotted merge did not set the target field: %v", result)
	}
}

// TestContext_Merge_PlainKeyLastWriteWins verifies a plain (no ".") key
// is set directly, last-write-wins.
func TestContext_Merge_PlainKeyLastWriteWins(t *testing.T) {
	tree := NewTaskTree("pid-1")
	task := tree.NewTask("node-1", "")
	task.Data["x"] = 1

	c := &Context{Task: task}
	c.Merge(map[string]any{"x": 2})

	if task.Data["x"] != 2 {
		t.Errorf("task.Data[x] = %v, want 2", task.Data["x"])
	}
}
