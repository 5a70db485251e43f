package acts

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// patchVars applies a dotted-path patch (e.g. "a.b.c") into dst, using
// gjson/sjson to round-trip dst through JSON rather than hand-rolling a
// nested-map walker (spec.md §4.10's "outputs merged into parent scope",
// generalized from a flat key set to dotted paths per SPEC_FULL.md's
// internal/vars scope patch helpers). A plain key with no "." is set
// directly, bypassing the JSON round-trip.
func patchVars(dst map[string]any, path string, value any) error {
	raw, err := json.Marshal(dst)
	if err != nil {
		return Wrap(ErrConvert, "", err)
	}
	patched, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return Wrap(ErrConvert, "", err)
	}
	var merged map[string]any
	if err := json.Unmarshal(patched, &merged); err != nil {
		return Wrap(ErrConvert, "", err)
	}
	for k := range dst {
		delete(dst, k)
	}
	for k, v := range merged {
		dst[k] = v
	}
	return nil
}

// lookupVar reads a dotted-path value out of src via gjson, returning
// (nil, false) when the path is absent.
func lookupVar(src map[string]any, path string) (any, bool) {
	raw, err := json.Marshal(src)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}
