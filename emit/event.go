// Package emit provides event emission and observability for the workflow
// engine's lifecycle messaging protocol (spec.md §2 component 11, §4.9).
package emit

import "time"

// Kind is the closed set of lifecycle event kinds the engine emits
// (spec.md §4.9): "start" (process only), "message" (per task state change
// when emit is not disabled), "complete" (process only, terminal success),
// "error" (process only, terminal failure).
type Kind string

const (
	Start    Kind = "start"
	Message  Kind = "message"
	Complete Kind = "complete"
	Error    Kind = "error"
)

// Event is a single lifecycle notification fanned out to subscribers
// (spec.md §4.9: "Messages carry {pid, tid, uses, key, tag, state, inputs,
// outputs, cost, timestamps}").
type Event struct {
	Kind    Kind
	PID     string
	TID     string
	Uses    string
	Key     string
	Tag     string
	State   string
	Inputs  map[string]any
	Outputs map[string]any
	Cost    float64
	Err     string
	Time    time.Time
}
