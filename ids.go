package acts

import "github.com/google/uuid"

// NewID returns a globally unique string identifier for a process, task,
// message, event, or package record. Backed by UUIDv4, matching the
// "IDs are globally unique strings" requirement of the persisted state layout.
func NewID() string {
	return uuid.NewString()
}
