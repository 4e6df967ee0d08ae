package core

import (
	"fmt"
)

// ActorHandle names one actor instance and its declared type.
// Handles are comparable and used as mailbox addresses and map keys.
// The zero value means "no actor".
type ActorHandle struct {
	// ID is the numeric handle ID, never zero for a live actor
	ID uint32

	// Type is the actor's type name
	Type string
}

// NoActor is the zero handle.
var NoActor = ActorHandle{}

// IsZero reports whether h addresses no actor.
func (h ActorHandle) IsZero() bool {
	return h.ID == 0
}

// String returns a string representation of the handle.
func (h ActorHandle) String() string {
	if h.IsZero() {
		return ":none"
	}
	if h.Type != "" {
		return fmt.Sprintf(":%08x(%s)", h.ID, h.Type)
	}
	return fmt.Sprintf(":%08x", h.ID)
}
