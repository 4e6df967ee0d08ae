package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Routing and configuration errors
var (
	ErrUnknownActor     = errors.New("unknown actor")
	ErrNilPayload       = errors.New("message payload is nil")
	ErrDuplicateHandler = errors.New("handler already registered")
	ErrNotFamily        = errors.New("open generic handler requires an interface type")
	ErrRoutingFrozen    = errors.New("routing table is frozen")
	ErrNameTaken        = errors.New("actor name already registered")
)

// Call errors
var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrTypeMismatch    = errors.New("result type mismatch")
	ErrAlreadyReplied  = errors.New("response already sent")
)

// System errors
var (
	ErrSystemRunning         = errors.New("actor system is running")
	ErrSystemNotRunning      = errors.New("actor system is not running")
	ErrInvalidGroup          = errors.New("invalid execution group")
	ErrAsyncComponentsLeaked = errors.New("async components did not complete")
)

// InvalidEndpointError is delivered to a caller when the destination actor
// has no handler for the rpc or pipe payload it was sent.
type InvalidEndpointError struct {
	// Kind is "rpc" or "pipe"
	Kind        string
	MessageType string
	Actor       ActorHandle
}

func (e *InvalidEndpointError) Error() string {
	return fmt.Sprintf("the %s endpoint '%s' does not exist in actor '%s'", e.Kind, e.MessageType, e.Actor.Type)
}

// Is makes errors.Is(err, ErrInvalidEndpoint) match.
func (e *InvalidEndpointError) Is(target error) bool {
	return target == ErrInvalidEndpoint
}

// recoverError turns a recovered panic value into an error with a stack.
func recoverError(r any) error {
	if err, ok := r.(error); ok {
		return errors.WithStack(err)
	}
	return errors.Errorf("panic: %v", r)
}
