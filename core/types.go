package core

import (
	"time"
)

// minTickBudget is the remaining time below which a Tick stops taking on
// more normal-priority work.
const minTickBudget = time.Millisecond

// TickResult tells the scheduler whether a component still has work.
type TickResult uint8

const (
	// TickWait means the component drained its work for now
	TickWait TickResult = iota

	// TickYield means the component ran out of time with work left
	TickYield
)

// String returns the string representation of TickResult.
func (r TickResult) String() string {
	switch r {
	case TickWait:
		return "wait"
	case TickYield:
		return "yield"
	default:
		return "unknown"
	}
}

// WaitResult is returned by AsyncComponent.WaitAsync.
type WaitResult uint8

const (
	// WaitContinuing means the component woke up and should be waited on again
	WaitContinuing WaitResult = iota

	// WaitCompleted means the component has nothing left to wait for
	WaitCompleted
)

// String returns the string representation of WaitResult.
func (r WaitResult) String() string {
	switch r {
	case WaitContinuing:
		return "continuing"
	case WaitCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// ActorState represents the current state of an Actor.
type ActorState uint8

const (
	// ActorStateIdle means the Actor has been spawned but not started
	ActorStateIdle ActorState = iota

	// ActorStateRunning means the Actor is being scheduled
	ActorStateRunning

	// ActorStateStopping means the Actor is shutting down
	ActorStateStopping

	// ActorStateStopped means the Actor has been stopped
	ActorStateStopped
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateIdle:
		return "idle"
	case ActorStateRunning:
		return "running"
	case ActorStateStopping:
		return "stopping"
	case ActorStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ActorOptions contains configuration options for spawning an Actor.
type ActorOptions struct {
	// Type overrides the actor type name recorded in its handle.
	// Defaults to the Go type name of the actor.
	Type string

	// Name registers the actor for lookup by name (optional)
	Name string

	// Group selects the execution group that ticks the actor
	Group int
}

// ActorStats contains runtime statistics for an Actor.
type ActorStats struct {
	Handle ActorHandle
	Name   string
	Group  int
	State  ActorState

	// Total messages dispatched by the mailbox
	MessagesProcessed uint64

	// Messages currently queued in both lanes
	Queued int

	Suspended     bool
	PendingRpc    int
	PendingPipe   int
	ActiveJobs    int
	WaitingJobs   int
	PendingTimers int
}

func enoughTime(end time.Time) bool {
	return time.Until(end) > minTickBudget
}
