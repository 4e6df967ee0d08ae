package core

import (
	"context"
	"time"
)

// RunnableComponent is ticked by the scheduler inside an actor's time slice.
type RunnableComponent interface {
	// Tick does as much work as fits before end and reports whether work
	// remains.
	Tick(end time.Time) TickResult
}

// AsyncComponent blocks outside the actor's time slice until it has work.
type AsyncComponent interface {
	// WaitAsync returns once the component needs a Tick, or Completed once
	// nothing is left to wait for.
	WaitAsync(ctx context.Context) (WaitResult, error)
}

// Quiescer reports whether a component has no outstanding work.
type Quiescer interface {
	IsQuiescent() bool
}

// Waker is implemented by the scheduler. Components call it when an actor
// has new work.
type Waker interface {
	WakeUpActor(handle ActorHandle)
}

// Actor is implemented by user actors. Inject is called once at spawn time
// and is where handlers, subscriptions and outputs are declared.
type Actor interface {
	Inject(ctx *ActorContext) error
}

// Initializer is called for every actor before any actor starts.
type Initializer interface {
	Initialize() error
}

// Starter is called when the system starts, before scheduling begins.
type Starter interface {
	Start() error
}

// Stopper is called after scheduling has stopped.
type Stopper interface {
	Stop() error
}

// Shutdowner is called when the system is torn down.
type Shutdowner interface {
	Shutdown() error
}
