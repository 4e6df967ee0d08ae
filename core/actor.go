package core

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/atomic"

	"github.com/najoast/syncrt/log"
)

// ActorContext gives an actor access to its components. It is handed to
// Actor.Inject and stays valid for the actor's lifetime.
type ActorContext struct {
	Handle ActorHandle
	Name   string
	Logger log.Logger

	Net   *NetComponent
	Timer *TimerComponent
	IO    *IOComponent
	Rpc   *RpcComponent
	Pipe  *PipeComponent
	Event *EventComponent

	ctx     context.Context
	outputs map[string][]ActorHandle
	system  *ActorSystem
}

// Context returns the global cancellation context of the system.
func (c *ActorContext) Context() context.Context {
	return c.ctx
}

// System returns the system the actor belongs to.
func (c *ActorContext) System() *ActorSystem {
	return c.system
}

// Receivers returns the actors connected to the named output.
func (c *ActorContext) Receivers(output string) []ActorHandle {
	return c.outputs[output]
}

// actorCell is the scheduler's record of one actor.
type actorCell struct {
	handle ActorHandle
	name   string
	group  int
	actor  Actor
	ctx    *ActorContext

	runnables []RunnableComponent
	asyncs    []AsyncComponent

	ready *atomic.Bool
	state *atomic.Uint32

	// async component loops still running
	liveLoops *atomic.Int32
}

func newActorCell(actor Actor, ctx *ActorContext, group int) *actorCell {
	cell := &actorCell{
		handle:    ctx.Handle,
		name:      ctx.Name,
		group:     group,
		actor:     actor,
		ctx:       ctx,
		ready:     atomic.NewBool(true),
		state:     atomic.NewUint32(uint32(ActorStateIdle)),
		liveLoops: atomic.NewInt32(0),
	}

	cell.runnables = []RunnableComponent{ctx.Net, ctx.Timer, ctx.IO}
	if r, ok := actor.(RunnableComponent); ok {
		cell.runnables = append(cell.runnables, r)
	}
	cell.asyncs = []AsyncComponent{ctx.Timer, ctx.IO}
	if a, ok := actor.(AsyncComponent); ok {
		cell.asyncs = append(cell.asyncs, a)
	}
	return cell
}

// Tick runs every runnable component of the actor once.
func (c *actorCell) Tick(end time.Time) TickResult {
	result := TickWait
	for _, r := range c.runnables {
		if r.Tick(end) == TickYield {
			result = TickYield
		}
	}
	return result
}

func (c *actorCell) State() ActorState {
	return ActorState(c.state.Load())
}

func (c *actorCell) setState(s ActorState) {
	c.state.Store(uint32(s))
}

func (c *actorCell) stats() ActorStats {
	return ActorStats{
		Handle:            c.handle,
		Name:              c.name,
		Group:             c.group,
		State:             c.State(),
		MessagesProcessed: c.ctx.Net.Processed(),
		Queued:            c.ctx.Net.Len(),
		Suspended:         c.ctx.Net.IsSuspended(),
		PendingRpc:        c.ctx.Rpc.Pending(),
		PendingPipe:       c.ctx.Pipe.Pending(),
		ActiveJobs:        c.ctx.IO.ActiveCount(),
		WaitingJobs:       c.ctx.IO.WaitingCount(),
		PendingTimers:     c.ctx.Timer.Pending(),
	}
}

// actorTypeName returns the Go type name of an actor, without the pointer.
func actorTypeName(actor Actor) string {
	t := reflect.TypeOf(actor)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
