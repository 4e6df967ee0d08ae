package core

// Named outputs are typed send helpers bound to the receivers connected to
// an output name with ActorSystem.Connect. Receivers are read at send time.

// NetOutput sends T to every connected receiver.
type NetOutput[T any] struct {
	ctx  *ActorContext
	name string
}

// NewNetOutput binds a NetOutput to the named output of ctx.
func NewNetOutput[T any](ctx *ActorContext, name string) *NetOutput[T] {
	return &NetOutput[T]{ctx: ctx, name: name}
}

// Name returns the output name.
func (o *NetOutput[T]) Name() string { return o.name }

// Send delivers data to every receiver.
func (o *NetOutput[T]) Send(data T) error {
	return o.ctx.Net.SendAll(o.ctx.Receivers(o.name), data)
}

// SendCritical delivers data to every receiver on the critical lane.
func (o *NetOutput[T]) SendCritical(data T) error {
	return o.ctx.Net.SendAllCritical(o.ctx.Receivers(o.name), data)
}

// RpcOutput calls the first connected receiver with D expecting R.
type RpcOutput[D, R any] struct {
	ctx  *ActorContext
	name string
}

// NewRpcOutput binds an RpcOutput to the named output of ctx.
func NewRpcOutput[D, R any](ctx *ActorContext, name string) *RpcOutput[D, R] {
	return &RpcOutput[D, R]{ctx: ctx, name: name}
}

// Name returns the output name.
func (o *RpcOutput[D, R]) Name() string { return o.name }

func (o *RpcOutput[D, R]) target() ActorHandle {
	receivers := o.ctx.Receivers(o.name)
	if len(receivers) == 0 {
		return NoActor
	}
	return receivers[0]
}

// CallOutput calls the receiver of o. Without a receiver the call
// succeeds locally with a zero result.
func CallOutput[S, C, U, D, R any](o *RpcOutput[D, R], state S, callContext C, userContext U, data D) *Rpc[S, C, U, R] {
	return Call[R](o.ctx.Rpc, state, callContext, userContext, o.target(), data)
}

// CallOutputCritical is CallOutput on the critical lane.
func CallOutputCritical[S, C, U, D, R any](o *RpcOutput[D, R], state S, callContext C, userContext U, data D) *Rpc[S, C, U, R] {
	return CallCritical[R](o.ctx.Rpc, state, callContext, userContext, o.target(), data)
}

// PipeOutput pushes D to the first connected receiver, or to the owning
// actor itself when nothing is connected.
type PipeOutput[D any] struct {
	ctx  *ActorContext
	name string
}

// NewPipeOutput binds a PipeOutput to the named output of ctx.
func NewPipeOutput[D any](ctx *ActorContext, name string) *PipeOutput[D] {
	return &PipeOutput[D]{ctx: ctx, name: name}
}

// Name returns the output name.
func (o *PipeOutput[D]) Name() string { return o.name }

func (o *PipeOutput[D]) target() ActorHandle {
	receivers := o.ctx.Receivers(o.name)
	if len(receivers) == 0 {
		return o.ctx.Handle
	}
	return receivers[0]
}

// PushOutput pushes data through o.
func PushOutput[S, C, U, D any](o *PipeOutput[D], state S, callContext C, userContext U, data D) *Pipe[S, C, U, D] {
	return Push(o.ctx.Pipe, state, callContext, userContext, o.target(), data)
}

// PushOutputCritical is PushOutput on the critical lane.
func PushOutputCritical[S, C, U, D any](o *PipeOutput[D], state S, callContext C, userContext U, data D) *Pipe[S, C, U, D] {
	return PushCritical(o.ctx.Pipe, state, callContext, userContext, o.target(), data)
}

// EventOutput broadcasts T through the pub-sub actor.
type EventOutput[T any] struct {
	ctx *ActorContext
}

// NewEventOutput binds an EventOutput to ctx.
func NewEventOutput[T any](ctx *ActorContext) *EventOutput[T] {
	return &EventOutput[T]{ctx: ctx}
}

// Broadcast publishes data.
func (o *EventOutput[T]) Broadcast(data T) error {
	return Broadcast(o.ctx.Event, data)
}

// BroadcastCritical publishes data on the critical lane.
func (o *EventOutput[T]) BroadcastCritical(data T) error {
	return BroadcastCritical(o.ctx.Event, data)
}
