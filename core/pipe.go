package core

import (
	"fmt"
	"reflect"

	"github.com/najoast/syncrt/log"
)

// PipeHeader is the routing state of a pipe message.
type PipeHeader struct {
	// ID correlates the message with the origin's pending push
	ID uint64

	// Origin is the actor that pushed the message
	Origin ActorHandle

	// Next is the hop Continue forwards to
	Next ActorHandle

	// Err is set once a hop failed; the message then returns to Origin
	Err error
}

// pipeMessage is the family implemented by every PipeMessage
// instantiation.
type pipeMessage interface {
	pipeHeader() *PipeHeader
	pipeData() any
	pipeDataType() reflect.Type
}

// PipeMessage travels from actor to actor carrying data of type D.
type PipeMessage[D any] struct {
	PipeHeader
	Data D
}

func (m *PipeMessage[D]) pipeHeader() *PipeHeader { return &m.PipeHeader }
func (m *PipeMessage[D]) pipeData() any           { return m.Data }
func (m *PipeMessage[D]) pipeDataType() reflect.Type {
	return reflect.TypeOf((*D)(nil)).Elem()
}

type pipeEndpoint func(msg *NetMessage, pm pipeMessage) error

// PipeComponent pushes messages through chains of actors and completes
// the push when the message returns to its origin.
type PipeComponent struct {
	net    *NetComponent
	logger log.Logger

	pending   *pendingCalls
	endpoints map[reflect.Type]pipeEndpoint
	nextHops  map[reflect.Type]ActorHandle
}

var _ Quiescer = (*PipeComponent)(nil)

// NewPipeComponent creates a PipeComponent on top of net.
func NewPipeComponent(net *NetComponent, logger log.Logger) (*PipeComponent, error) {
	if logger == nil {
		logger = log.DefaultLogger
	}
	pc := &PipeComponent{
		net:       net,
		logger:    logger,
		pending:   newPendingCalls(),
		endpoints: make(map[reflect.Type]pipeEndpoint),
		nextHops:  make(map[reflect.Type]ActorHandle),
	}
	if err := RegisterOpenGeneric[pipeMessage](net, pc.onMessage); err != nil {
		return nil, err
	}
	return pc, nil
}

// PipeContext is handed to a pipe handler at an intermediate hop.
type PipeContext[D any] struct {
	Message *NetMessage
	msg     *PipeMessage[D]
	pipe    *PipeComponent
	done    bool
}

// Data returns the current payload.
func (c *PipeContext[D]) Data() D {
	return c.msg.Data
}

// SetData replaces the payload carried to the next hop.
func (c *PipeContext[D]) SetData(data D) {
	c.msg.Data = data
}

// Origin returns the actor that pushed the message.
func (c *PipeContext[D]) Origin() ActorHandle {
	return c.msg.Origin
}

// Next returns the hop Continue will forward to.
func (c *PipeContext[D]) Next() ActorHandle {
	return c.msg.Next
}

// SetNext overrides the next hop for this message only.
func (c *PipeContext[D]) SetNext(next ActorHandle) {
	c.msg.Next = next
}

// Continue forwards the message to the next hop. If the hop cannot be
// reached the message fails back to the origin.
func (c *PipeContext[D]) Continue() error {
	if c.done {
		return ErrAlreadyReplied
	}
	c.done = true
	if err := c.pipe.net.Forward(c.msg.Next, c.Message); err != nil {
		c.pipe.returnToOrigin(c.Message, &c.msg.PipeHeader, err)
		return err
	}
	return nil
}

// Fail sends the message back to the origin carrying err.
func (c *PipeContext[D]) Fail(err error) error {
	if c.done {
		return ErrAlreadyReplied
	}
	c.done = true
	c.pipe.returnToOrigin(c.Message, &c.msg.PipeHeader, err)
	return nil
}

// RegisterPipe handles pipe messages carrying D. The next hop is the
// one set with SetPipeNext, or the origin.
func RegisterPipe[D any](pc *PipeComponent, handler func(*PipeContext[D]) error) error {
	t := reflect.TypeOf((*D)(nil)).Elem()
	if _, exists := pc.endpoints[t]; exists {
		return fmt.Errorf("%w: pipe %s in %s", ErrDuplicateHandler, t, pc.net.Self())
	}

	pc.endpoints[t] = func(msg *NetMessage, pm pipeMessage) error {
		typed, ok := pm.(*PipeMessage[D])
		if !ok {
			return fmt.Errorf("%w: pipe message %T", ErrTypeMismatch, pm)
		}
		ctx := &PipeContext[D]{Message: msg, msg: typed, pipe: pc}
		err := pc.invoke(t, func() error { return handler(ctx) })
		if err == nil {
			return nil
		}
		if ctx.done {
			pc.logger.Warnf("pipe handler for %s in %s failed after forwarding: %v", t, pc.net.Self(), err)
			return nil
		}
		ctx.done = true
		return err
	}
	return nil
}

// RegisterPipeWithNext is RegisterPipe with a fixed next hop.
func RegisterPipeWithNext[D any](pc *PipeComponent, next ActorHandle, handler func(*PipeContext[D]) error) error {
	if err := RegisterPipe(pc, handler); err != nil {
		return err
	}
	SetPipeNext[D](pc, next)
	return nil
}

// SetPipeNext sets the hop that messages carrying D continue to. A zero
// handle restores the default of returning to the origin.
func SetPipeNext[D any](pc *PipeComponent, next ActorHandle) {
	pc.SetNextFor(reflect.TypeOf((*D)(nil)).Elem(), next)
}

// SetNextFor is SetPipeNext keyed by a reflected payload type.
func (pc *PipeComponent) SetNextFor(t reflect.Type, next ActorHandle) {
	if next.IsZero() {
		delete(pc.nextHops, t)
		return
	}
	pc.nextHops[t] = next
}

// Pipe is returned by Push so the caller can attach continuations.
type Pipe[S, C, U, D any] struct {
	call *hiddenContext[S, C, U, D]
}

// Success sets the continuation run with the final payload.
func (p *Pipe[S, C, U, D]) Success(fn func(state S, callContext C, userContext U, data D)) *Pipe[S, C, U, D] {
	p.call.success = fn
	return p
}

// Failure sets the continuation run when a hop failed.
func (p *Pipe[S, C, U, D]) Failure(fn func(state S, callContext C, userContext U, err error)) *Pipe[S, C, U, D] {
	p.call.failure = fn
	return p
}

// Push sends data down a chain starting at dest. A zero dest completes
// the push locally with data unchanged.
func Push[S, C, U, D any](pc *PipeComponent, state S, callContext C, userContext U, dest ActorHandle, data D) *Pipe[S, C, U, D] {
	return push(pc, state, callContext, userContext, dest, data, false)
}

// PushCritical is Push on the critical lane.
func PushCritical[S, C, U, D any](pc *PipeComponent, state S, callContext C, userContext U, dest ActorHandle, data D) *Pipe[S, C, U, D] {
	return push(pc, state, callContext, userContext, dest, data, true)
}

func push[S, C, U, D any](pc *PipeComponent, state S, callContext C, userContext U, dest ActorHandle, data D, critical bool) *Pipe[S, C, U, D] {
	hc := &hiddenContext[S, C, U, D]{state: state, callContext: callContext, userContext: userContext}
	id := pc.pending.add(hc)

	self := pc.net.Self()
	if dest.IsZero() {
		dest = self
	}
	msg := &PipeMessage[D]{
		PipeHeader: PipeHeader{ID: id, Origin: self, Next: dest},
		Data:       data,
	}
	if err := pc.net.send(dest, msg, critical); err != nil {
		msg.Err = err
		pc.net.sendLocal(msg, critical)
	}
	return &Pipe[S, C, U, D]{call: hc}
}

func (pc *PipeComponent) onMessage(ctx *NetContext[pipeMessage]) {
	pm := ctx.Data
	header := pm.pipeHeader()

	if header.Origin != pc.net.Self() {
		pc.handleHop(ctx.Message, pm, header)
		return
	}

	call, exists := pc.pending.take(header.ID)
	if !exists {
		pc.logger.Warnf("pipe message for unknown push %d in %s, discarding", header.ID, pc.net.Self())
		return
	}
	if header.Err != nil {
		call.fail(header.Err)
		return
	}
	if err := call.complete(pm.pipeData()); err != nil {
		pc.logger.Errorf("pipe %d in %s: %v", header.ID, pc.net.Self(), err)
	}
}

func (pc *PipeComponent) handleHop(msg *NetMessage, pm pipeMessage, header *PipeHeader) {
	t := pm.pipeDataType()
	endpoint, exists := pc.endpoints[t]
	if !exists {
		pc.returnToOrigin(msg, header, &InvalidEndpointError{
			Kind:        "pipe",
			MessageType: t.String(),
			Actor:       pc.net.Self(),
		})
		return
	}

	header.Next = header.Origin
	if next, configured := pc.nextHops[t]; configured {
		header.Next = next
	}

	if err := endpoint(msg, pm); err != nil {
		pc.returnToOrigin(msg, header, err)
	}
}

func (pc *PipeComponent) invoke(t reflect.Type, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverError(r)
			pc.logger.Errorf("pipe handler for %s in %s failed: %+v", t, pc.net.Self(), err)
		}
	}()
	return fn()
}

func (pc *PipeComponent) returnToOrigin(msg *NetMessage, header *PipeHeader, err error) {
	header.Err = err
	if ferr := pc.net.Forward(header.Origin, msg); ferr != nil {
		pc.logger.Errorf("pipe %d from %s cannot return to %s: %v", header.ID, pc.net.Self(), header.Origin, ferr)
	}
}

// Pending returns the number of pushes that have not returned.
func (pc *PipeComponent) Pending() int {
	return pc.pending.len()
}

// IsQuiescent reports whether no push is outstanding.
func (pc *PipeComponent) IsQuiescent() bool {
	return pc.pending.len() == 0
}
