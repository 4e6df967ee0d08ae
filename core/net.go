package core

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/najoast/syncrt/log"
)

// NetMessage is the envelope of one in-process message. One envelope is
// built per destination and is owned by the mailbox it was delivered to.
type NetMessage struct {
	// Source is the actor that sent the message
	Source ActorHandle

	// Data is the payload, never nil
	Data any

	// Critical messages skip the normal lane and ignore the time budget
	Critical bool
}

// NetContext is the typed view of a message handed to a handler.
type NetContext[T any] struct {
	Message *NetMessage
	Data    T
}

// Source returns the sender of the message.
func (c *NetContext[T]) Source() ActorHandle {
	return c.Message.Source
}

type netHandler func(msg *NetMessage)

type familyHandler struct {
	family  reflect.Type
	handler netHandler
}

// NetComponent is an actor's mailbox. It holds a critical and a normal
// lane and dispatches payloads by type.
type NetComponent struct {
	self   ActorHandle
	router *Router
	waker  Waker
	timer  *TimerComponent
	logger log.Logger

	critical *queue[*NetMessage]
	normal   *queue[*NetMessage]

	// written during Inject only
	handlers map[reflect.Type]netHandler
	families []familyHandler
	resolved map[reflect.Type]netHandler

	suspended *atomic.Bool
	processed *atomic.Uint64
}

var (
	_ RunnableComponent = (*NetComponent)(nil)
	_ Quiescer          = (*NetComponent)(nil)
)

// NewNetComponent creates the mailbox of self. Messages are routed
// through router, waker is notified when self has new work and timer
// backs DelayedSend.
func NewNetComponent(self ActorHandle, router *Router, waker Waker, timer *TimerComponent, logger log.Logger) *NetComponent {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &NetComponent{
		self:      self,
		router:    router,
		waker:     waker,
		timer:     timer,
		logger:    logger,
		critical:  newQueue[*NetMessage](),
		normal:    newQueue[*NetMessage](),
		handlers:  make(map[reflect.Type]netHandler),
		resolved:  make(map[reflect.Type]netHandler),
		suspended: atomic.NewBool(false),
		processed: atomic.NewUint64(0),
	}
}

// Self returns the handle this mailbox belongs to.
func (n *NetComponent) Self() ActorHandle {
	return n.self
}

// Register binds handler to payloads of exactly type T.
func Register[T any](n *NetComponent, handler func(*NetContext[T])) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, exists := n.handlers[t]; exists {
		return fmt.Errorf("%w: %s in %s", ErrDuplicateHandler, t, n.self)
	}

	n.handlers[t] = func(msg *NetMessage) {
		handler(&NetContext[T]{Message: msg, Data: msg.Data.(T)})
	}
	return nil
}

// RegisterOpenGeneric binds handler to every payload implementing the
// interface F. Generic message types declare such an interface so all of
// their instantiations share one handler. Exact registrations win.
func RegisterOpenGeneric[F any](n *NetComponent, handler func(*NetContext[F])) error {
	family := reflect.TypeOf((*F)(nil)).Elem()
	if family.Kind() != reflect.Interface {
		return fmt.Errorf("%w: %s", ErrNotFamily, family)
	}
	for _, f := range n.families {
		if f.family == family {
			return fmt.Errorf("%w: %s in %s", ErrDuplicateHandler, family, n.self)
		}
	}

	n.families = append(n.families, familyHandler{
		family: family,
		handler: func(msg *NetMessage) {
			handler(&NetContext[F]{Message: msg, Data: msg.Data.(F)})
		},
	})
	return nil
}

func (n *NetComponent) handlerFor(t reflect.Type) netHandler {
	if h, exists := n.handlers[t]; exists {
		return h
	}
	if h, cached := n.resolved[t]; cached {
		return h
	}

	var found netHandler
	for _, f := range n.families {
		if t.Implements(f.family) {
			found = f.handler
			break
		}
	}
	n.resolved[t] = found
	return found
}

// Send delivers data to dest on the normal lane.
func (n *NetComponent) Send(dest ActorHandle, data any) error {
	return n.send(dest, data, false)
}

// SendCritical delivers data to dest on the critical lane.
func (n *NetComponent) SendCritical(dest ActorHandle, data any) error {
	return n.send(dest, data, true)
}

// SendAll delivers data to every destination, one envelope each.
func (n *NetComponent) SendAll(dests []ActorHandle, data any) error {
	return n.sendAll(dests, data, false)
}

// SendAllCritical is SendAll on the critical lane.
func (n *NetComponent) SendAllCritical(dests []ActorHandle, data any) error {
	return n.sendAll(dests, data, true)
}

func (n *NetComponent) sendAll(dests []ActorHandle, data any, critical bool) error {
	var err error
	for _, dest := range dests {
		err = multierr.Append(err, n.send(dest, data, critical))
	}
	return err
}

func (n *NetComponent) send(dest ActorHandle, data any, critical bool) error {
	if data == nil {
		return ErrNilPayload
	}
	return n.Forward(dest, &NetMessage{Source: n.self, Data: data, Critical: critical})
}

// Forward hands an existing envelope to dest, keeping its lane.
func (n *NetComponent) Forward(dest ActorHandle, msg *NetMessage) error {
	if dest == n.self {
		n.enqueue(msg)
		return nil
	}

	target, exists := n.router.Lookup(dest)
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownActor, dest)
	}
	target.enqueue(msg)
	return nil
}

// sendLocal queues data on this mailbox as if self had sent it.
func (n *NetComponent) sendLocal(data any, critical bool) {
	n.enqueue(&NetMessage{Source: n.self, Data: data, Critical: critical})
}

// DelayedSend sends data to dest after delay. A non-positive delay sends
// at once and returns the send error, even after global cancellation.
func (n *NetComponent) DelayedSend(delay time.Duration, dest ActorHandle, data any) error {
	if delay <= 0 {
		return n.Send(dest, data)
	}
	n.timer.DelayedExecute(delay, func() {
		if err := n.Send(dest, data); err != nil {
			n.logger.Errorf("delayed send from %s failed: %v", n.self, err)
		}
	})
	return nil
}

func (n *NetComponent) enqueue(msg *NetMessage) {
	if msg.Critical {
		n.critical.Push(msg)
	} else {
		n.normal.Push(msg)
	}
	if n.waker != nil {
		n.waker.WakeUpActor(n.self)
	}
}

// Tick drains the mailbox, critical lane first. Critical messages are
// processed even after end has passed.
func (n *NetComponent) Tick(end time.Time) TickResult {
	for !n.suspended.Load() && (enoughTime(end) || n.critical.Len() > 0) {
		if !n.process() {
			return TickWait
		}
	}
	if n.suspended.Load() {
		return TickWait
	}
	return TickYield
}

func (n *NetComponent) process() bool {
	msg, ok := n.critical.Pop()
	if !ok {
		msg, ok = n.normal.Pop()
	}
	if !ok {
		return false
	}
	n.dispatch(msg)
	return true
}

func (n *NetComponent) dispatch(msg *NetMessage) {
	t := reflect.TypeOf(msg.Data)
	handler := n.handlerFor(t)
	if handler == nil {
		n.logger.Warnf("no handler registered for %s in %s, discarding message", t, n.self)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorf("handler for %s in %s failed: %+v", t, n.self, recoverError(r))
		}
	}()
	n.processed.Inc()
	handler(msg)
}

// Suspend stops Tick from dispatching. Queued messages are kept.
func (n *NetComponent) Suspend() {
	n.suspended.Store(true)
}

// Resume re-enables dispatching and wakes the actor.
func (n *NetComponent) Resume() {
	n.suspended.Store(false)
	if n.waker != nil {
		n.waker.WakeUpActor(n.self)
	}
}

// IsSuspended reports whether the mailbox is suspended.
func (n *NetComponent) IsSuspended() bool {
	return n.suspended.Load()
}

// Len returns the number of queued messages in both lanes.
func (n *NetComponent) Len() int {
	return n.critical.Len() + n.normal.Len()
}

// Processed returns the number of messages dispatched to a handler.
func (n *NetComponent) Processed() uint64 {
	return n.processed.Load()
}

// IsQuiescent reports whether both lanes are empty.
func (n *NetComponent) IsQuiescent() bool {
	return n.Len() == 0
}
