package core

import (
	"fmt"
	"reflect"

	"github.com/najoast/syncrt/log"
)

// eventMessage is the family implemented by every EventMessage
// instantiation.
type eventMessage interface {
	eventType() reflect.Type
	eventData() any
	eventPublisher() ActorHandle
}

// EventMessage carries a broadcast of T through the pub-sub actor.
type EventMessage[T any] struct {
	Publisher ActorHandle
	Data      T
}

func (m *EventMessage[T]) eventType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
func (m *EventMessage[T]) eventData() any              { return m.Data }
func (m *EventMessage[T]) eventPublisher() ActorHandle { return m.Publisher }

// SubscribeToEvent asks the pub-sub actor to deliver events of EventType
// to Receiver.
type SubscribeToEvent struct {
	Receiver  ActorHandle
	EventType reflect.Type
}

// UnsubscribeFromEvent reverses SubscribeToEvent.
type UnsubscribeFromEvent struct {
	Receiver  ActorHandle
	EventType reflect.Type
}

// UnsubscribeFromAllEvents drops every subscription of Receiver.
type UnsubscribeFromAllEvents struct {
	Receiver ActorHandle
}

// EventContext is handed to an event handler.
type EventContext[T any] struct {
	Message *NetMessage

	// Publisher is the actor that broadcast the event
	Publisher ActorHandle
	Data      T
}

type eventHandler func(msg *NetMessage, ev eventMessage)

// EventComponent subscribes its actor to event types and broadcasts
// events through the pub-sub actor.
type EventComponent struct {
	net    *NetComponent
	logger log.Logger

	pubSub   ActorHandle
	handlers map[reflect.Type]eventHandler
}

// NewEventComponent creates an EventComponent on top of net. It is inert
// until Initialize names the pub-sub actor.
func NewEventComponent(net *NetComponent, logger log.Logger) *EventComponent {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &EventComponent{
		net:      net,
		logger:   logger,
		handlers: make(map[reflect.Type]eventHandler),
	}
}

// Initialize binds the component to the pub-sub actor and starts
// receiving events.
func (ec *EventComponent) Initialize(pubSub ActorHandle) error {
	if !ec.pubSub.IsZero() {
		return fmt.Errorf("event component of %s already initialized", ec.net.Self())
	}
	ec.pubSub = pubSub
	return RegisterOpenGeneric[eventMessage](ec.net, ec.onEvent)
}

// PubSub returns the pub-sub actor this component talks to.
func (ec *EventComponent) PubSub() ActorHandle {
	return ec.pubSub
}

// Subscribe stores handler for events of T and registers with the
// pub-sub actor.
func Subscribe[T any](ec *EventComponent, handler func(*EventContext[T])) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if _, exists := ec.handlers[t]; exists {
		return fmt.Errorf("%w: event %s in %s", ErrDuplicateHandler, t, ec.net.Self())
	}

	ec.handlers[t] = func(msg *NetMessage, ev eventMessage) {
		data, _ := ev.eventData().(T)
		handler(&EventContext[T]{Message: msg, Publisher: ev.eventPublisher(), Data: data})
	}
	return ec.net.Send(ec.pubSub, &SubscribeToEvent{Receiver: ec.net.Self(), EventType: t})
}

// Unsubscribe drops the handler for T and deregisters from the pub-sub
// actor. Events already in flight are ignored.
func Unsubscribe[T any](ec *EventComponent) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	delete(ec.handlers, t)
	return ec.net.Send(ec.pubSub, &UnsubscribeFromEvent{Receiver: ec.net.Self(), EventType: t})
}

// UnsubscribeAll drops every handler and subscription.
func (ec *EventComponent) UnsubscribeAll() error {
	clear(ec.handlers)
	return ec.net.Send(ec.pubSub, &UnsubscribeFromAllEvents{Receiver: ec.net.Self()})
}

// Broadcast publishes data to every subscriber of T.
func Broadcast[T any](ec *EventComponent, data T) error {
	return ec.net.Send(ec.pubSub, &EventMessage[T]{Publisher: ec.net.Self(), Data: data})
}

// BroadcastCritical publishes data on the critical lane.
func BroadcastCritical[T any](ec *EventComponent, data T) error {
	return ec.net.SendCritical(ec.pubSub, &EventMessage[T]{Publisher: ec.net.Self(), Data: data})
}

func (ec *EventComponent) onEvent(ctx *NetContext[eventMessage]) {
	handler, exists := ec.handlers[ctx.Data.eventType()]
	if !exists {
		return
	}
	handler(ctx.Message, ctx.Data)
}
