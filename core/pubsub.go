package core

import (
	"reflect"

	goset "github.com/deckarep/golang-set/v2"
)

// PubSubTypeName is the type name of the pub-sub actor handle.
const PubSubTypeName = "PubSub"

// PubSubActor fans broadcasts out to the subscribers of each event type.
// Every system spawns one.
type PubSubActor struct {
	ctx         *ActorContext
	subscribers map[reflect.Type]goset.Set[ActorHandle]
}

var _ Actor = (*PubSubActor)(nil)

// NewPubSubActor creates an empty pub-sub actor.
func NewPubSubActor() *PubSubActor {
	return &PubSubActor{
		subscribers: make(map[reflect.Type]goset.Set[ActorHandle]),
	}
}

// Inject registers the control and event handlers.
func (p *PubSubActor) Inject(ctx *ActorContext) error {
	p.ctx = ctx
	if err := Register(ctx.Net, p.onSubscribe); err != nil {
		return err
	}
	if err := Register(ctx.Net, p.onUnsubscribe); err != nil {
		return err
	}
	if err := Register(ctx.Net, p.onUnsubscribeAll); err != nil {
		return err
	}
	return RegisterOpenGeneric[eventMessage](ctx.Net, p.onEvent)
}

func (p *PubSubActor) onSubscribe(ctx *NetContext[*SubscribeToEvent]) {
	receivers, exists := p.subscribers[ctx.Data.EventType]
	if !exists {
		receivers = goset.NewThreadUnsafeSet[ActorHandle]()
		p.subscribers[ctx.Data.EventType] = receivers
	}
	if !receivers.Add(ctx.Data.Receiver) {
		p.ctx.Logger.Warnf("%s already subscribed to %s", ctx.Data.Receiver, ctx.Data.EventType)
	}
}

func (p *PubSubActor) onUnsubscribe(ctx *NetContext[*UnsubscribeFromEvent]) {
	receivers, exists := p.subscribers[ctx.Data.EventType]
	if !exists || !receivers.Contains(ctx.Data.Receiver) {
		p.ctx.Logger.Warnf("%s is not subscribed to %s", ctx.Data.Receiver, ctx.Data.EventType)
		return
	}
	receivers.Remove(ctx.Data.Receiver)
	if receivers.Cardinality() == 0 {
		delete(p.subscribers, ctx.Data.EventType)
	}
}

func (p *PubSubActor) onUnsubscribeAll(ctx *NetContext[*UnsubscribeFromAllEvents]) {
	for eventType, receivers := range p.subscribers {
		receivers.Remove(ctx.Data.Receiver)
		if receivers.Cardinality() == 0 {
			delete(p.subscribers, eventType)
		}
	}
}

func (p *PubSubActor) onEvent(ctx *NetContext[eventMessage]) {
	receivers, exists := p.subscribers[ctx.Data.eventType()]
	if !exists {
		return
	}

	targets := receivers.ToSlice()
	var err error
	if ctx.Message.Critical {
		err = p.ctx.Net.SendAllCritical(targets, ctx.Data)
	} else {
		err = p.ctx.Net.SendAll(targets, ctx.Data)
	}
	if err != nil {
		p.ctx.Logger.Errorf("event %s fan-out failed: %v", ctx.Data.eventType(), err)
	}
}

// subscriberCount returns the number of receivers of t. The map is owned
// by the actor's tick, so callers must run on it or while it is quiescent.
func (p *PubSubActor) subscriberCount(t reflect.Type) int {
	receivers, exists := p.subscribers[t]
	if !exists {
		return 0
	}
	return receivers.Cardinality()
}
