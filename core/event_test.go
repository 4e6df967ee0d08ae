package core

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progress struct{ Percent int }
type lowMemory struct{}

func TestEventBroadcastReachesSubscribers(t *testing.T) {
	sys := newTestSystem(t)

	var first, second []int
	var publisher ActorHandle
	spawn(t, sys, newFuncActor(func(ctx *ActorContext) error {
		return Subscribe(ctx.Event, func(ec *EventContext[progress]) {
			first = append(first, ec.Data.Percent)
			publisher = ec.Publisher
		})
	}), "First")
	spawn(t, sys, newFuncActor(func(ctx *ActorContext) error {
		return Subscribe(ctx.Event, func(ec *EventContext[progress]) {
			second = append(second, ec.Data.Percent)
		})
	}), "Second")
	source := withTrigger(nil)
	sourceHandle := spawn(t, sys, source, "Source")
	startSystem(t, sys)

	fire(t, source, func() {
		require.NoError(t, Broadcast(source.ctx.Event, progress{Percent: 50}))
		require.NoError(t, Broadcast(source.ctx.Event, progress{Percent: 100}))
	})

	pump(t, sys, func() bool { return len(first) == 2 && len(second) == 2 })
	assert.Equal(t, []int{50, 100}, first)
	assert.Equal(t, []int{50, 100}, second)
	assert.Equal(t, sourceHandle, publisher)
}

func TestEventWithoutSubscribersIsDropped(t *testing.T) {
	sys := newTestSystem(t)

	var alarms int
	spawn(t, sys, newFuncActor(func(ctx *ActorContext) error {
		return Subscribe(ctx.Event, func(ec *EventContext[lowMemory]) { alarms++ })
	}), "Listener")
	source := withTrigger(nil)
	spawn(t, sys, source, "Source")
	startSystem(t, sys)

	fire(t, source, func() {
		require.NoError(t, Broadcast(source.ctx.Event, progress{Percent: 1}))
		require.NoError(t, BroadcastCritical(source.ctx.Event, lowMemory{}))
	})
	pump(t, sys, func() bool { return alarms == 1 })
	settle(t, sys, 10*time.Millisecond)
	assert.Equal(t, 1, alarms)
}

func TestEventUnsubscribe(t *testing.T) {
	sys := newTestSystem(t)

	received := 0
	listener := withTrigger(func(ctx *ActorContext) error {
		return Subscribe(ctx.Event, func(ec *EventContext[progress]) { received++ })
	})
	spawn(t, sys, listener, "Listener")
	source := withTrigger(nil)
	spawn(t, sys, source, "Source")
	startSystem(t, sys)

	fire(t, source, func() { require.NoError(t, Broadcast(source.ctx.Event, progress{})) })
	pump(t, sys, func() bool { return received == 1 })

	fire(t, listener, func() { require.NoError(t, Unsubscribe[progress](listener.ctx.Event)) })
	settle(t, sys, 10*time.Millisecond)

	fire(t, source, func() { require.NoError(t, Broadcast(source.ctx.Event, progress{})) })
	settle(t, sys, 20*time.Millisecond)
	assert.Equal(t, 1, received)
}

func TestEventUnsubscribeAll(t *testing.T) {
	sys := newTestSystem(t)

	received := 0
	var pubSub *PubSubActor
	listener := withTrigger(func(ctx *ActorContext) error {
		if err := Subscribe(ctx.Event, func(ec *EventContext[progress]) { received++ }); err != nil {
			return err
		}
		return Subscribe(ctx.Event, func(ec *EventContext[lowMemory]) { received++ })
	})
	spawn(t, sys, listener, "Listener")
	startSystem(t, sys)

	settle(t, sys, 10*time.Millisecond)
	for _, cell := range sys.cells {
		if p, ok := cell.actor.(*PubSubActor); ok {
			pubSub = p
		}
	}
	require.NotNil(t, pubSub)
	assert.Equal(t, 1, pubSub.subscriberCount(reflect.TypeOf(progress{})))
	assert.Equal(t, 1, pubSub.subscriberCount(reflect.TypeOf(lowMemory{})))

	fire(t, listener, func() { require.NoError(t, listener.ctx.Event.UnsubscribeAll()) })
	settle(t, sys, 10*time.Millisecond)
	assert.Equal(t, 0, pubSub.subscriberCount(reflect.TypeOf(progress{})))
	assert.Equal(t, 0, pubSub.subscriberCount(reflect.TypeOf(lowMemory{})))

	fire(t, listener, func() { require.NoError(t, Broadcast(listener.ctx.Event, progress{})) })
	settle(t, sys, 10*time.Millisecond)
	assert.Equal(t, 0, received)
}

func TestEventDuplicateSubscribe(t *testing.T) {
	sys := newTestSystem(t)
	_, err := sys.Spawn(newFuncActor(func(ctx *ActorContext) error {
		handler := func(ec *EventContext[progress]) {}
		if err := Subscribe(ctx.Event, handler); err != nil {
			return err
		}
		return Subscribe(ctx.Event, handler)
	}), ActorOptions{})
	assert.ErrorIs(t, err, ErrDuplicateHandler)
}
