package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/syncrt/log"
)

type ping struct{ N int }
type alarm struct{ Reason string }

// boxed is a generic message; every instantiation implements boxFamily.
type boxed[T any] struct{ Value T }

type boxFamily interface{ describe() string }

func (b *boxed[T]) describe() string { return fmt.Sprintf("%v", b.Value) }

type netFixture struct {
	router *Router
	waker  *recordingWaker
	a, b   *NetComponent
}

func newNetFixture(t *testing.T) *netFixture {
	t.Helper()
	router := NewRouter()
	waker := newRecordingWaker()
	timer := NewTimerComponent(context.Background(), log.DiscardLogger)

	ha, err := router.Allocate("A", "a")
	require.NoError(t, err)
	hb, err := router.Allocate("B", "")
	require.NoError(t, err)

	f := &netFixture{
		router: router,
		waker:  waker,
		a:      NewNetComponent(ha, router, waker, timer, log.DiscardLogger),
		b:      NewNetComponent(hb, router, waker, timer, log.DiscardLogger),
	}
	require.NoError(t, router.Register(f.a))
	require.NoError(t, router.Register(f.b))
	return f
}

func TestNetSendWakesDestination(t *testing.T) {
	f := newNetFixture(t)
	require.NoError(t, f.a.Send(f.b.Self(), &ping{N: 1}))

	assert.Equal(t, 1, f.waker.woken[f.b.Self()])
	assert.Equal(t, 1, f.b.Len())
	assert.Equal(t, 0, f.a.Len())
}

func TestNetFIFOWithinLane(t *testing.T) {
	f := newNetFixture(t)

	var got []int
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) {
		got = append(got, ctx.Data.N)
		assert.Equal(t, f.a.Self(), ctx.Source())
	}))

	for i := 1; i <= 5; i++ {
		require.NoError(t, f.a.Send(f.b.Self(), &ping{N: i}))
	}

	assert.Equal(t, TickWait, f.b.Tick(time.Now().Add(time.Second)))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
	assert.EqualValues(t, 5, f.b.Processed())
}

func TestNetCriticalPreemptsWhenOutOfTime(t *testing.T) {
	f := newNetFixture(t)

	var order []string
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) {
		order = append(order, fmt.Sprintf("ping%d", ctx.Data.N))
	}))
	require.NoError(t, Register(f.b, func(ctx *NetContext[*alarm]) {
		order = append(order, ctx.Data.Reason)
	}))

	require.NoError(t, f.a.Send(f.b.Self(), &ping{N: 1}))
	require.NoError(t, f.a.Send(f.b.Self(), &ping{N: 2}))
	require.NoError(t, f.a.SendCritical(f.b.Self(), &alarm{Reason: "low-memory"}))

	// budget already exhausted
	result := f.b.Tick(time.Now().Add(-time.Millisecond))
	assert.Equal(t, TickYield, result)
	assert.Equal(t, []string{"low-memory"}, order)
	assert.Equal(t, 2, f.b.Len())

	assert.Equal(t, TickWait, f.b.Tick(time.Now().Add(time.Second)))
	assert.Equal(t, []string{"low-memory", "ping1", "ping2"}, order)
}

func TestNetCriticalFirstWithinBudget(t *testing.T) {
	f := newNetFixture(t)

	var order []string
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) { order = append(order, "ping") }))
	require.NoError(t, Register(f.b, func(ctx *NetContext[*alarm]) { order = append(order, "alarm") }))

	require.NoError(t, f.a.Send(f.b.Self(), &ping{}))
	require.NoError(t, f.a.SendCritical(f.b.Self(), &alarm{}))
	f.b.Tick(time.Now().Add(time.Second))

	assert.Equal(t, []string{"alarm", "ping"}, order)
}

func TestNetOpenGenericFallback(t *testing.T) {
	f := newNetFixture(t)

	var exact []int
	var family []string
	require.NoError(t, Register(f.b, func(ctx *NetContext[*boxed[int]]) {
		exact = append(exact, ctx.Data.Value)
	}))
	require.NoError(t, RegisterOpenGeneric(f.b, func(ctx *NetContext[boxFamily]) {
		family = append(family, ctx.Data.describe())
	}))

	require.NoError(t, f.a.Send(f.b.Self(), &boxed[int]{Value: 3}))
	require.NoError(t, f.a.Send(f.b.Self(), &boxed[string]{Value: "s"}))
	require.NoError(t, f.a.Send(f.b.Self(), &boxed[float64]{Value: 1.5}))
	f.b.Tick(time.Now().Add(time.Second))

	assert.Equal(t, []int{3}, exact)
	assert.Equal(t, []string{"s", "1.5"}, family)
}

func TestNetOpenGenericRequiresInterface(t *testing.T) {
	f := newNetFixture(t)
	err := RegisterOpenGeneric(f.b, func(ctx *NetContext[*ping]) {})
	assert.ErrorIs(t, err, ErrNotFamily)
}

func TestNetDuplicateRegistration(t *testing.T) {
	f := newNetFixture(t)
	first := 0
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) { first++ }))
	err := Register(f.b, func(ctx *NetContext[*ping]) {})
	assert.ErrorIs(t, err, ErrDuplicateHandler)

	require.NoError(t, f.a.Send(f.b.Self(), &ping{}))
	f.b.Tick(time.Now().Add(time.Second))
	assert.Equal(t, 1, first)
}

func TestNetMissingHandlerDropsMessage(t *testing.T) {
	f := newNetFixture(t)
	handled := 0
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) { handled++ }))

	require.NoError(t, f.a.Send(f.b.Self(), &alarm{}))
	require.NoError(t, f.a.Send(f.b.Self(), &ping{}))

	assert.Equal(t, TickWait, f.b.Tick(time.Now().Add(time.Second)))
	assert.Equal(t, 1, handled)
	assert.True(t, f.b.IsQuiescent())
}

func TestNetHandlerPanicDoesNotStopDraining(t *testing.T) {
	f := newNetFixture(t)
	var seen []int
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) {
		if ctx.Data.N == 1 {
			panic("bad message")
		}
		seen = append(seen, ctx.Data.N)
	}))

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.a.Send(f.b.Self(), &ping{N: i}))
	}
	assert.NotPanics(t, func() { f.b.Tick(time.Now().Add(time.Second)) })
	assert.Equal(t, []int{2, 3}, seen)
}

func TestNetSendErrors(t *testing.T) {
	f := newNetFixture(t)

	err := f.a.Send(ActorHandle{ID: 99, Type: "Ghost"}, &ping{})
	assert.ErrorIs(t, err, ErrUnknownActor)

	err = f.a.Send(f.b.Self(), nil)
	assert.ErrorIs(t, err, ErrNilPayload)
}

func TestNetSendAllBuildsOneEnvelopePerDestination(t *testing.T) {
	f := newNetFixture(t)

	var envelopes []*NetMessage
	record := func(ctx *NetContext[*ping]) { envelopes = append(envelopes, ctx.Message) }
	require.NoError(t, Register(f.a, record))
	require.NoError(t, Register(f.b, record))

	ghost := ActorHandle{ID: 77}
	err := f.a.SendAllCritical([]ActorHandle{f.a.Self(), f.b.Self(), ghost}, &ping{N: 9})
	assert.ErrorIs(t, err, ErrUnknownActor)

	f.a.Tick(time.Now().Add(time.Second))
	f.b.Tick(time.Now().Add(time.Second))
	require.Len(t, envelopes, 2)
	assert.NotSame(t, envelopes[0], envelopes[1])
	assert.True(t, envelopes[0].Critical)
	assert.True(t, envelopes[1].Critical)
}

func TestNetForwardKeepsLane(t *testing.T) {
	f := newNetFixture(t)
	var forwarded *NetMessage
	require.NoError(t, Register(f.a, func(ctx *NetContext[*alarm]) {
		require.NoError(t, f.a.Forward(f.b.Self(), ctx.Message))
	}))
	require.NoError(t, Register(f.b, func(ctx *NetContext[*alarm]) { forwarded = ctx.Message }))

	require.NoError(t, f.b.SendCritical(f.a.Self(), &alarm{Reason: "x"}))
	f.a.Tick(time.Now().Add(time.Second))
	f.b.Tick(time.Now().Add(time.Second))

	require.NotNil(t, forwarded)
	assert.True(t, forwarded.Critical)
	assert.Equal(t, f.b.Self(), forwarded.Source)
}

func TestNetSuspendResume(t *testing.T) {
	f := newNetFixture(t)
	handled := 0
	require.NoError(t, Register(f.b, func(ctx *NetContext[*ping]) { handled++ }))

	f.b.Suspend()
	require.NoError(t, f.a.Send(f.b.Self(), &ping{}))
	require.NoError(t, f.a.SendCritical(f.b.Self(), &ping{}))

	assert.Equal(t, TickWait, f.b.Tick(time.Now().Add(time.Second)))
	assert.Equal(t, 0, handled)
	assert.Equal(t, 2, f.b.Len())

	woken := f.waker.woken[f.b.Self()]
	f.b.Resume()
	assert.Equal(t, woken+1, f.waker.woken[f.b.Self()])

	f.b.Tick(time.Now().Add(time.Second))
	assert.Equal(t, 2, handled)
}

func TestNetDelayedSend(t *testing.T) {
	sys := newTestSystem(t)

	received := 0
	receiver := spawn(t, sys, newFuncActor(func(ctx *ActorContext) error {
		return Register(ctx.Net, func(nc *NetContext[*ping]) { received++ })
	}), "Receiver")
	sender := newFuncActor(nil)
	spawn(t, sys, sender, "Sender")
	startSystem(t, sys)

	require.NoError(t, sender.ctx.Net.DelayedSend(10*time.Millisecond, receiver, &ping{}))
	pump(t, sys, func() bool { return received == 1 })
}

func TestNetDelayedSendWithoutDelayAfterCancel(t *testing.T) {
	router := NewRouter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	timer := NewTimerComponent(ctx, log.DiscardLogger)

	self, err := router.Allocate("Self", "")
	require.NoError(t, err)
	n := NewNetComponent(self, router, newRecordingWaker(), timer, log.DiscardLogger)
	require.NoError(t, router.Register(n))

	handled := 0
	require.NoError(t, Register(n, func(nc *NetContext[*ping]) { handled++ }))

	require.NoError(t, n.DelayedSend(0, self, &ping{}))
	require.NoError(t, n.DelayedSend(-time.Second, self, &ping{}))
	assert.Equal(t, 2, n.Len())

	// a positive delay is dropped once the timer is cancelled
	require.NoError(t, n.DelayedSend(time.Millisecond, self, &ping{}))
	assert.Equal(t, 0, timer.Pending())

	n.Tick(time.Now().Add(time.Second))
	assert.Equal(t, 2, handled)

	assert.ErrorIs(t, n.DelayedSend(0, ActorHandle{ID: 404}, &ping{}), ErrUnknownActor)
}
