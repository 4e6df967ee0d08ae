package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/najoast/syncrt/log"
)

// funcActor adapts a function to the Actor interface.
type funcActor struct {
	inject func(ctx *ActorContext) error
	ctx    *ActorContext
}

func (a *funcActor) Inject(ctx *ActorContext) error {
	a.ctx = ctx
	if a.inject == nil {
		return nil
	}
	return a.inject(ctx)
}

func newFuncActor(inject func(ctx *ActorContext) error) *funcActor {
	return &funcActor{inject: inject}
}

// newTestSystem creates a system whose only group is ticked by the test.
func newTestSystem(t *testing.T, opts ...SystemOption) *ActorSystem {
	t.Helper()

	base := []SystemOption{
		WithLogger(log.DiscardLogger),
		WithScheduler(SchedulerConfig{
			Groups:            1,
			CooperativeGroups: 1,
			CycleTime:         10 * time.Millisecond,
			SleepRatio:        0.1,
			WaitTime:          10 * time.Millisecond,
		}),
		WithShutdownTimeout(time.Second),
	}
	sys, err := NewActorSystem(append(base, opts...)...)
	require.NoError(t, err)
	return sys
}

func spawn(t *testing.T, sys *ActorSystem, actor Actor, actorType string) ActorHandle {
	t.Helper()
	handle, err := sys.Spawn(actor, ActorOptions{Type: actorType})
	require.NoError(t, err)
	return handle
}

func startSystem(t *testing.T, sys *ActorSystem) {
	t.Helper()
	require.NoError(t, sys.Start())
	t.Cleanup(func() {
		_ = sys.Shutdown(context.Background())
	})
}

// pump ticks group 0 until cond holds.
func pump(t *testing.T, sys *ActorSystem, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			require.FailNow(t, "condition not met before deadline")
		}
		_, err := sys.Tick(time.Now().Add(5*time.Millisecond), 0)
		require.NoError(t, err)
		time.Sleep(100 * time.Microsecond)
	}
}

// settle ticks group 0 for d regardless of state.
func settle(t *testing.T, sys *ActorSystem, d time.Duration) {
	t.Helper()

	end := time.Now().Add(d)
	for time.Now().Before(end) {
		_, err := sys.Tick(time.Now().Add(5*time.Millisecond), 0)
		require.NoError(t, err)
		time.Sleep(100 * time.Microsecond)
	}
}

// recordingWaker counts wake-ups per handle.
type recordingWaker struct {
	woken map[ActorHandle]int
}

func newRecordingWaker() *recordingWaker {
	return &recordingWaker{woken: make(map[ActorHandle]int)}
}

func (w *recordingWaker) WakeUpActor(handle ActorHandle) {
	w.woken[handle]++
}
