package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronizerSetBeforeWait(t *testing.T) {
	s := NewSynchronizer()
	s.Set()
	assert.True(t, s.Signaled())

	require.NoError(t, s.Wait(context.Background()))
	assert.False(t, s.Signaled())
}

func TestSynchronizerSetsCollapse(t *testing.T) {
	s := NewSynchronizer()
	s.Set()
	s.Set()
	s.Set()

	require.NoError(t, s.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSynchronizerWakesPendingWait(t *testing.T) {
	s := NewSynchronizer()
	done := make(chan error, 1)
	go func() {
		done <- s.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	s.Set()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait was not woken")
	}
}

func TestSynchronizerCancellation(t *testing.T) {
	s := NewSynchronizer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}

func TestSynchronizerPendingSignalWinsOverCancellation(t *testing.T) {
	s := NewSynchronizer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Set()
	assert.NoError(t, s.Wait(ctx))
}

func TestSynchronizerClear(t *testing.T) {
	s := NewSynchronizer()
	s.Set()
	s.Clear()
	assert.False(t, s.Signaled())
}
