package core

import (
	"context"
)

// Synchronizer is a single-slot wake-up signal. A Set with no pending Wait
// is remembered so the next Wait returns immediately. Repeated Sets
// collapse into one. Only one goroutine may Wait at a time.
type Synchronizer struct {
	signal chan struct{}
}

// NewSynchronizer creates an unsignaled Synchronizer.
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{signal: make(chan struct{}, 1)}
}

// Set wakes the pending Wait or arms the signal for the next one.
func (s *Synchronizer) Set() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until Set is called or ctx is done. A pending signal wins
// over an already cancelled ctx. On cancellation it returns ctx.Err().
func (s *Synchronizer) Wait(ctx context.Context) error {
	select {
	case <-s.signal:
		return nil
	default:
	}

	select {
	case <-s.signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signaled reports whether a Set is pending.
func (s *Synchronizer) Signaled() bool {
	return len(s.signal) > 0
}

// Clear drops a pending signal.
func (s *Synchronizer) Clear() {
	select {
	case <-s.signal:
	default:
	}
}
