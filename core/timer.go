package core

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/najoast/syncrt/log"
)

type timerRecord struct {
	id       uint64
	timer    *time.Timer
	callback func()
}

// TimerComponent runs callbacks on the owning actor after a delay. Timers
// fire on a runtime goroutine but only move to a ready list there; the
// callbacks run inside Tick.
type TimerComponent struct {
	// global cancellation token
	ctx    context.Context
	logger log.Logger
	sync   *Synchronizer

	mu     sync.Mutex
	nextID uint64
	active map[uint64]*timerRecord
	ready  []*timerRecord

	workIsWaiting atomic.Bool
}

var (
	_ RunnableComponent = (*TimerComponent)(nil)
	_ AsyncComponent    = (*TimerComponent)(nil)
	_ Quiescer          = (*TimerComponent)(nil)
)

// NewTimerComponent creates a TimerComponent bound to the global context.
func NewTimerComponent(ctx context.Context, logger log.Logger) *TimerComponent {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return &TimerComponent{
		ctx:    ctx,
		logger: logger,
		sync:   NewSynchronizer(),
		active: make(map[uint64]*timerRecord),
	}
}

// DelayedExecute schedules callback to run on a Tick after delay. It is a
// no-op once the global context is cancelled.
func (t *TimerComponent) DelayedExecute(delay time.Duration, callback func()) {
	if callback == nil || t.ctx.Err() != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	record := &timerRecord{id: t.nextID, callback: callback}
	t.active[record.id] = record
	record.timer = time.AfterFunc(delay, func() { t.fire(record.id) })
}

func (t *TimerComponent) fire(id uint64) {
	t.mu.Lock()
	record, exists := t.active[id]
	if !exists {
		t.mu.Unlock()
		return
	}
	delete(t.active, id)
	t.ready = append(t.ready, record)
	t.mu.Unlock()

	t.workIsWaiting.Store(true)
	t.sync.Set()
}

// Tick runs every ready callback in the order the timers fired. It always
// returns TickWait; readiness is reported through WaitAsync.
func (t *TimerComponent) Tick(end time.Time) TickResult {
	if !t.workIsWaiting.Load() {
		return TickWait
	}
	t.workIsWaiting.Store(false)

	t.mu.Lock()
	ready := t.ready
	t.ready = nil
	t.mu.Unlock()

	for _, record := range ready {
		t.invoke(record)
	}
	return TickWait
}

func (t *TimerComponent) invoke(record *timerRecord) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Errorf("timer callback %d failed: %v", record.id, recoverError(r))
		}
	}()
	record.callback()
}

// WaitAsync blocks until a timer fires. After cancellation it reports
// Completed if no timer is armed, otherwise it waits for the armed timers.
func (t *TimerComponent) WaitAsync(ctx context.Context) (WaitResult, error) {
	if err := t.sync.Wait(ctx); err == nil {
		return WaitContinuing, nil
	}

	t.mu.Lock()
	armed := len(t.active)
	t.mu.Unlock()

	if armed == 0 && !t.sync.Signaled() {
		return WaitCompleted, nil
	}

	// in-flight timers still fire after cancellation
	_ = t.sync.Wait(context.Background())
	return WaitContinuing, nil
}

// Pending returns the number of timers that have not run yet.
func (t *TimerComponent) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active) + len(t.ready)
}

// IsQuiescent reports whether no timer is armed or waiting for a Tick.
func (t *TimerComponent) IsQuiescent() bool {
	return t.Pending() == 0
}

// Close stops every armed timer. Ready callbacks are dropped.
func (t *TimerComponent) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, record := range t.active {
		record.timer.Stop()
		delete(t.active, id)
	}
	t.ready = nil
	t.sync.Set()
}
