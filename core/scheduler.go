package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/syncrt/log"
)

// SchedulerConfig controls how execution groups run.
type SchedulerConfig struct {
	// Groups is the number of execution groups
	Groups int

	// CooperativeGroups is how many of the first groups are ticked by the
	// host through ActorSystem.Tick instead of a background goroutine
	CooperativeGroups int

	// CycleTime is the time slice of one pass over a group
	CycleTime time.Duration

	// SleepRatio is the share of CycleTime a group sleeps between busy
	// cycles
	SleepRatio float64

	// WaitTime caps how long an idle group waits for a wake-up
	WaitTime time.Duration
}

// DefaultSchedulerConfig returns sensible default options.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Groups:            1,
		CooperativeGroups: 0,
		CycleTime:         10 * time.Millisecond,
		SleepRatio:        0.1,
		WaitTime:          100 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c SchedulerConfig) Validate() error {
	if c.Groups < 1 {
		return fmt.Errorf("%w: at least one group is required", ErrInvalidGroup)
	}
	if c.CooperativeGroups < 0 || c.CooperativeGroups > c.Groups {
		return fmt.Errorf("%w: %d cooperative of %d groups", ErrInvalidGroup, c.CooperativeGroups, c.Groups)
	}
	if c.CycleTime <= 0 {
		return fmt.Errorf("scheduler cycle time must be positive")
	}
	if c.SleepRatio < 0 || c.SleepRatio > 1 {
		return fmt.Errorf("scheduler sleep ratio must be within [0, 1]")
	}
	return nil
}

type executionGroup struct {
	id          int
	cooperative bool

	// guards cells and cursor against concurrent host ticks
	mu     sync.Mutex
	cells  []*actorCell
	cursor int

	wake *Synchronizer
}

// Scheduler grants actors time slices. Background groups each run on
// their own goroutine; cooperative groups are ticked by the host.
type Scheduler struct {
	cfg    SchedulerConfig
	logger log.Logger

	groups []*executionGroup

	mu    sync.RWMutex
	cells map[ActorHandle]*actorCell

	running *atomic.Bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
}

var _ Waker = (*Scheduler)(nil)

// NewScheduler creates a Scheduler with cfg.Groups execution groups.
func NewScheduler(cfg SchedulerConfig, logger log.Logger) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.DefaultLogger
	}

	s := &Scheduler{
		cfg:     cfg,
		logger:  logger,
		cells:   make(map[ActorHandle]*actorCell),
		running: atomic.NewBool(false),
	}
	for i := 0; i < cfg.Groups; i++ {
		s.groups = append(s.groups, &executionGroup{
			id:          i,
			cooperative: i < cfg.CooperativeGroups,
			wake:        NewSynchronizer(),
		})
	}
	return s, nil
}

func (s *Scheduler) add(cell *actorCell) error {
	if cell.group < 0 || cell.group >= len(s.groups) {
		return fmt.Errorf("%w: %d for %s", ErrInvalidGroup, cell.group, cell.handle)
	}

	s.mu.Lock()
	s.cells[cell.handle] = cell
	s.mu.Unlock()

	g := s.groups[cell.group]
	g.mu.Lock()
	g.cells = append(g.cells, cell)
	g.mu.Unlock()
	return nil
}

func (s *Scheduler) cell(handle ActorHandle) (*actorCell, bool) {
	s.mu.RLock()
	cell, exists := s.cells[handle]
	s.mu.RUnlock()
	return cell, exists
}

// WakeUpActor marks the actor ready and wakes its group.
func (s *Scheduler) WakeUpActor(handle ActorHandle) {
	cell, exists := s.cell(handle)
	if !exists {
		return
	}
	cell.ready.Store(true)
	s.groups[cell.group].wake.Set()
}

// IsCooperative reports whether group is ticked by the host.
func (s *Scheduler) IsCooperative(group int) bool {
	return group >= 0 && group < len(s.groups) && s.groups[group].cooperative
}

// Start launches the background groups.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	eg, ctx := errgroup.WithContext(ctx)
	s.eg = eg

	for _, g := range s.groups {
		if g.cooperative {
			continue
		}
		g := g
		eg.Go(func() error {
			return s.run(ctx, g)
		})
	}
	return nil
}

// Stop halts the background groups and waits for them.
func (s *Scheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	return s.eg.Wait()
}

func (s *Scheduler) run(ctx context.Context, g *executionGroup) error {
	sleep := time.Duration(float64(s.cfg.CycleTime) * s.cfg.SleepRatio)

	for ctx.Err() == nil {
		busy := s.tickGroup(g, time.Now().Add(s.cfg.CycleTime))
		if busy {
			if sleep > 0 {
				time.Sleep(sleep)
			}
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTime)
		_ = g.wake.Wait(waitCtx)
		cancel()
	}
	return nil
}

// TickGroup runs one cycle of a cooperative group and reports whether
// any actor is still ready.
func (s *Scheduler) TickGroup(group int, end time.Time) (bool, error) {
	if !s.IsCooperative(group) {
		return false, fmt.Errorf("%w: %d is not cooperative", ErrInvalidGroup, group)
	}
	return s.tickGroup(s.groups[group], end), nil
}

// WaitGroup blocks until an actor of a cooperative group is woken or ctx
// is done.
func (s *Scheduler) WaitGroup(ctx context.Context, group int) error {
	if !s.IsCooperative(group) {
		return fmt.Errorf("%w: %d is not cooperative", ErrInvalidGroup, group)
	}
	return s.groups[group].wake.Wait(ctx)
}

// Config returns the scheduler configuration.
func (s *Scheduler) Config() SchedulerConfig {
	return s.cfg
}

// tickGroup visits ready actors round robin. An actor that yields stays
// ready and ends the cycle; the next cycle starts after it.
func (s *Scheduler) tickGroup(g *executionGroup, end time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.cells)
	for i := 0; i < n; i++ {
		idx := (g.cursor + i) % n
		cell := g.cells[idx]
		if !cell.ready.CompareAndSwap(true, false) {
			continue
		}

		if s.tickCell(cell, end) == TickYield {
			cell.ready.Store(true)
			g.cursor = (idx + 1) % n
			return true
		}
		if !enoughTime(end) {
			g.cursor = (idx + 1) % n
			break
		}
	}

	for _, cell := range g.cells {
		if cell.ready.Load() {
			return true
		}
	}
	return false
}

func (s *Scheduler) tickCell(cell *actorCell, end time.Time) (result TickResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("tick of %s failed: %+v", cell.handle, recoverError(r))
			result = TickWait
		}
	}()
	return cell.Tick(end)
}
