package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/syncrt/log"
)

// DefaultShutdownTimeout bounds how long Stop waits for async components.
const DefaultShutdownTimeout = 5 * time.Second

// SystemOption configures an ActorSystem.
type SystemOption func(*ActorSystem)

// WithLogger sets the system logger.
func WithLogger(logger log.Logger) SystemOption {
	return func(s *ActorSystem) {
		s.logger = logger
	}
}

// WithScheduler sets the scheduler configuration.
func WithScheduler(cfg SchedulerConfig) SystemOption {
	return func(s *ActorSystem) {
		s.schedulerCfg = cfg
	}
}

// WithIOConcurrency sets the job limit of every IOComponent. Zero means
// the number of CPUs.
func WithIOConcurrency(n int) SystemOption {
	return func(s *ActorSystem) {
		s.ioConcurrency = n
	}
}

// WithShutdownTimeout sets the default Stop timeout.
func WithShutdownTimeout(timeout time.Duration) SystemOption {
	return func(s *ActorSystem) {
		s.shutdownTimeout = timeout
	}
}

// WithContext derives the global cancellation context from parent.
func WithContext(parent context.Context) SystemOption {
	return func(s *ActorSystem) {
		s.parent = parent
	}
}

// ActorSystem owns the actors, their routing table, the scheduler and the
// global cancellation context.
type ActorSystem struct {
	id     uuid.UUID
	logger log.Logger

	schedulerCfg    SchedulerConfig
	ioConcurrency   int
	shutdownTimeout time.Duration
	parent          context.Context

	// global cancellation token
	ctx    context.Context
	cancel context.CancelFunc

	router    *Router
	scheduler *Scheduler

	mu     sync.Mutex
	cells  []*actorCell
	pubSub ActorHandle

	// serializes Stop and Shutdown
	stopMu sync.Mutex

	running *atomic.Bool
	loops   *errgroup.Group
}

// NewActorSystem creates an ActorSystem with its pub-sub actor spawned.
func NewActorSystem(opts ...SystemOption) (*ActorSystem, error) {
	s := &ActorSystem{
		id:              uuid.New(),
		logger:          log.DefaultLogger,
		schedulerCfg:    DefaultSchedulerConfig(),
		shutdownTimeout: DefaultShutdownTimeout,
		parent:          context.Background(),
		router:          NewRouter(),
		running:         atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(s.parent)

	scheduler, err := NewScheduler(s.schedulerCfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.scheduler = scheduler

	pubSub, err := s.Spawn(NewPubSubActor(), ActorOptions{Type: PubSubTypeName, Name: PubSubTypeName})
	if err != nil {
		return nil, fmt.Errorf("failed to spawn pub-sub actor: %w", err)
	}
	s.pubSub = pubSub
	return s, nil
}

// ID returns the unique identifier of this system instance.
func (s *ActorSystem) ID() uuid.UUID {
	return s.id
}

// Logger returns the system logger.
func (s *ActorSystem) Logger() log.Logger {
	return s.logger
}

// Context returns the global cancellation context.
func (s *ActorSystem) Context() context.Context {
	return s.ctx
}

// PubSub returns the handle of the pub-sub actor.
func (s *ActorSystem) PubSub() ActorHandle {
	return s.pubSub
}

// Scheduler returns the system scheduler.
func (s *ActorSystem) Scheduler() *Scheduler {
	return s.scheduler
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *ActorSystem) IsRunning() bool {
	return s.running.Load()
}

// Spawn builds the components of actor, calls Inject and adds it to the
// system. Actors can only be spawned while the system is not running.
func (s *ActorSystem) Spawn(actor Actor, opts ActorOptions) (ActorHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return NoActor, ErrSystemRunning
	}
	if opts.Group < 0 || opts.Group >= s.schedulerCfg.Groups {
		return NoActor, fmt.Errorf("%w: %d", ErrInvalidGroup, opts.Group)
	}

	typeName := opts.Type
	if typeName == "" {
		typeName = actorTypeName(actor)
	}

	handle, err := s.router.Allocate(typeName, opts.Name)
	if err != nil {
		return NoActor, fmt.Errorf("failed to allocate handle: %w", err)
	}

	ctx, err := s.buildContext(handle, opts.Name)
	if err != nil {
		s.router.Release(handle)
		return NoActor, err
	}

	if err := actor.Inject(ctx); err != nil {
		s.router.Release(handle)
		return NoActor, fmt.Errorf("failed to inject %s: %w", handle, err)
	}

	cell := newActorCell(actor, ctx, opts.Group)
	if err := s.router.Register(ctx.Net); err != nil {
		s.router.Release(handle)
		return NoActor, err
	}
	if err := s.scheduler.add(cell); err != nil {
		s.router.Release(handle)
		return NoActor, err
	}
	s.cells = append(s.cells, cell)

	s.logger.Debugf("spawned %s in group %d", handle, opts.Group)
	return handle, nil
}

func (s *ActorSystem) buildContext(handle ActorHandle, name string) (*ActorContext, error) {
	logger := s.logger.With("actor", handle.String())

	timer := NewTimerComponent(s.ctx, logger)
	net := NewNetComponent(handle, s.router, s.scheduler, timer, logger)
	rpc, err := NewRpcComponent(net, logger)
	if err != nil {
		return nil, err
	}
	pipe, err := NewPipeComponent(net, logger)
	if err != nil {
		return nil, err
	}
	event := NewEventComponent(net, logger)
	if !s.pubSub.IsZero() {
		if err := event.Initialize(s.pubSub); err != nil {
			return nil, err
		}
	}

	return &ActorContext{
		Handle:  handle,
		Name:    name,
		Logger:  logger,
		Net:     net,
		Timer:   timer,
		IO:      NewIOComponent(s.ctx, s.ioConcurrency, logger),
		Rpc:     rpc,
		Pipe:    pipe,
		Event:   event,
		ctx:     s.ctx,
		outputs: make(map[string][]ActorHandle),
		system:  s,
	}, nil
}

// Connect wires the named output of src to dests.
func (s *ActorSystem) Connect(src ActorHandle, output string, dests ...ActorHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrSystemRunning
	}
	cell, exists := s.scheduler.cell(src)
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownActor, src)
	}
	for _, dest := range dests {
		if _, exists := s.router.Lookup(dest); !exists {
			return fmt.Errorf("%w: %s", ErrUnknownActor, dest)
		}
	}
	cell.ctx.outputs[output] = append(cell.ctx.outputs[output], dests...)
	return nil
}

// Handle finds an actor by name.
func (s *ActorSystem) Handle(name string) (ActorHandle, bool) {
	return s.router.HandleByName(name)
}

// Actors returns every actor handle ordered by ID.
func (s *ActorSystem) Actors() []ActorHandle {
	return s.router.List()
}

// Start initializes and starts every actor, then begins scheduling.
func (s *ActorSystem) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return fmt.Errorf("actor system %s is shut down", s.id)
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrSystemRunning
	}
	s.router.Freeze()

	for _, cell := range s.cells {
		if init, ok := cell.actor.(Initializer); ok {
			if err := init.Initialize(); err != nil {
				s.abortStart()
				return fmt.Errorf("failed to initialize %s: %w", cell.handle, err)
			}
		}
	}
	for _, cell := range s.cells {
		if starter, ok := cell.actor.(Starter); ok {
			if err := starter.Start(); err != nil {
				s.abortStart()
				return fmt.Errorf("failed to start %s: %w", cell.handle, err)
			}
		}
		cell.setState(ActorStateRunning)
		cell.ready.Store(true)
	}

	if err := s.scheduler.Start(s.ctx); err != nil {
		s.abortStart()
		return err
	}

	s.loops = new(errgroup.Group)
	for _, cell := range s.cells {
		for _, component := range cell.asyncs {
			s.runAsync(cell, component)
		}
	}

	s.logger.Infof("actor system %s started with %d actors", s.id, len(s.cells))
	return nil
}

func (s *ActorSystem) abortStart() {
	for _, cell := range s.cells {
		cell.setState(ActorStateIdle)
	}
	s.router.Unfreeze()
	s.running.Store(false)
}

func (s *ActorSystem) runAsync(cell *actorCell, component AsyncComponent) {
	cell.liveLoops.Inc()
	s.loops.Go(func() error {
		defer cell.liveLoops.Dec()
		for {
			result, err := component.WaitAsync(s.ctx)
			s.scheduler.WakeUpActor(cell.handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Errorf("async component of %s failed: %v", cell.handle, err)
			}
			if result == WaitCompleted {
				return nil
			}
		}
	})
}

// Tick runs one cycle of a cooperative group. It reports whether any
// actor of the group is still ready.
func (s *ActorSystem) Tick(end time.Time, group int) (bool, error) {
	if !s.running.Load() {
		return false, ErrSystemNotRunning
	}
	return s.scheduler.TickGroup(group, end)
}

// PreStop cancels the global context without stopping the scheduler, so
// actors can observe cancellation while still being ticked.
func (s *ActorSystem) PreStop() {
	s.cancel()
}

// Stop cancels the global context, stops scheduling and every actor, and
// waits for async components. Without a deadline on ctx the system's
// shutdown timeout applies. Actors whose async components are still
// running when the wait ends are reported in the error.
func (s *ActorSystem) Stop(ctx context.Context) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	return s.stop(ctx)
}

// stop runs without holding s.mu so actors can still query the system
// while they are being stopped.
func (s *ActorSystem) stop(ctx context.Context) error {
	cells, running := s.snapshot()
	if !running {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	s.cancel()
	var err error
	if serr := s.scheduler.Stop(); serr != nil {
		err = multierr.Append(err, serr)
	}

	for i := len(cells) - 1; i >= 0; i-- {
		cell := cells[i]
		cell.setState(ActorStateStopping)
		if stopper, ok := cell.actor.(Stopper); ok {
			if serr := stopper.Stop(); serr != nil {
				s.logger.Errorf("failed to stop %s: %v", cell.handle, serr)
				err = multierr.Append(err, fmt.Errorf("stop %s: %w", cell.handle, serr))
			}
		}
	}

	done := make(chan struct{})
	go func() {
		_ = s.loops.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		leaked := leakedActors(cells)
		s.logger.Errorf("actors (%s) timed out", strings.Join(leaked, ", "))
		err = multierr.Append(err, fmt.Errorf("%w: %s", ErrAsyncComponentsLeaked, strings.Join(leaked, ", ")))
	}

	for _, cell := range cells {
		cell.setState(ActorStateStopped)
	}
	s.running.Store(false)
	s.logger.Infof("actor system %s stopped", s.id)
	return err
}

// snapshot returns the actors and whether the system is running.
func (s *ActorSystem) snapshot() ([]*actorCell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*actorCell(nil), s.cells...), s.running.Load()
}

func leakedActors(cells []*actorCell) []string {
	var leaked []string
	for _, cell := range cells {
		if cell.liveLoops.Load() > 0 {
			leaked = append(leaked, cell.handle.String())
		}
	}
	return leaked
}

// Shutdown stops the system if needed, runs every Shutdowner and stops
// all armed timers. The system cannot be restarted afterwards.
func (s *ActorSystem) Shutdown(ctx context.Context) error {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	err := s.stop(ctx)

	s.cancel()
	cells, _ := s.snapshot()
	for i := len(cells) - 1; i >= 0; i-- {
		cell := cells[i]
		if shutdowner, ok := cell.actor.(Shutdowner); ok {
			if serr := shutdowner.Shutdown(); serr != nil {
				s.logger.Errorf("failed to shut down %s: %v", cell.handle, serr)
				err = multierr.Append(err, fmt.Errorf("shutdown %s: %w", cell.handle, serr))
			}
		}
		cell.ctx.Timer.Close()
	}
	return err
}

// IsQuiescent reports whether no actor has queued messages, outstanding
// calls, jobs or timers.
func (s *ActorSystem) IsQuiescent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cell := range s.cells {
		ctx := cell.ctx
		if !ctx.Net.IsQuiescent() || !ctx.Rpc.IsQuiescent() || !ctx.Pipe.IsQuiescent() ||
			!ctx.IO.IsQuiescent() || !ctx.Timer.IsQuiescent() {
			return false
		}
	}
	return true
}

// SetIOConcurrency changes the job limit of every actor.
func (s *ActorSystem) SetIOConcurrency(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ioConcurrency = n
	for _, cell := range s.cells {
		cell.ctx.IO.SetConcurrency(n)
	}
}

// Stats returns statistics for all actors.
func (s *ActorSystem) Stats() []ActorStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make([]ActorStats, 0, len(s.cells))
	for _, cell := range s.cells {
		stats = append(stats, cell.stats())
	}
	return stats
}
