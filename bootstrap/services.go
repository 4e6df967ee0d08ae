package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/najoast/syncrt/config"
	"github.com/najoast/syncrt/core"
	"github.com/najoast/syncrt/log"
)

// ActorSystemService wraps the actor system as a managed service
type ActorSystemService struct {
	system *core.ActorSystem
}

// NewActorSystemService creates a service around system
func NewActorSystemService(system *core.ActorSystem) *ActorSystemService {
	return &ActorSystemService{system: system}
}

func (s *ActorSystemService) Name() string {
	return ActorSystemServiceName
}

func (s *ActorSystemService) Start(ctx context.Context) error {
	return s.system.Start()
}

// Stop shuts the system down; actors that do not finish in time are
// reported in the error
func (s *ActorSystemService) Stop(ctx context.Context) error {
	return s.system.Shutdown(ctx)
}

func (s *ActorSystemService) Health(ctx context.Context) (HealthStatus, error) {
	if !s.system.IsRunning() {
		return HealthStatus{
			State:   HealthStopped,
			Message: "actor system not running",
		}, nil
	}

	stats := s.system.Stats()
	var queued, pending int
	for _, stat := range stats {
		queued += stat.Queued
		pending += stat.PendingRpc + stat.PendingPipe
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "actor system running",
		Data: map[string]interface{}{
			"id":        s.system.ID().String(),
			"actors":    len(stats),
			"queued":    queued,
			"pending":   pending,
			"quiescent": s.system.IsQuiescent(),
		},
	}, nil
}

// HostLoop ticks the cooperative groups of a system. Each group is driven
// by its own goroutine that waits for a wake-up when nothing is ready.
type HostLoop struct {
	system *core.ActorSystem
	groups int
	logger log.Logger

	mutex  sync.Mutex
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewHostLoop creates a loop over the first groups cooperative groups
func NewHostLoop(system *core.ActorSystem, groups int, logger log.Logger) *HostLoop {
	return &HostLoop{system: system, groups: groups, logger: logger}
}

func (h *HostLoop) Name() string {
	return HostLoopServiceName
}

func (h *HostLoop) Start(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.cancel != nil {
		return fmt.Errorf("host loop already running")
	}
	for group := 0; group < h.groups; group++ {
		if !h.system.Scheduler().IsCooperative(group) {
			return fmt.Errorf("%w: %d", core.ErrInvalidGroup, group)
		}
	}

	// the loop outlives the start context
	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.eg = new(errgroup.Group)
	for group := 0; group < h.groups; group++ {
		group := group
		h.eg.Go(func() error {
			return h.run(loopCtx, group)
		})
	}
	return nil
}

func (h *HostLoop) run(ctx context.Context, group int) error {
	cfg := h.system.Scheduler().Config()
	sleep := time.Duration(float64(cfg.CycleTime) * cfg.SleepRatio)

	for ctx.Err() == nil {
		busy, err := h.system.Tick(time.Now().Add(cfg.CycleTime), group)
		if err != nil {
			if errors.Is(err, core.ErrSystemNotRunning) {
				return nil
			}
			return err
		}
		if busy {
			if sleep > 0 {
				time.Sleep(sleep)
			}
			continue
		}

		waitCtx, cancel := context.WithTimeout(ctx, cfg.WaitTime)
		_ = h.system.Scheduler().WaitGroup(waitCtx, group)
		cancel()
	}
	return nil
}

func (h *HostLoop) Stop(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.cancel == nil {
		return nil
	}
	h.cancel()
	err := h.eg.Wait()
	h.cancel = nil
	return err
}

func (h *HostLoop) Health(ctx context.Context) (HealthStatus, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.cancel == nil {
		return HealthStatus{State: HealthStopped, Message: "host loop stopped"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: fmt.Sprintf("ticking %d cooperative groups", h.groups),
	}, nil
}

// ConfigWatcherService reloads the configuration file and applies log
// level and IO concurrency changes
type ConfigWatcherService struct {
	app     *DefaultApplication
	watcher *config.Watcher
}

func (s *ConfigWatcherService) Name() string {
	return ConfigWatcherServiceName
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	watcher, err := config.NewWatcher(s.app.configFile, s.app.loader, config.WithWatcherLogger(s.app.logger))
	if err != nil {
		return err
	}
	watcher.OnConfigChange(s.app.applyConfig)
	if err := watcher.Start(); err != nil {
		_ = watcher.Stop()
		return err
	}
	s.watcher = watcher
	return nil
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	s.watcher = nil
	return err
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	if s.watcher == nil {
		return HealthStatus{State: HealthStopped, Message: "not watching"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "watching " + s.app.configFile,
	}, nil
}

// Reload forces a reload of the configuration file
func (s *ConfigWatcherService) Reload() error {
	if s.watcher == nil {
		return fmt.Errorf("config watcher not running")
	}
	return s.watcher.Reload()
}
