package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/najoast/syncrt/config"
	"github.com/najoast/syncrt/core"
	"github.com/najoast/syncrt/log"
)

// Option configures a DefaultApplication
type Option func(*DefaultApplication)

// WithConfigFile loads configuration from path and watches it for changes.
// Without it the loader searches its default paths.
func WithConfigFile(path string) Option {
	return func(app *DefaultApplication) {
		app.configFile = path
	}
}

// WithLoader replaces the configuration loader
func WithLoader(loader *config.Loader) Option {
	return func(app *DefaultApplication) {
		app.loader = loader
	}
}

// WithRegistry sets the actor factories used for the setup file
func WithRegistry(registry *Registry) Option {
	return func(app *DefaultApplication) {
		app.registry = registry
	}
}

// WithSetup builds actors from setup instead of the configured setup file
func WithSetup(setup *config.SetupConfig) Option {
	return func(app *DefaultApplication) {
		app.setup = setup
	}
}

// WithConfigure adds a hook that may spawn and connect actors before the
// system starts
func WithConfigure(fn func(sys *core.ActorSystem) error) Option {
	return func(app *DefaultApplication) {
		app.configure = append(app.configure, fn)
	}
}

// WithService registers an extra service started after the actor system
func WithService(service Service, deps ...string) Option {
	return func(app *DefaultApplication) {
		app.services = append(app.services, serviceEntry{service: service, deps: deps})
	}
}

// WithLogOutput overrides the configured log destination
func WithLogOutput(w io.Writer) Option {
	return func(app *DefaultApplication) {
		app.logOutput = w
	}
}

// WithoutSignals disables SIGINT and SIGTERM handling
func WithoutSignals() Option {
	return func(app *DefaultApplication) {
		app.signals = false
	}
}

type serviceEntry struct {
	service Service
	deps    []string
}

// Service names registered by the application
const (
	ActorSystemServiceName   = "actor-system"
	HostLoopServiceName      = "host-loop"
	ConfigWatcherServiceName = "config-watcher"
)

// DefaultApplication implements the Application interface
type DefaultApplication struct {
	configFile string
	loader     *config.Loader
	registry   *Registry
	setup      *config.SetupConfig
	configure  []func(sys *core.ActorSystem) error
	services   []serviceEntry
	logOutput  io.Writer
	signals    bool

	lifecycleManager *DefaultLifecycleManager

	// mutex protects concurrent access
	mutex sync.RWMutex

	cfg       *config.Config
	logger    log.Logger
	logCloser io.Closer
	system    *core.ActorSystem
	handles   map[string]core.ActorHandle

	// running indicates if the application is running
	running bool
}

var _ Application = (*DefaultApplication)(nil)

// NewApplication creates a new application
func NewApplication(opts ...Option) *DefaultApplication {
	app := &DefaultApplication{
		loader:   config.NewLoader(),
		registry: NewRegistry(),
		signals:  true,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// Run runs the application until ctx is cancelled or a termination
// signal arrives
func (app *DefaultApplication) Run(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}

	if app.signals {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
	}
	<-ctx.Done()
	app.logger.Infof("shutting down %s", app.cfg.App.Name)

	return app.Shutdown(context.Background())
}

// Start loads the configuration, builds the actor system and starts every
// service without blocking
func (app *DefaultApplication) Start(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if app.running {
		return fmt.Errorf("application is already running")
	}

	if err := app.build(); err != nil {
		app.closeLog()
		return &ApplicationError{Operation: "build", Err: err}
	}

	if err := app.lifecycleManager.Start(ctx); err != nil {
		app.closeLog()
		return err
	}
	app.running = true
	app.logger.Infof("%s %s started (system %s)", app.cfg.App.Name, app.cfg.App.Version, app.system.ID())
	return nil
}

func (app *DefaultApplication) build() error {
	cfg, err := app.loader.Load(app.configFile)
	if err != nil {
		return err
	}
	app.cfg = cfg

	if err := app.buildLogger(); err != nil {
		return err
	}

	opts := append(cfg.SystemOptions(), core.WithLogger(app.logger))
	system, err := core.NewActorSystem(opts...)
	if err != nil {
		return fmt.Errorf("failed to create actor system: %w", err)
	}
	app.system = system

	if err := app.populate(); err != nil {
		return err
	}
	for _, fn := range app.configure {
		if err := fn(system); err != nil {
			return fmt.Errorf("configure hook failed: %w", err)
		}
	}

	app.lifecycleManager = NewLifecycleManager(app.logger)
	return app.registerServices()
}

func (app *DefaultApplication) buildLogger() error {
	format, err := app.cfg.LogFormat()
	if err != nil {
		return err
	}

	output := app.logOutput
	if output == nil {
		output, app.logCloser, err = openLogOutput(app.cfg.Log.Output)
		if err != nil {
			return err
		}
	}
	app.logger = log.NewWithFormat(app.cfg.LogLevel(), format, output).With("app", app.cfg.App.Name)
	return nil
}

func openLogOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return f, f, nil
	}
}

func (app *DefaultApplication) closeLog() {
	if app.logCloser != nil {
		_ = app.logCloser.Close()
		app.logCloser = nil
	}
}

func (app *DefaultApplication) populate() error {
	setup := app.setup
	if setup == nil && app.cfg.Setup.Path != "" {
		loaded, err := config.LoadSetupFile(app.cfg.Setup.Path)
		if err != nil {
			return err
		}
		setup = loaded
	}
	if setup == nil {
		return nil
	}

	handles, err := app.registry.Populate(app.system, setup)
	if err != nil {
		return err
	}

	app.handles = make(map[string]core.ActorHandle, len(handles))
	for id, handle := range handles {
		app.handles[id.String()] = handle
	}
	app.logger.Infof("built %d actors from setup %s", len(handles), setup.Version)
	return nil
}

func (app *DefaultApplication) registerServices() error {
	lm := app.lifecycleManager

	if err := lm.Register(ActorSystemServiceName, &ActorSystemService{system: app.system}); err != nil {
		return err
	}
	if cooperative := app.cfg.Scheduler.CooperativeGroups; cooperative > 0 {
		hostLoop := NewHostLoop(app.system, cooperative, app.logger)
		if err := lm.Register(HostLoopServiceName, hostLoop, ActorSystemServiceName); err != nil {
			return err
		}
	}
	if app.configFile != "" {
		watcher := &ConfigWatcherService{app: app}
		if err := lm.Register(ConfigWatcherServiceName, watcher, ActorSystemServiceName); err != nil {
			return err
		}
	}
	for _, entry := range app.services {
		deps := append([]string{ActorSystemServiceName}, entry.deps...)
		if err := lm.Register(entry.service.Name(), entry.service, deps...); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops every service in reverse order
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	defer app.mutex.Unlock()

	if !app.running {
		return nil
	}
	app.running = false

	err := app.lifecycleManager.Stop(ctx)
	if err != nil {
		app.logger.Errorf("shutdown finished with errors: %v", err)
	} else {
		app.logger.Infof("%s stopped", app.cfg.App.Name)
	}
	app.closeLog()
	return err
}

// applyConfig applies the settings that can change at runtime
func (app *DefaultApplication) applyConfig(oldConfig, newConfig *config.Config) {
	app.mutex.Lock()
	app.cfg = newConfig
	app.mutex.Unlock()

	if oldConfig.LogLevel() != newConfig.LogLevel() {
		app.logger.SetLevel(newConfig.LogLevel())
		app.logger.Infof("log level changed to %s", newConfig.LogLevel())
	}
	if oldConfig.IO.Concurrency != newConfig.IO.Concurrency {
		app.system.SetIOConcurrency(newConfig.IO.Concurrency)
		app.logger.Infof("io concurrency changed to %d", newConfig.IO.Concurrency)
	}
	if oldConfig.Scheduler != newConfig.Scheduler || oldConfig.Setup != newConfig.Setup {
		app.logger.Warnf("scheduler and setup changes apply after a restart")
	}
}

// System returns the actor system
func (app *DefaultApplication) System() *core.ActorSystem {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.system
}

// Config returns the current configuration
func (app *DefaultApplication) Config() *config.Config {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.cfg
}

// Logger returns the application logger
func (app *DefaultApplication) Logger() log.Logger {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.logger
}

// Handle returns the handle of a setup actor by its id
func (app *DefaultApplication) Handle(id string) (core.ActorHandle, bool) {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	handle, exists := app.handles[id]
	return handle, exists
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() LifecycleManager {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.lifecycleManager
}
