// Package config provides configuration management for syncrt hosts
package config

import (
	"fmt"
	"time"

	"github.com/najoast/syncrt/core"
	"github.com/najoast/syncrt/log"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// Config represents the complete runtime configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Scheduler configuration
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`

	// IO component configuration
	IO IOConfig `yaml:"io" json:"io"`

	// Actor system configuration
	Actor ActorConfig `yaml:"actor" json:"actor"`

	// Actor system setup file
	Setup SetupFileConfig `yaml:"setup" json:"setup"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Application description
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Log format (json, text)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// SchedulerConfig contains execution group settings
type SchedulerConfig struct {
	// Number of execution groups
	Groups int `yaml:"groups" json:"groups"`

	// Groups ticked by the host loop instead of their own goroutine
	CooperativeGroups int `yaml:"cooperative_groups" json:"cooperative_groups"`

	// Time slice of one pass over a group
	CycleTime time.Duration `yaml:"cycle_time" json:"cycle_time"`

	// Share of the cycle a busy group sleeps
	SleepRatio float64 `yaml:"sleep_ratio" json:"sleep_ratio"`

	// Upper bound of an idle group's wait
	WaitTime time.Duration `yaml:"wait_time" json:"wait_time"`
}

// IOConfig contains IO component settings
type IOConfig struct {
	// Maximum concurrent jobs per actor, 0 means the number of CPUs
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// ActorConfig contains actor system settings
type ActorConfig struct {
	// How long Stop waits for async components
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// SetupFileConfig locates the actor system setup
type SetupFileConfig struct {
	// Path of the setup file, relative paths resolve against the config file
	Path string `yaml:"path" json:"path"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	scheduler := core.DefaultSchedulerConfig()
	return &Config{
		App: AppConfig{
			Name:        "syncrt-app",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
			Description: "syncrt application",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			Groups:            scheduler.Groups,
			CooperativeGroups: scheduler.CooperativeGroups,
			CycleTime:         scheduler.CycleTime,
			SleepRatio:        scheduler.SleepRatio,
			WaitTime:          scheduler.WaitTime,
		},
		IO: IOConfig{
			Concurrency: 0,
		},
		Actor: ActorConfig{
			ShutdownTimeout: core.DefaultShutdownTimeout,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level)
	}
	if _, err := c.LogFormat(); err != nil {
		return err
	}

	if err := c.SchedulerOptions().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScheduler, err)
	}
	if c.IO.Concurrency < 0 {
		return ErrInvalidConcurrency
	}
	if c.Actor.ShutdownTimeout <= 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() log.Level {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// LogFormat returns the parsed log format
func (c *Config) LogFormat() (log.Format, error) {
	switch c.Log.Format {
	case "", "text":
		return log.FormatText, nil
	case "json":
		return log.FormatJSON, nil
	default:
		return log.FormatText, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Log.Format)
	}
}

// SchedulerOptions converts the scheduler section to core options
func (c *Config) SchedulerOptions() core.SchedulerConfig {
	return core.SchedulerConfig{
		Groups:            c.Scheduler.Groups,
		CooperativeGroups: c.Scheduler.CooperativeGroups,
		CycleTime:         c.Scheduler.CycleTime,
		SleepRatio:        c.Scheduler.SleepRatio,
		WaitTime:          c.Scheduler.WaitTime,
	}
}

// SystemOptions returns the actor system options described by c
func (c *Config) SystemOptions() []core.SystemOption {
	return []core.SystemOption{
		core.WithScheduler(c.SchedulerOptions()),
		core.WithIOConcurrency(c.IO.Concurrency),
		core.WithShutdownTimeout(c.Actor.ShutdownTimeout),
	}
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
