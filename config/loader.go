// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "SYNCRT"

// Loader handles configuration loading from various sources
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config

	// Environment lookup, os.LookupEnv unless replaced
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
			"/etc/syncrt",
		},
		envPrefix:     DefaultEnvPrefix,
		defaultConfig: DefaultConfig(),
		lookupEnv:     os.LookupEnv,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the specified file. An empty filename
// falls back to AutoLoad.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}
	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file, merged over the
// defaults and overridden by the environment
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	resolveSetupPath(config, filename)
	return l.finish(l.mergeConfig(l.defaults(), config))
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(l.mergeConfig(l.defaults(), config))
}

// AutoLoad discovers a configuration file in the search paths, falling
// back to the defaults when there is none
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if err == ErrConfigFileNotFound {
		config := *l.defaults()
		return l.finish(&config)
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

func (l *Loader) defaults() *Config {
	if l.defaultConfig == nil {
		return DefaultConfig()
	}
	return l.defaultConfig
}

func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"syncrt.yaml", "syncrt.yml",
		"config.yaml", "config.yml",
		"syncrt.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}
	return "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// resolveSetupPath makes a relative setup path relative to the config file
func resolveSetupPath(config *Config, filename string) {
	if config.Setup.Path == "" || filepath.IsAbs(config.Setup.Path) {
		return
	}
	config.Setup.Path = filepath.Join(filepath.Dir(filename), config.Setup.Path)
}

// parseConfig parses configuration data based on format
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := &Config{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return config, nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(name string) (string, bool) {
		val, ok := l.lookupEnv(l.envPrefix + "_" + name)
		return val, ok && val != ""
	}

	// App configuration
	if val, ok := env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}

	// Log configuration
	if val, ok := env("LOG_LEVEL"); ok {
		config.Log.Level = val
	}
	if val, ok := env("LOG_FORMAT"); ok {
		config.Log.Format = val
	}
	if val, ok := env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}

	// Scheduler configuration
	if val, ok := env("SCHEDULER_GROUPS"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_SCHEDULER_GROUPS: %w", l.envPrefix, err)
		}
		config.Scheduler.Groups = n
	}
	if val, ok := env("SCHEDULER_COOPERATIVE_GROUPS"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_SCHEDULER_COOPERATIVE_GROUPS: %w", l.envPrefix, err)
		}
		config.Scheduler.CooperativeGroups = n
	}
	if val, ok := env("SCHEDULER_CYCLE_TIME"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s_SCHEDULER_CYCLE_TIME: %w", l.envPrefix, err)
		}
		config.Scheduler.CycleTime = d
	}

	// IO configuration
	if val, ok := env("IO_CONCURRENCY"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%s_IO_CONCURRENCY: %w", l.envPrefix, err)
		}
		config.IO.Concurrency = n
	}

	// Actor configuration
	if val, ok := env("ACTOR_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%s_ACTOR_SHUTDOWN_TIMEOUT: %w", l.envPrefix, err)
		}
		config.Actor.ShutdownTimeout = d
	}

	// Setup configuration
	if val, ok := env("SETUP_PATH"); ok {
		config.Setup.Path = val
	}

	return nil
}

// mergeConfig merges user config with default config
func (l *Loader) mergeConfig(defaultConfig, userConfig *Config) *Config {
	// Start with default config
	merged := *defaultConfig

	// App config
	if userConfig.App.Name != "" {
		merged.App.Name = userConfig.App.Name
	}
	if userConfig.App.Version != "" {
		merged.App.Version = userConfig.App.Version
	}
	if userConfig.App.Environment != "" {
		merged.App.Environment = userConfig.App.Environment
	}
	if userConfig.App.Description != "" {
		merged.App.Description = userConfig.App.Description
	}

	// Log config
	if userConfig.Log.Level != "" {
		merged.Log.Level = userConfig.Log.Level
	}
	if userConfig.Log.Format != "" {
		merged.Log.Format = userConfig.Log.Format
	}
	if userConfig.Log.Output != "" {
		merged.Log.Output = userConfig.Log.Output
	}

	// Scheduler config
	if userConfig.Scheduler.Groups != 0 {
		merged.Scheduler.Groups = userConfig.Scheduler.Groups
	}
	if userConfig.Scheduler.CooperativeGroups != 0 {
		merged.Scheduler.CooperativeGroups = userConfig.Scheduler.CooperativeGroups
	}
	if userConfig.Scheduler.CycleTime != 0 {
		merged.Scheduler.CycleTime = userConfig.Scheduler.CycleTime
	}
	if userConfig.Scheduler.SleepRatio != 0 {
		merged.Scheduler.SleepRatio = userConfig.Scheduler.SleepRatio
	}
	if userConfig.Scheduler.WaitTime != 0 {
		merged.Scheduler.WaitTime = userConfig.Scheduler.WaitTime
	}

	// IO config
	if userConfig.IO.Concurrency != 0 {
		merged.IO.Concurrency = userConfig.IO.Concurrency
	}

	// Actor config
	if userConfig.Actor.ShutdownTimeout != 0 {
		merged.Actor.ShutdownTimeout = userConfig.Actor.ShutdownTimeout
	}

	// Setup config
	if userConfig.Setup.Path != "" {
		merged.Setup.Path = userConfig.Setup.Path
	}

	return &merged
}
