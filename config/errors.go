// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidScheduler   = errors.New("invalid scheduler configuration")
	ErrInvalidConcurrency = errors.New("invalid io concurrency")
	ErrInvalidTimeout     = errors.New("invalid shutdown timeout")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParseError   = errors.New("configuration parse error")
	ErrUnsupportedFormat  = errors.New("unsupported configuration format")
)

// Setup errors
var (
	ErrUnsupportedSetupVersion = errors.New("unsupported setup version")
	ErrInvalidSetup            = errors.New("invalid setup")
)
