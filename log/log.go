// Package log provides the structured logger used across the runtime.
//
// The Logger interface is deliberately small so actors and components can
// take it as a dependency. The default implementation is backed by zap.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the logging severity.
type Level int

const (
	// DebugLevel logs everything
	DebugLevel Level = iota
	// InfoLevel is the default level
	InfoLevel
	// WarningLevel logs warnings and errors
	WarningLevel
	// ErrorLevel logs errors only
	ErrorLevel
	// InvalidLevel disables logging
	InvalidLevel
)

// String returns the string representation of Level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarningLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "invalid"
	}
}

// ParseLevel converts a level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarningLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InvalidLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is the logging contract used by the runtime.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	// With returns a child logger carrying the given key/value pairs.
	With(keysAndValues ...any) Logger
	// SetLevel changes the level at runtime.
	SetLevel(level Level)
	// LogLevel returns the current level.
	LogLevel() Level
}

// DefaultLogger logs at info level to stdout.
var DefaultLogger = New(InfoLevel, os.Stdout)

// DiscardLogger drops everything.
var DiscardLogger = New(InvalidLevel, io.Discard)

// Format selects the encoder used by NewWithFormat.
type Format string

const (
	// FormatText renders human readable console lines
	FormatText Format = "text"
	// FormatJSON renders one JSON object per line
	FormatJSON Format = "json"
)

type zapLogger struct {
	level  zap.AtomicLevel
	logger *zap.SugaredLogger
}

var _ Logger = (*zapLogger)(nil)

// New creates a console Logger writing to the given writers.
func New(level Level, writers ...io.Writer) Logger {
	return NewWithFormat(level, FormatText, writers...)
}

// NewWithFormat creates a Logger with an explicit output format.
func NewWithFormat(level Level, format Format, writers ...io.Writer) Logger {
	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == FormatJSON {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, w := range writers {
		syncers = append(syncers, zapcore.AddSync(w))
	}
	if len(syncers) == 0 {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(syncers...), atomicLevel)
	return &zapLogger{
		level:  atomicLevel,
		logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(),
	}
}

func (l *zapLogger) Debug(args ...any)                 { l.logger.Debug(args...) }
func (l *zapLogger) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *zapLogger) Info(args ...any)                  { l.logger.Info(args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *zapLogger) Warn(args ...any)                  { l.logger.Warn(args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.logger.Warnf(format, args...) }
func (l *zapLogger) Error(args ...any)                 { l.logger.Error(args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }

func (l *zapLogger) With(keysAndValues ...any) Logger {
	return &zapLogger{
		level:  l.level,
		logger: l.logger.With(keysAndValues...),
	}
}

func (l *zapLogger) SetLevel(level Level) {
	l.level.SetLevel(toZapLevel(level))
}

func (l *zapLogger) LogLevel() Level {
	switch l.level.Level() {
	case zapcore.DebugLevel:
		return DebugLevel
	case zapcore.InfoLevel:
		return InfoLevel
	case zapcore.WarnLevel:
		return WarningLevel
	case zapcore.ErrorLevel:
		return ErrorLevel
	default:
		return InvalidLevel
	}
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case InfoLevel:
		return zapcore.InfoLevel
	case WarningLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		// above fatal, nothing is emitted
		return zapcore.FatalLevel + 1
	}
}
