// Package logging wraps zerolog behind a small field-oriented API. Components
// take a *Logger explicitly or pull one from the request context.
package logging

import (
	"context"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum severity written
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat selects JSON lines or human-readable console output
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
	LevelFatal: zerolog.FatalLevel,
}

// Logger is an immutable structured logger. With* methods return children
// that share the parent's output.
type Logger struct {
	format LogFormat
	zl     zerolog.Logger
}

// NewLogger creates a logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level LogLevel, format LogFormat, w io.Writer) *Logger {
	lvl, ok := zerologLevels[level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(writerFor(format, w)).Level(lvl).With().Timestamp().Logger()
	return &Logger{format: format, zl: zl}
}

func writerFor(format LogFormat, w io.Writer) io.Writer {
	if format == FormatText {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	return w
}

// SetOutput redirects the logger. Children created afterwards inherit the new writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.zl = l.zl.Output(writerFor(l.format, w))
}

// WithField returns a child logger carrying key=value
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{format: l.format, zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a child logger carrying every entry of fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{format: l.format, zl: l.zl.With().Fields(fields).Logger()}
}

// WithError returns a child logger carrying err under "error". A nil err is a no-op.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{format: l.format, zl: l.zl.With().Str("error", err.Error()).Logger()}
}

func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Error logs at error level with the caller location
func (l *Logger) Error(msg string) { l.zl.Error().Caller(1).Msg(msg) }

// Fatal logs with the caller location and exits the process
func (l *Logger) Fatal(msg string) { l.zl.Fatal().Caller(1).Msg(msg) }

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitGlobalLogger replaces the process-wide logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	globalMu.Lock()
	globalLogger = NewLogger(level, format)
	globalMu.Unlock()
}

// GetGlobalLogger returns the process-wide logger, creating an info/JSON one on first use
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo, FormatJSON)
	}
	return globalLogger
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{format: FormatJSON, zl: zerolog.Nop()}
}

// OrGlobal returns l, or the global logger when l is nil
func OrGlobal(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return GetGlobalLogger()
}

type loggerKey struct{}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global logger
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok && logger != nil {
		return logger
	}
	return GetGlobalLogger()
}

// ParseLogLevel parses a level name, defaulting to info
func ParseLogLevel(level string) LogLevel {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		s = "warn"
	}
	if _, ok := zerologLevels[LogLevel(s)]; ok {
		return LogLevel(s)
	}
	log.Printf("Unknown log level '%s', defaulting to 'info'", level)
	return LevelInfo
}

// ParseLogFormat parses a format name, defaulting to json
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return FormatJSON
	case "text", "console":
		return FormatText
	}
	log.Printf("Unknown log format '%s', defaulting to 'json'", format)
	return FormatJSON
}
