// Package logger provides a simple logging interface for fleetmon components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// DebugEnv enables debug output for env-based loggers when set to any value.
const DebugEnv = "FLEETMON_DEBUG"

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Level is a minimum severity for a leveled logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// stdLogger implements Logger on top of the standard log package.
type stdLogger struct {
	prefix string
	level  Level
}

// NewEnvLogger creates a logger that respects the FLEETMON_DEBUG environment variable.
// The prefix is prepended to all log messages (e.g., "[pool]" or "[scheduler]").
func NewEnvLogger(prefix string) Logger {
	level := LevelInfo
	if os.Getenv(DebugEnv) != "" {
		level = LevelDebug
	}
	return &stdLogger{prefix: prefix, level: level}
}

// New creates a logger that drops messages below level.
// FLEETMON_DEBUG still forces debug output.
func New(prefix string, level Level) Logger {
	if os.Getenv(DebugEnv) != "" {
		level = LevelDebug
	}
	return &stdLogger{prefix: prefix, level: level}
}

// Named returns a logger that shares l's level but uses prefix.
// Loggers that are not created by this package are returned unchanged.
func Named(l Logger, prefix string) Logger {
	if s, ok := l.(*stdLogger); ok {
		return &stdLogger{prefix: prefix, level: s.level}
	}
	return l
}

func (l *stdLogger) logf(level Level, tag, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := format
	if tag != "" {
		msg = tag + ": " + format
	}
	if l.prefix != "" {
		msg = l.prefix + " " + msg
	}
	log.Printf(msg, args...)
}

func (l *stdLogger) Debug(format string, args ...interface{}) {
	l.logf(LevelDebug, "", format, args...)
}

func (l *stdLogger) Info(format string, args ...interface{}) {
	l.logf(LevelInfo, "", format, args...)
}

func (l *stdLogger) Warn(format string, args ...interface{}) {
	l.logf(LevelWarn, "WARN", format, args...)
}

func (l *stdLogger) Error(format string, args ...interface{}) {
	l.logf(LevelError, "ERROR", format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// Safe for use from concurrent poll cycles; read Messages directly only
// once writers are done, or use Entries.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// Entries returns a copy of the captured messages.
func (l *BufferLogger) Entries() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.Messages))
	copy(out, l.Messages)
	return out
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Entries() {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Contains reports whether any message at level contains substr.
func (l *BufferLogger) Contains(level, substr string) bool {
	for _, m := range l.Entries() {
		if m.Level == level && strings.Contains(m.Message, substr) {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewEnvLogger("")
)

// Default returns the default logger for the package.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger for the package.
func SetDefault(l Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = l
}
