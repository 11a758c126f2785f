package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

const (
	// TraceLevel indicates a log message's level of criticality
	TraceLevel = iota
	// DebugLevel indicates a log message's level of criticality
	DebugLevel
	// InfoLevel indicates a log message's level of criticality
	InfoLevel
	// WarnLevel indicates a log message's level of criticality
	WarnLevel
	// ErrorLevel indicates a log message's level of criticality
	ErrorLevel
	// FatalLevel indicates a log message's level of criticality
	FatalLevel
)

// LogLevelToString translates a log level enum to a string representation
func LogLevelToString(level int) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "TRACE"
	}
}

// Logger is a leveled logger scoped to one named component. Messages below
// the configured level are dropped.
type Logger struct {
	mu    sync.Mutex
	name  string
	level int
	out   *log.Logger
}

// New returns a Logger writing to stderr at the given level.
func New(name string, level int) *Logger {
	return NewWithOutput(name, level, os.Stderr)
}

// NewWithOutput returns a Logger writing to w at the given level.
func NewWithOutput(name string, level int, w io.Writer) *Logger {
	return &Logger{
		name:  name,
		level: level,
		out:   log.New(w, "", log.LstdFlags),
	}
}

// SetLevel adjusts the minimum level this Logger emits.
func (l *Logger) SetLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) logf(level int, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	l.out.Printf("[%s] %s: %s", LogLevelToString(level), l.name, fmt.Sprintf(format, args...))
}

// Tracef logs a message at TraceLevel.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.logf(TraceLevel, format, args...)
}

// Debugf logs a message at DebugLevel.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf(DebugLevel, format, args...)
}

// Infof logs a message at InfoLevel.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf(InfoLevel, format, args...)
}

// Warnf logs a message at WarnLevel.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf(WarnLevel, format, args...)
}

// Errorf logs a message at ErrorLevel.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf(ErrorLevel, format, args...)
}
