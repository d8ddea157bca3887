package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gapper-terminal/src/models"
)

// -----------------------------------------------------------------------------

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var (
	outputMu      sync.RWMutex
	defaultOutput io.Writer = os.Stdout
	defaultLevel            = LevelInfo
)

// -----------------------------------------------------------------------------

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warning", "warn":
		return LevelWarning
	case "error":
		return LevelError
	case "critical":
		return LevelCritical
	}
	return LevelInfo
}

// -----------------------------------------------------------------------------

// SetOutput redirects every logger created afterwards. The terminal UI points
// this at a file so log lines do not tear the screen.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	defaultOutput = w
}

// SetLevel sets the threshold for loggers created without a config.
func SetLevel(level Level) {
	outputMu.Lock()
	defer outputMu.Unlock()
	defaultLevel = level
}

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	logger *log.Logger
	config interface{}
	level  Level
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance
func NewLogger(config interface{}, name string) *Logger {
	outputMu.RLock()
	out, level := defaultOutput, defaultLevel
	outputMu.RUnlock()

	switch c := config.(type) {
	case *models.MConfig:
		if c != nil && c.LogLevel != "" {
			level = ParseLevel(c.LogLevel)
		}
	case models.MConfig:
		if c.LogLevel != "" {
			level = ParseLevel(c.LogLevel)
		}
	}

	l := &Logger{
		name:   name,
		logger: log.New(out, "", log.LstdFlags),
		config: config,
		level:  level,
	}
	return l
}

// -----------------------------------------------------------------------------

// Named returns a sibling logger sharing output and level.
func (l *Logger) Named(name string) *Logger {
	return &Logger{name: name, logger: l.logger, config: l.config, level: l.level}
}

// -----------------------------------------------------------------------------

func (l *Logger) emit(level Level, tag, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.name, tag, msg)
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.emit(LevelDebug, "DEBUG", format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.emit(LevelWarning, "WARNING", format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit(LevelInfo, "INFO", format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit(LevelError, "ERROR", format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] CRITICAL: %s", l.name, msg)
	os.Exit(1)
}
