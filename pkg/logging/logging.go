// Package logging holds the process-wide slog logger shared by every
// component of the study buddy.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Environment variables read when the logger is first used without Configure.
const (
	EnvLevel  = "STUDYBUDDY_LOG_LEVEL"
	EnvFormat = "STUDYBUDDY_LOG_FORMAT"
)

const serviceName = "studybuddy"

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

// Options selects the level, format and sink of the shared logger.
type Options struct {
	// Level is debug, info, warn or error. Unknown values mean info.
	Level string
	// Format is json (default) or text.
	Format string
	// Output defaults to stdout.
	Output io.Writer
}

// OptionsFromEnv reads Options from STUDYBUDDY_LOG_LEVEL and STUDYBUDDY_LOG_FORMAT.
func OptionsFromEnv() Options {
	return Options{
		Level:  os.Getenv(EnvLevel),
		Format: os.Getenv(EnvFormat),
	}
}

// Configure builds a logger from opts, installs it as the shared logger and
// as the slog default, and returns it.
func Configure(opts Options) *slog.Logger {
	l := New(opts)
	SetLogger(l)
	slog.SetDefault(l)
	return l
}

// New builds a logger from opts without installing it.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	level, _ := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(out, handlerOpts)
	default:
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.New(handler).With("service", serviceName)
}

// ParseLevel maps a level name to a slog level. It reports false, and
// returns info, for names it does not know.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Logger returns the shared logger. Until Configure or SetLogger is called it
// is built from the environment.
func Logger() *slog.Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(OptionsFromEnv())
	}
	return defaultLogger
}

// SetLogger overrides the shared logger; mainly useful for tests.
func SetLogger(l *slog.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// WithComponent attaches a component field to the shared logger.
func WithComponent(component string) *slog.Logger {
	return Logger().With("component", component)
}
