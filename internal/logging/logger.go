// Package logging provides the structured logger shared by launcher
// components.
//
// Components accept the Logger interface so callers can plug in their own
// implementation. The default is a no-op logger; the CLI installs a
// slog-backed logger that writes to stderr and, optionally, a log file under
// the launcher home.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Logger provides structured logging for launcher operations.
type Logger interface {
	// Debug logs debug-level messages with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs info-level messages with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs warning-level messages with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs error-level messages with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger is a Logger implementation that does nothing.
type noopLogger struct{}

func (n *noopLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (n *noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (n *noopLogger) Error(msg string, keysAndValues ...interface{}) {}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &noopLogger{}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// With returns a logger that adds keysAndValues to every entry.
func With(l Logger, keysAndValues ...interface{}) Logger {
	switch t := l.(type) {
	case nil:
		return Nop()
	case *noopLogger:
		return t
	case *SlogLogger:
		return t.With(keysAndValues...)
	default:
		return &contextLogger{inner: t, kv: keysAndValues}
	}
}

type contextLogger struct {
	inner Logger
	kv    []interface{}
}

func (c *contextLogger) merge(kv []interface{}) []interface{} {
	out := make([]interface{}, 0, len(c.kv)+len(kv))
	return append(append(out, c.kv...), kv...)
}

func (c *contextLogger) Debug(msg string, kv ...interface{}) { c.inner.Debug(msg, c.merge(kv)...) }
func (c *contextLogger) Info(msg string, kv ...interface{})  { c.inner.Info(msg, c.merge(kv)...) }
func (c *contextLogger) Warn(msg string, kv ...interface{})  { c.inner.Warn(msg, c.merge(kv)...) }
func (c *contextLogger) Error(msg string, kv ...interface{}) { c.inner.Error(msg, c.merge(kv)...) }

// Config configures a slog-backed Logger.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Default: info.
	Level string
	// JSON selects the JSON handler instead of text.
	JSON bool
	// File, when set, receives a copy of every record in JSON format.
	File string
	// Writer is the primary destination. Default: os.Stderr.
	Writer io.Writer
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	file   *os.File
}

// New builds a slog-backed Logger from cfg.
func New(cfg Config) (*SlogLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := &SlogLogger{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = f
		handler = &teeHandler{primary: handler, secondary: slog.NewJSONHandler(f, opts)}
	}

	l.logger = slog.New(handler)
	return l, nil
}

// With returns a logger that always includes the given attributes.
func (l *SlogLogger) With(keysAndValues ...interface{}) *SlogLogger {
	return &SlogLogger{logger: l.logger.With(keysAndValues...)}
}

func (l *SlogLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *SlogLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *SlogLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}

func (l *SlogLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

// Close closes the log file, if any. Safe to call more than once.
func (l *SlogLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
