// Copyright (C) 2026 ShieldCore Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured, leveled logger used throughout
// the firewall core, backed by charmbracelet/log with optional syslog
// forwarding. Every component takes a *Logger rather than reaching for a
// package-level global, except through Default() for call sites (tests,
// small helpers) that have no logger to thread through.
package logging

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

// Level mirrors charmbracelet/log's levels so callers never import it directly.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) charm() charmlog.Level {
	switch l {
	case LevelDebug:
		return charmlog.DebugLevel
	case LevelWarn:
		return charmlog.WarnLevel
	case LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}

// Config configures a Logger.
type Config struct {
	Level      Level
	Output     io.Writer // defaults to os.Stderr
	Prefix     string    // top-level component name, e.g. "fwcore"
	ReportTime bool
	Syslog     SyslogConfig
}

// DefaultConfig returns sane defaults: info level, stderr, no syslog.
func DefaultConfig() Config {
	return Config{
		Level:      LevelInfo,
		Output:     os.Stderr,
		Prefix:     "fwcore",
		ReportTime: true,
		Syslog:     DefaultSyslogConfig(),
	}
}

// Logger wraps a charmbracelet/log logger with a fixed component label.
type Logger struct {
	inner     *charmlog.Logger
	component string
}

// New builds a Logger from cfg. If cfg.Syslog is enabled, log output is
// additionally forwarded to the configured syslog endpoint (best-effort:
// a syslog dial failure is logged locally and never prevents startup).
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	writers := []io.Writer{out}
	var syslogErr error
	if cfg.Syslog.Enabled {
		if w, err := NewSyslogWriter(cfg.Syslog); err == nil {
			writers = append(writers, w)
		} else {
			// Fall back to local-only logging; syslog is best-effort.
			writers = append(writers, io.Discard)
			syslogErr = err
		}
	}

	inner := charmlog.NewWithOptions(io.MultiWriter(writers...), charmlog.Options{
		Level:           cfg.Level.charm(),
		Prefix:          cfg.Prefix,
		ReportTimestamp: cfg.ReportTime,
	})
	if syslogErr != nil {
		inner.Warn("syslog forwarding disabled", "error", syslogErr)
	}
	return &Logger{inner: inner}
}

// WithComponent returns a derived Logger whose messages are tagged with
// component, e.g. logging.Default().WithComponent("orchestrator").
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{inner: l.inner.WithPrefix(component), component: component}
}

// With returns a derived Logger carrying the given structured key/value pairs
// on every subsequent call.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{inner: l.inner.With(kv...), component: l.component}
}

func (l *Logger) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.inner.Error(msg, kv...) }

var defaultLogger atomic.Pointer[Logger]
var defaultOnce sync.Once

// Default returns the process-wide default Logger, lazily initialized with
// DefaultConfig() if SetDefault was never called.
func Default() *Logger {
	defaultOnce.Do(func() {
		if defaultLogger.Load() == nil {
			defaultLogger.Store(New(DefaultConfig()))
		}
	})
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide default Logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}
