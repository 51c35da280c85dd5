package grok

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

type Logger interface {
	DebugEnabled() bool
	SetDebug(enabled bool)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// DefaultLogger writes leveled, timestamped lines through charmbracelet/log.
type DefaultLogger struct {
	*log.Logger
}

func NewDefaultLogger(prefix string, debug bool) *DefaultLogger {
	return NewLoggerWithWriter(os.Stderr, prefix, debug)
}

func NewLoggerWithWriter(w io.Writer, prefix string, debug bool) *DefaultLogger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          prefix,
	})
	l.SetLevel(log.InfoLevel)
	if debug {
		l.SetLevel(log.DebugLevel)
	}
	return &DefaultLogger{Logger: l}
}

func (l *DefaultLogger) DebugEnabled() bool {
	return l.GetLevel() <= log.DebugLevel
}

func (l *DefaultLogger) SetDebug(enabled bool) {
	if enabled {
		l.SetLevel(log.DebugLevel)
	} else if l.GetLevel() < log.InfoLevel {
		l.SetLevel(log.InfoLevel)
	}
}

// LoggingModule installs a DefaultLogger as a resource. Level takes the
// charmbracelet/log level names ("debug", "info", "warn", "error") and
// overrides Debug when set.
type LoggingModule struct {
	Prefix string
	Debug  bool
	Level  string
	Output io.Writer
}

func (m LoggingModule) Install(app *App, cmd *Commands) {
	out := m.Output
	if out == nil {
		out = os.Stderr
	}
	logger := NewLoggerWithWriter(out, m.Prefix, m.Debug)
	if m.Level != "" {
		if lvl, err := log.ParseLevel(m.Level); err == nil {
			logger.SetLevel(lvl)
		} else {
			logger.Warnf("unknown log level %q, keeping %s", m.Level, logger.GetLevel())
		}
	}
	app.addResources(logger)
}

type nopLogger struct{}

func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) DebugEnabled() bool        { return false }
func (nopLogger) SetDebug(bool)             {}
func (nopLogger) Debugf(string, ...any)     {}
func (nopLogger) Infof(string, ...any)      {}
func (nopLogger) Warnf(string, ...any)      {}
func (nopLogger) Errorf(string, ...any)     {}

// Logger returns the installed Logger resource, or a no-op logger.
// Never returns nil.
func (app *App) Logger() Logger {
	if app == nil {
		return NewNopLogger()
	}
	for _, r := range app.resources {
		if l, ok := r.(Logger); ok {
			return l
		}
	}
	return NewNopLogger()
}
