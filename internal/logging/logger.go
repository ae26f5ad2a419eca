package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger writes leveled lines for a run. A nil *Logger discards everything,
// so callers never need to guard their log statements.
type Logger struct {
	entry *logrus.Entry
}

// New builds a logger writing to out. level is one of debug, info, warn or
// error; format is text or json.
func New(out io.Writer, level, format string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	base := logrus.New()
	base.SetOutput(out)
	base.SetLevel(lvl)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("logging: unknown format %q", format)
	}
	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// Discard returns a logger that drops every line.
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(base)}
}

// With returns a child logger carrying an extra field.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil || l.entry == nil {
		return l
	}
	return &Logger{entry: l.entry.WithField(key, value)}
}

// Printf writes an info line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	l.entry.Infof(trim(format), args...)
}

// Debugf logs a diagnostic message, shown only at debug level.
func (l *Logger) Debugf(format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	l.entry.Debugf(trim(format), args...)
}

// Warnf logs a problem that does not stop the run.
func (l *Logger) Warnf(format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	l.entry.Warnf(trim(format), args...)
}

// Errorf logs a failure.
func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.entry == nil {
		return
	}
	l.entry.Errorf(trim(format), args...)
}

func trim(format string) string {
	return strings.TrimRight(format, "\n")
}
