// Package logging adapts the engine's diagnostic call sites to a single
// small interface so embedders can plug in their own logging pipeline; the
// default backend is logrus.
package logging

import (
	"github.com/sirupsen/logrus"
)

// Level mirrors the handful of levels the engine actually emits.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Logger is the minimal surface every engine package logs through.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	WithFields(fields map[string]any) Logger
	GetLevel() Level
}

// logrusLogger implements Logger on top of *logrus.Entry.
type logrusLogger struct {
	entry *logrus.Entry
	level Level
}

// New returns a Logger backed by logrus, defaulting to Info level and text
// output.
func New() Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &logrusLogger{entry: logrus.NewEntry(l), level: Info}
}

// NewWithLogrus wraps a caller-supplied *logrus.Logger, letting embedders
// share one logging pipeline across their own code and the engine.
func NewWithLogrus(l *logrus.Logger) Logger {
	lvl := Info
	switch l.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		lvl = Debug
	case logrus.WarnLevel:
		lvl = Warn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		lvl = Error
	}
	return &logrusLogger{entry: logrus.NewEntry(l), level: lvl}
}

func (l *logrusLogger) Debug(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Info(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warn(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields), level: l.level}
}

func (l *logrusLogger) GetLevel() Level { return l.level }

// Nop returns a Logger that discards everything, useful in tests that don't
// care about diagnostics.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)               {}
func (nopLogger) Info(string, ...any)                {}
func (nopLogger) Warn(string, ...any)                {}
func (nopLogger) Error(string, ...any)               {}
func (n nopLogger) WithFields(map[string]any) Logger { return n }
func (nopLogger) GetLevel() Level                    { return Error }
