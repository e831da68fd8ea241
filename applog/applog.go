// Package applog is the logging collaborator external to the core
// runtime ("logging/appender plumbing"). tinycore splits this into
// logging/appender.cpp (a chain of appenders: console, file, custom)
// feeding logging/log.cpp; the pack's application repos all replace
// that kind of hand-rolled appender chain with
// github.com/sirupsen/logrus, so that is what this package wraps.
//
// A Logger is a thin typed facade over *logrus.Logger: it exists so
// the rest of the module depends on a small interface instead of
// logrus directly. Callers add their own fields with WithField and
// WithFields; the core's components tag their loggers with a
// "component" field.
package applog

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry with the fields accumulated so far.
type Logger struct {
	entry *logrus.Entry
}

var defaultLogger = New(logrus.InfoLevel, os.Stderr)

// Default returns the process-wide Logger used when nothing more
// specific was injected.
func Default() *Logger { return defaultLogger }

// New builds a Logger writing to w at the given level, using logrus's
// text formatter the way tinycore's appenderconsole formats lines.
func New(level logrus.Level, w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(l)}
}

// NewMulti writes to every target in addition to stdout — the
// ambient-stack equivalent of tinycore's appender chain (console +
// file simultaneously).
func NewMulti(level logrus.Level, targets ...io.Writer) *Logger {
	return New(level, io.MultiWriter(append([]io.Writer{os.Stdout}, targets...)...))
}

// WithField returns a derived Logger carrying an extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields returns a derived Logger carrying several extra fields.
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{entry: l.entry.WithFields(fields)}
}

func (l *Logger) Debug(args ...interface{}) { l.entry.Debug(args...) }
func (l *Logger) Info(args ...interface{})  { l.entry.Info(args...) }
func (l *Logger) Warn(args ...interface{})  { l.entry.Warn(args...) }
func (l *Logger) Error(args ...interface{}) { l.entry.Error(args...) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// LogRequest emits the standard access-log line: "<status> <summary>
// <ms>ms", with severity derived from the status class (<400 info,
// <500 warn, else error) — tinycore's Application::logRequest does
// the same three-way severity split.
func (l *Logger) LogRequest(status int, summary string, elapsedMs float64) {
	fields := logrus.Fields{"status": status, "elapsed_ms": elapsedMs}
	entry := l.entry.WithFields(fields)
	line := fmt.Sprintf("%d %s %.2fms", status, summary, elapsedMs)
	switch {
	case status < 400:
		entry.Info(line)
	case status < 500:
		entry.Warn(line)
	default:
		entry.Error(line)
	}
}
