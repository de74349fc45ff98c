// Package logging provides the structured-ish logging used throughout
// FileSentry, adapted from the teacher's pkg/logging package: a nil-safe
// logger tree built from dotted sublogger prefixes, writing through the
// standard log package so callers can redirect output with log.SetOutput,
// with warnings and errors colorized via github.com/fatih/color.
package logging

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/fatih/color"
)

// level is the process-wide minimum level that will actually be logged.
// Defaults to LevelInfo.
var level atomic.Uint32

func init() {
	level.Store(uint32(LevelInfo))
}

// SetLevel adjusts the process-wide logging threshold.
func SetLevel(l Level) {
	level.Store(uint32(l))
}

func enabled(l Level) bool {
	return l <= Level(level.Load())
}

// Logger is the main logger type. It has the property that it still
// functions if nil (in which case it discards everything), so call sites
// never need a nil check of their own.
type Logger struct {
	prefix string
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = &Logger{}

// Sublogger creates a new sublogger with the specified name, composing a
// dotted prefix with any existing prefix.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix}
}

func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// Info logs a line at LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && enabled(LevelInfo) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Infof logs a formatted line at LevelInfo.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && enabled(LevelInfo) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Debug logs a line at LevelDebug.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && enabled(LevelDebug) {
		l.output(3, fmt.Sprint(v...))
	}
}

// Debugf logs a formatted line at LevelDebug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && enabled(LevelDebug) {
		l.output(3, fmt.Sprintf(format, v...))
	}
}

// Warn logs a warning, colorized yellow.
func (l *Logger) Warn(v ...interface{}) {
	if l != nil && enabled(LevelWarn) {
		l.output(3, color.YellowString("warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf logs a formatted warning, colorized yellow.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil && enabled(LevelWarn) {
		l.output(3, color.YellowString("warning: %s", fmt.Sprintf(format, v...)))
	}
}

// Error logs an error, colorized red.
func (l *Logger) Error(v ...interface{}) {
	if l != nil && enabled(LevelError) {
		l.output(3, color.RedString("error: %s", fmt.Sprint(v...)))
	}
}

// Errorf logs a formatted error, colorized red.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l != nil && enabled(LevelError) {
		l.output(3, color.RedString("error: %s", fmt.Sprintf(format, v...)))
	}
}
