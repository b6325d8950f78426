// Package logx provides the leveled, component-scoped logger used across
// the scheduler. Every package that performs I/O or makes a scheduling
// decision is constructed with a Logger rather than reaching for the
// global log package directly.
package logx

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "INFO", ...) to a Level.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger is the structured logging interface used throughout the scheduler.
// fields are passed as alternating key/value pairs, e.g.
// log.Info("scheduled stage", "jobId", id, "stageId", stageID).
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	// With returns a child logger that always appends the given key/value
	// pairs to every message it logs, used to pin a scheduling-run
	// correlation ID across a whole ScheduleJob/RecalculateAll call.
	With(fields ...interface{}) Logger
}

// stdLogger implements Logger over the standard library's log.Logger.
type stdLogger struct {
	component string
	level     Level
	sticky    []interface{}
	out       *log.Logger
}

// New creates a Logger tagged with component, filtered at level.
func New(component string, level Level) Logger {
	return &stdLogger{
		component: component,
		level:     level,
		out:       log.New(os.Stdout, "", 0),
	}
}

func (l *stdLogger) With(fields ...interface{}) Logger {
	combined := make([]interface{}, 0, len(l.sticky)+len(fields))
	combined = append(combined, l.sticky...)
	combined = append(combined, fields...)
	return &stdLogger{component: l.component, level: l.level, sticky: combined, out: l.out}
}

func (l *stdLogger) format(level Level, msg string, fields ...interface{}) string {
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")

	var b strings.Builder
	all := append(append([]interface{}{}, l.sticky...), fields...)
	if len(all) > 0 {
		b.WriteString(" |")
		for i := 0; i+1 < len(all); i += 2 {
			fmt.Fprintf(&b, " %s=%v", all[i], all[i+1])
		}
	}
	return fmt.Sprintf("[%s] %s [%s] %s%s", ts, level, l.component, msg, b.String())
}

func (l *stdLogger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}
	l.out.Println(l.format(level, msg, fields...))
}

func (l *stdLogger) Debug(msg string, fields ...interface{}) { l.log(LevelDebug, msg, fields...) }
func (l *stdLogger) Info(msg string, fields ...interface{})  { l.log(LevelInfo, msg, fields...) }
func (l *stdLogger) Warn(msg string, fields ...interface{})  { l.log(LevelWarn, msg, fields...) }
func (l *stdLogger) Error(msg string, fields ...interface{}) { l.log(LevelError, msg, fields...) }
func (l *stdLogger) Fatal(msg string, fields ...interface{}) {
	l.out.Println(l.format(LevelFatal, msg, fields...))
	os.Exit(1)
}

// Noop returns a Logger that discards every Debug/Info/Warn/Error line;
// Fatal still prints and exits. Useful in tests.
func Noop() Logger { return &stdLogger{component: "noop", level: LevelFatal + 1, out: log.New(os.Stdout, "", 0)} }
