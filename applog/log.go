// Package applog provides the leveled, subsystem-tagged logging used
// throughout this module. No example in the reference corpus pulls in a
// structured logging library (zerolog/zap/logrus) — gocryptotrader's own
// log package, subsystem-tagged and leveled as its tests call it
// (Debugf/Warnf/Errorf), is itself a thin wrapper over the standard
// library's log.Logger, so applog follows the same shape directly on
// top of "log" rather than adding a dependency the corpus never reaches for.
package applog

import (
	"fmt"
	"log"
	"os"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) tag() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a subsystem-tagged logger, e.g. applog.New("supervisor").
type Logger struct {
	subsystem string
	min       Level
	out       *log.Logger
}

var defaultMinLevel = LevelInfo

// SetMinLevel sets the minimum level for loggers created afterward by New.
// Existing Loggers are unaffected.
func SetMinLevel(l Level) { defaultMinLevel = l }

// New returns a Logger tagged with subsystem, writing to stderr with the
// standard library's default date/time prefix.
func New(subsystem string) *Logger {
	return &Logger{
		subsystem: subsystem,
		min:       defaultMinLevel,
		out:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	l.out.Printf("[%s] %s: %s", level.tag(), l.subsystem, fmt.Sprintf(format, args...))
}

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }
