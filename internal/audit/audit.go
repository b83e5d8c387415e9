// Package audit keeps the ordered, timestamped record of every decision taken
// during one sync run. Entries are append-only and are rendered, joined by
// newlines, as the run's consolidated result.
package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"location-sync-service/pkg/logger"
)

// TimestampLayout is the second-precision layout used when rendering entries
const TimestampLayout = "2006-01-02 15:04:05"

// ActionPrefix marks entries that record a state-mutating operation
const ActionPrefix = "Action: "

// Level is the severity of an entry
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARNING"
	LevelError Level = "ERROR"
)

func (l Level) loggerLevel() logger.Level {
	switch l {
	case LevelDebug:
		return logger.DebugLevel
	case LevelWarn:
		return logger.WarnLevel
	case LevelError:
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

// Entry is one line of the audit log
type Entry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Action  bool      `json:"action"`
}

// String renders the entry as "timestamp, LEVEL, message"
func (e Entry) String() string {
	message := e.Message
	if e.Action {
		message = ActionPrefix + message
	}
	return fmt.Sprintf("%s, %s, %s", e.Time.Format(TimestampLayout), e.Level, message)
}

// Log is the audit log of a single run
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
	logger  logger.Logger
}

// Option configures a Log
type Option func(*Log)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithLogger mirrors every entry into the given process logger
func WithLogger(log logger.Logger) Option {
	return func(l *Log) {
		l.logger = log
	}
}

// New creates an empty audit log
func New(opts ...Option) *Log {
	l := &Log{
		now:    time.Now,
		logger: logger.GetGlobalLogger().WithComponent("audit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Log) append(level Level, action bool, message string) {
	entry := Entry{
		Time:    l.now().Truncate(time.Second),
		Level:   level,
		Message: message,
		Action:  action,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()

	if l.logger != nil {
		mirror := l.logger
		if action {
			mirror = mirror.WithField("action", true)
		}
		mirror.Log(level.loggerLevel(), message)
	}
}

// Debugf appends a debug entry
func (l *Log) Debugf(format string, args ...interface{}) {
	l.append(LevelDebug, false, fmt.Sprintf(format, args...))
}

// Infof appends an info entry
func (l *Log) Infof(format string, args ...interface{}) {
	l.append(LevelInfo, false, fmt.Sprintf(format, args...))
}

// Warnf appends a warning entry
func (l *Log) Warnf(format string, args ...interface{}) {
	l.append(LevelWarn, false, fmt.Sprintf(format, args...))
}

// Errorf appends an error entry
func (l *Log) Errorf(format string, args ...interface{}) {
	l.append(LevelError, false, fmt.Sprintf(format, args...))
}

// Actionf appends an info entry flagged as a state-mutating action
func (l *Log) Actionf(format string, args ...interface{}) {
	l.append(LevelInfo, true, fmt.Sprintf(format, args...))
}

// Entries returns a copy of the entries in append order
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Count returns the number of entries at the given level
func (l *Log) Count(level Level) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Actions returns the number of action entries
func (l *Log) Actions() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, e := range l.entries {
		if e.Action {
			n++
		}
	}
	return n
}

// String joins all entries with newlines in append order
func (l *Log) String() string {
	entries := l.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
