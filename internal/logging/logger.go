// Package logging provides a small leveled, structured logger that writes
// one JSON object per line.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields is a set of structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// WithField returns a single-entry field set.
func WithField(key string, value interface{}) Fields {
	return Fields{key: value}
}

// WithFields wraps an existing map as a field set.
func WithFields(fields map[string]interface{}) Fields {
	return Fields(fields)
}

// Logger is safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	fields Fields
}

// New creates a logger writing to stderr at the given minimum level.
func New(level Level) *Logger {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(level Level, w io.Writer) *Logger {
	return &Logger{out: w, level: level}
}

// With returns a child logger that always includes the given fields.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{out: l.out, level: l.level, fields: merged}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, fields []Fields) {
	if l == nil || level < l.level {
		return
	}

	entry := make(map[string]interface{}, len(l.fields)+4)
	for k, v := range l.fields {
		entry[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			entry[k] = v
		}
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(`{"level":"error","msg":"failed to encode log entry"}`)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(line, '\n'))
}
