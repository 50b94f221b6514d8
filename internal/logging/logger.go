// Package logging is the leveled, field-based logger used across shotwatch.
// Entries go to a text sink as `level=info component=watcher msg="..." key="value"`
// lines and into an in-memory ring that the API serves at /api/logs.
package logging

import (
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const DefaultBufferSize = 1000

type Logger struct {
	buffer   *LogBuffer
	output   *log.Logger
	minLevel Level
	fields   map[string]string
}

// NewLogger writes to stderr.
func NewLogger(buffer *LogBuffer, minLevel Level) *Logger {
	return NewLoggerWithOutput(buffer, minLevel, os.Stderr)
}

func NewLoggerWithOutput(buffer *LogBuffer, minLevel Level, output io.Writer) *Logger {
	if buffer == nil {
		buffer = NewLogBuffer(DefaultBufferSize)
	}
	if output == nil {
		output = io.Discard
	}
	if _, ok := levelRanks[minLevel]; !ok {
		minLevel = LevelInfo
	}
	return &Logger{
		buffer:   buffer,
		output:   log.New(output, "", log.LstdFlags),
		minLevel: minLevel,
	}
}

func (l *Logger) Buffer() *LogBuffer {
	if l == nil {
		return nil
	}
	return l.buffer
}

// With returns a child logger that adds fields to every entry. Child fields win
// over the parent's on conflict.
func (l *Logger) With(fields map[string]string) *Logger {
	if l == nil {
		return nil
	}
	child := *l
	child.fields = mergeFields(l.fields, fields)
	return &child
}

func (l *Logger) Component(name string) *Logger {
	return l.With(map[string]string{FieldComponent: name})
}

func (l *Logger) Debug(message string, fields map[string]string) {
	l.log(LevelDebug, message, fields)
}

func (l *Logger) Info(message string, fields map[string]string) {
	l.log(LevelInfo, message, fields)
}

func (l *Logger) Warn(message string, fields map[string]string) {
	l.log(LevelWarning, message, fields)
}

func (l *Logger) Error(message string, fields map[string]string) {
	l.log(LevelError, message, fields)
}

func (l *Logger) Enabled(level Level) bool {
	if l == nil {
		return false
	}
	return LevelAtLeast(level, l.minLevel)
}

func (l *Logger) log(level Level, message string, fields map[string]string) {
	if !l.Enabled(level) {
		return
	}
	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   mergeFields(l.fields, fields),
	}
	l.buffer.Add(entry)
	l.output.Print(formatEntry(entry))
}

func mergeFields(base, extra map[string]string) map[string]string {
	if len(base) == 0 && len(extra) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(extra))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range extra {
		merged[key] = value
	}
	return merged
}

// formatEntry puts level, component and message first, then the remaining
// fields in key order.
func formatEntry(entry LogEntry) string {
	var builder strings.Builder
	builder.WriteString("level=")
	builder.WriteString(string(entry.Level))
	if component := entry.Component(); component != "" {
		builder.WriteString(" component=")
		builder.WriteString(component)
	}
	builder.WriteString(" msg=")
	builder.WriteString(strconv.Quote(entry.Message))

	keys := make([]string, 0, len(entry.Context))
	for key := range entry.Context {
		if key != FieldComponent {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		builder.WriteByte(' ')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(strconv.Quote(entry.Context[key]))
	}
	return builder.String()
}
