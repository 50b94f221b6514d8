package logging

import (
	"strings"
	"time"
)

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Fields attached to every entry by Component.
const FieldComponent = "shotwatch.component"

var levelRanks = map[Level]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// rank orders levels; unknown levels rank as info.
func (l Level) rank() int {
	if rank, ok := levelRanks[l]; ok {
		return rank
	}
	return levelRanks[LevelInfo]
}

// LevelAtLeast reports whether level is as severe as min or more.
func LevelAtLeast(level, min Level) bool {
	return level.rank() >= min.rank()
}

// ParseLevel accepts the level names case-insensitively, plus "warn".
func ParseLevel(value string) (Level, bool) {
	normalized := Level(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "warn" {
		return LevelWarning, true
	}
	if _, ok := levelRanks[normalized]; ok {
		return normalized, true
	}
	return "", false
}

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Component returns the emitting component, if tagged.
func (e LogEntry) Component() string {
	return e.Context[FieldComponent]
}
