package logging

import "shotwatch/internal/buffer"

// LogBuffer keeps the most recent entries in a fixed-size ring.
type LogBuffer struct {
	ring *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{ring: buffer.NewRing[LogEntry](size)}
}

func (b *LogBuffer) Add(entry LogEntry) {
	if b == nil {
		return
	}
	b.ring.Add(entry)
}

// List returns buffered entries oldest first.
func (b *LogBuffer) List() []LogEntry {
	if b == nil {
		return nil
	}
	return b.ring.List()
}
