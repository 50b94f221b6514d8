// Package trigger collapses bursts of capture triggers from overlapping sources into
// at most one accepted trigger per cooldown window.
package trigger

import "time"

// Source identifies which producer emitted a signal.
type Source string

const (
	SourceFilesystem   Source = "filesystem"
	SourceNotification Source = "environment-notification"
)

// Signal is a transient trigger. It carries no payload beyond its origin and arrival time.
type Signal struct {
	Source Source
	At     time.Time
	// Detail is informational only (file name or notification text) and never affects gating.
	Detail string
}

func NewSignal(source Source, at time.Time, detail string) Signal {
	return Signal{Source: source, At: at, Detail: detail}
}

func (s Signal) Type() string {
	return string(s.Source)
}

func (s Signal) Timestamp() time.Time {
	return s.At
}
