// Package gate turns the environment notification feed into trigger signals.
//
// The feed is noisy: most notifications are unrelated to screenshots and are
// discarded without error. Only window state changes produce a trigger.
package gate

import (
	"strings"
	"time"

	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/trigger"
)

// EventType is the accessibility event type code attached to a notification.
type EventType int

const (
	EventTypeViewClicked              EventType = 0x00000001
	EventTypeViewFocused              EventType = 0x00000008
	EventTypeViewTextChanged          EventType = 0x00000010
	EventTypeWindowStateChanged       EventType = 0x00000020
	EventTypeNotificationStateChanged EventType = 0x00000040
	EventTypeWindowContentChanged     EventType = 0x00000800
)

var eventTypeNames = map[EventType]string{
	EventTypeViewClicked:              "view_clicked",
	EventTypeViewFocused:              "view_focused",
	EventTypeViewTextChanged:          "view_text_changed",
	EventTypeWindowStateChanged:       "window_state_changed",
	EventTypeNotificationStateChanged: "notification_state_changed",
	EventTypeWindowContentChanged:     "window_content_changed",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseEventType accepts a symbolic name as produced by String.
func ParseEventType(name string) (EventType, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for eventType, candidate := range eventTypeNames {
		if candidate == normalized {
			return eventType, true
		}
	}
	return 0, false
}

// Notification is one entry of the environment feed. ReceivedAt is the producer's
// own timestamp; it is logged but never used for gating.
type Notification struct {
	Kind       string
	Text       []string
	EventType  EventType
	ReceivedAt time.Time
}

// Gate filters notifications. It keeps no state between calls.
type Gate struct {
	logger   *logging.Logger
	registry *metrics.Registry
	now      func() time.Time
}

type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	Now      func() time.Time
}

func New(options Options) *Gate {
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{
		logger:   options.Logger,
		registry: options.Registry,
		now:      now,
	}
}

// Filter returns a trigger signal for a window state change and false for everything else.
func (g *Gate) Filter(notification Notification) (trigger.Signal, bool) {
	if notification.EventType != EventTypeWindowStateChanged {
		g.registry.IncNotification(false)
		return trigger.Signal{}, false
	}
	g.registry.IncNotification(true)

	text := strings.Join(notification.Text, ", ")
	fields := map[string]string{
		"kind": notification.Kind,
		"text": text,
	}
	if !notification.ReceivedAt.IsZero() {
		fields["received_at"] = notification.ReceivedAt.UTC().Format(time.RFC3339Nano)
	}
	g.logger.Debug("window state changed", fields)

	return trigger.NewSignal(trigger.SourceNotification, g.now(), text), true
}
