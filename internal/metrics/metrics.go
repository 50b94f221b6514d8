package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	filesObserved         atomic.Int64
	notificationsAccepted atomic.Int64
	notificationsDropped  atomic.Int64
	watchErrors           atomic.Int64
	captureNanos          atomic.Int64
	captureCount          atomic.Int64

	triggers sync.Map // labelKey -> *atomic.Int64
	outcomes sync.Map
	bus      sync.Map
}

type labelKey struct {
	first  string
	second string
}

var Default = &Registry{}

func (r *Registry) IncFileObserved() {
	if r == nil {
		return
	}
	r.filesObserved.Add(1)
}

func (r *Registry) IncWatchError() {
	if r == nil {
		return
	}
	r.watchErrors.Add(1)
}

func (r *Registry) IncNotification(accepted bool) {
	if r == nil {
		return
	}
	if accepted {
		r.notificationsAccepted.Add(1)
		return
	}
	r.notificationsDropped.Add(1)
}

// IncTrigger counts a debounce decision for a signal source.
func (r *Registry) IncTrigger(source string, accepted bool) {
	if r == nil {
		return
	}
	decision := "rejected"
	if accepted {
		decision = "accepted"
	}
	counter(&r.triggers, labelKey{first: normalizeLabel(source), second: decision}).Add(1)
}

// RecordCapture counts a capture outcome. kind is "success" or "failure"; detail is the
// artifact state or failure code.
func (r *Registry) RecordCapture(kind, detail string, duration time.Duration) {
	if r == nil {
		return
	}
	counter(&r.outcomes, labelKey{first: normalizeLabel(kind), second: normalizeLabel(detail)}).Add(1)
	if duration > 0 {
		r.captureNanos.Add(duration.Nanoseconds())
	}
	r.captureCount.Add(1)
}

func (r *Registry) IncEventPublished(bus string) {
	if r == nil {
		return
	}
	counter(&r.bus, labelKey{first: normalizeLabel(bus), second: "published"}).Add(1)
}

func (r *Registry) IncEventDropped(bus string) {
	if r == nil {
		return
	}
	counter(&r.bus, labelKey{first: normalizeLabel(bus), second: "dropped"}).Add(1)
}

// Snapshot is a point-in-time copy of the plain counters.
type Snapshot struct {
	FilesObserved         int64 `json:"files_observed"`
	NotificationsAccepted int64 `json:"notifications_accepted"`
	NotificationsDropped  int64 `json:"notifications_dropped"`
	WatchErrors           int64 `json:"watch_errors"`
	Captures              int64 `json:"captures"`
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		FilesObserved:         r.filesObserved.Load(),
		NotificationsAccepted: r.notificationsAccepted.Load(),
		NotificationsDropped:  r.notificationsDropped.Load(),
		WatchErrors:           r.watchErrors.Load(),
		Captures:              r.captureCount.Load(),
	}
}

// TriggerCount returns the count for one source and decision ("accepted" or "rejected").
func (r *Registry) TriggerCount(source, decision string) int64 {
	if r == nil {
		return 0
	}
	value, ok := r.triggers.Load(labelKey{first: normalizeLabel(source), second: decision})
	if !ok {
		return 0
	}
	return value.(*atomic.Int64).Load()
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}
	writeCounter(writer, "shotwatch_files_observed_total", "Create events observed in the watch directory", r.filesObserved.Load())
	writeCounter(writer, "shotwatch_watch_errors_total", "Errors reported by the filesystem watcher", r.watchErrors.Load())
	writeCounter(writer, "shotwatch_notifications_accepted_total", "Environment notifications that produced a trigger", r.notificationsAccepted.Load())
	writeCounter(writer, "shotwatch_notifications_discarded_total", "Environment notifications discarded by the gate", r.notificationsDropped.Load())

	writeLabeled(writer, "shotwatch_triggers_total", "Debounce decisions by source", "source", "decision", &r.triggers)
	writeLabeled(writer, "shotwatch_captures_total", "Capture outcomes", "outcome", "detail", &r.outcomes)
	writeLabeled(writer, "shotwatch_bus_events_total", "Event bus deliveries", "bus", "result", &r.bus)

	writeHelp(writer, "shotwatch_capture_duration_seconds", "Capture duration in seconds")
	fmt.Fprintln(writer, "# TYPE shotwatch_capture_duration_seconds summary")
	fmt.Fprintf(writer, "shotwatch_capture_duration_seconds_sum %.6f\n", float64(r.captureNanos.Load())/float64(time.Second))
	fmt.Fprintf(writer, "shotwatch_capture_duration_seconds_count %d\n", r.captureCount.Load())
	return nil
}

func counter(store *sync.Map, key labelKey) *atomic.Int64 {
	value, _ := store.LoadOrStore(key, &atomic.Int64{})
	return value.(*atomic.Int64)
}

func writeLabeled(writer io.Writer, metric, help, firstLabel, secondLabel string, store *sync.Map) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)

	type row struct {
		key   labelKey
		value int64
	}
	var rows []row
	store.Range(func(key, value any) bool {
		rows = append(rows, row{key: key.(labelKey), value: value.(*atomic.Int64).Load()})
		return true
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].key.first != rows[j].key.first {
			return rows[i].key.first < rows[j].key.first
		}
		return rows[i].key.second < rows[j].key.second
	})
	for _, row := range rows {
		fmt.Fprintf(writer, "%s{%s=%s,%s=%s} %d\n", metric,
			firstLabel, formatLabel(row.key.first),
			secondLabel, formatLabel(row.key.second),
			row.value)
	}
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func normalizeLabel(value string) string {
	if strings.TrimSpace(value) == "" {
		return "unknown"
	}
	return value
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
