package service

import (
	"time"

	"shotwatch/internal/watcher"
)

// Status is a point-in-time view of the pipeline for the status endpoint.
type Status struct {
	Running          bool            `json:"running"`
	Tier             int             `json:"tier"`
	Path             string          `json:"path"`
	Watcher          watcher.Metrics `json:"watcher"`
	CooldownMS       int64           `json:"cooldown_ms"`
	LastTriggerAt    *time.Time      `json:"last_trigger_at,omitempty"`
	CaptureState     string          `json:"capture_state"`
	CapturesInFlight int             `json:"captures_in_flight"`
	CapturesReported uint64          `json:"captures_reported"`
	SignalsPublished int64           `json:"signals_published"`
	SignalsDropped   int64           `json:"signals_dropped"`
}

func (s *Service) Status() Status {
	s.mu.Lock()
	running := s.started && !s.stopped
	path := s.target.Path
	signals := s.signals
	s.mu.Unlock()

	status := Status{
		Running:          running,
		Tier:             int(s.tier()),
		Path:             path,
		Watcher:          s.watcher.Metrics(),
		CooldownMS:       s.dispatcher.Debouncer().Cooldown().Milliseconds(),
		CaptureState:     s.capturer.State().String(),
		CapturesInFlight: s.capturer.InFlight(),
		CapturesReported: s.history.Total(),
	}
	if last, ok := s.dispatcher.Debouncer().LastAccepted(); ok {
		at := time.UnixMilli(last).UTC()
		status.LastTriggerAt = &at
	}
	if signals != nil {
		status.SignalsPublished, status.SignalsDropped = signals.Stats()
	}
	return status
}
