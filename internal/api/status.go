package api

import (
	"net/http"
	"strconv"
	"strings"

	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/service"
)

type StatusHandler struct {
	Pipeline Pipeline
	Registry *metrics.Registry
	Logs     *logging.LogBuffer
}

type statusResponse struct {
	service.Status
	Counters metrics.Snapshot `json:"counters"`
}

func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if h.Pipeline == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "pipeline unavailable"}
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:   h.Pipeline.Status(),
		Counters: h.Registry.Snapshot(),
	})
	return nil
}

func (h *StatusHandler) handleOutcomes(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	if h.Pipeline == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "pipeline unavailable"}
	}
	outcomes := h.Pipeline.RecentOutcomes()
	payloads := make([]any, 0, len(outcomes))
	for _, outcome := range outcomes {
		payload, _ := buildOutcomePayload(outcome)
		payloads = append(payloads, payload)
	}
	writeJSON(w, http.StatusOK, payloads)
	return nil
}

// handleLogs lists buffered log entries, optionally filtered by ?level= (minimum)
// and ?limit= (most recent N).
func (h *StatusHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	query := r.URL.Query()
	minLevel := logging.LevelDebug
	if raw := strings.TrimSpace(query.Get("level")); raw != "" {
		parsed, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid level"}
		}
		minLevel = parsed
	}
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		limit = parsed
	}

	entries := []logging.LogEntry{}
	for _, entry := range h.Logs.List() {
		if logging.LevelAtLeast(entry.Level, minLevel) {
			entries = append(entries, entry)
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *StatusHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, http.MethodGet)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Registry.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "write metrics: " + err.Error()}
	}
	return nil
}
