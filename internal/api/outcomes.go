package api

import (
	"net/http"
	"time"

	"shotwatch/internal/capture"
	"shotwatch/internal/logging"
)

// OutcomesHandler streams capture outcomes to websocket subscribers.
type OutcomesHandler struct {
	Pipeline       Pipeline
	AuthToken      string
	AllowedOrigins []string
	Logger         *logging.Logger
}

type outcomePayload struct {
	Type            string     `json:"type"`
	Outcome         string     `json:"outcome"`
	ArtifactPresent bool       `json:"artifact_present"`
	Code            *int       `json:"code,omitempty"`
	Format          string     `json:"format,omitempty"`
	Width           int        `json:"width,omitempty"`
	Height          int        `json:"height,omitempty"`
	Bytes           int        `json:"bytes,omitempty"`
	DurationMS      int64      `json:"duration_ms"`
	RequestedAt     *time.Time `json:"requested_at,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

func buildOutcomePayload(outcome capture.Outcome) (any, bool) {
	payload := outcomePayload{
		Type:            outcome.Type(),
		Outcome:         outcome.Kind.String(),
		ArtifactPresent: outcome.ArtifactPresent,
		DurationMS:      outcome.Duration().Milliseconds(),
		Timestamp:       outcome.Timestamp(),
	}
	if !outcome.Succeeded() {
		code := outcome.Code
		payload.Code = &code
	}
	if !outcome.RequestedAt.IsZero() {
		requestedAt := outcome.RequestedAt.UTC()
		payload.RequestedAt = &requestedAt
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	if artifact := outcome.Artifact; artifact != nil {
		payload.Format = artifact.Buffer.Format
		payload.Bytes = len(artifact.Buffer.Data)
		if artifact.Image != nil {
			bounds := artifact.Image.Bounds()
			payload.Width = bounds.Dx()
			payload.Height = bounds.Dy()
		}
	}
	return payload, true
}

func (h *OutcomesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		rejectWebSocket(w, r, h.Logger, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if h.Pipeline == nil {
		rejectWebSocket(w, r, h.Logger, http.StatusServiceUnavailable, "pipeline unavailable", nil)
		return
	}
	output, cancel, err := h.Pipeline.Outcomes()
	if err != nil {
		rejectWebSocket(w, r, h.Logger, http.StatusServiceUnavailable, "outcome stream unavailable", err)
		return
	}
	defer cancel()

	ctx, span := startWebSocketSpan(r, "/api/outcomes/ws")
	defer span.End()

	conn, err := upgradeWebSocket(w, r.WithContext(ctx), h.AllowedOrigins)
	if err != nil {
		span.RecordError(err)
		logWebSocketFailure(h.Logger, r, http.StatusBadRequest, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	if err := serveWSStream(wsStreamConfig[capture.Outcome]{
		Conn:         conn,
		Output:       output,
		BuildPayload: buildOutcomePayload,
	}); err != nil {
		span.RecordError(err)
	}
}
