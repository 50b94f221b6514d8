package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"shotwatch/internal/capability"
	"shotwatch/internal/capture"
	"shotwatch/internal/gate"
	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/service"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otelapi "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type fakePipeline struct {
	mu            sync.Mutex
	notifications []gate.Notification
	outcomes      chan capture.Outcome
	recent        []capture.Outcome
	status        service.Status
	level         *capability.Level
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{outcomes: make(chan capture.Outcome, 4)}
}

func (p *fakePipeline) HandleNotification(notification gate.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, notification)
	return notification.EventType == gate.EventTypeWindowStateChanged
}

func (p *fakePipeline) Outcomes() (<-chan capture.Outcome, func(), error) {
	return p.outcomes, func() {}, nil
}

func (p *fakePipeline) RecentOutcomes() []capture.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capture.Outcome(nil), p.recent...)
}

func (p *fakePipeline) Status() service.Status {
	status := p.status
	if p.level != nil {
		status.Tier = int(p.level.Tier())
	}
	return status
}

func (p *fakePipeline) RaiseTier(tier capability.Tier) (bool, error) {
	if p.level == nil {
		return false, service.ErrTierFixed
	}
	return p.level.Raise(tier), nil
}

func (p *fakePipeline) received() []gate.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gate.Notification(nil), p.notifications...)
}

func newTestServer(t *testing.T, pipeline Pipeline, mutate func(*Options)) *httptest.Server {
	t.Helper()
	options := Options{
		Pipeline: pipeline,
		Registry: &metrics.Registry{},
	}
	if mutate != nil {
		mutate(&options)
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, options)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func postNotification(t *testing.T, server *httptest.Server, body string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/notifications", bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var payload T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func TestPostNotificationByCode(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, nil)

	resp := postNotification(t, server, `{"kind":"com.android.systemui","text":["Screenshot saved"],"event_type":32}`, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	payload := decodeBody[notificationResponse](t, resp)
	assert.True(t, payload.Accepted)
	assert.Equal(t, "window_state_changed", payload.EventType)

	received := pipeline.received()
	require.Len(t, received, 1)
	assert.Equal(t, "com.android.systemui", received[0].Kind)
	assert.Equal(t, []string{"Screenshot saved"}, received[0].Text)
}

func TestPostNotificationByName(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, nil)

	resp := postNotification(t, server, `{"kind":"x","event_name":"view_clicked","received_at":"2024-05-01T12:00:00Z"}`, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.False(t, decodeBody[notificationResponse](t, resp).Accepted)

	received := pipeline.received()
	require.Len(t, received, 1)
	assert.Equal(t, gate.EventTypeViewClicked, received[0].EventType)
	assert.True(t, received[0].ReceivedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPostNotificationValidation(t *testing.T) {
	server := newTestServer(t, newFakePipeline(), nil)
	cases := map[string]string{
		"empty body":     ``,
		"no event":       `{"kind":"x"}`,
		"both events":    `{"event_type":32,"event_name":"view_clicked"}`,
		"unknown name":   `{"event_name":"nope"}`,
		"unknown field":  `{"event_type":32,"extra":true}`,
		"malformed json": `{"event_type":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			resp := postNotification(t, server, body, "")
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "invalid_request", decodeBody[errorResponse](t, resp).Code)
		})
	}
}

func TestPostNotificationMethodNotAllowed(t *testing.T) {
	server := newTestServer(t, newFakePipeline(), nil)
	resp, err := http.Get(server.URL + "/api/notifications")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestPostNotificationRequiresToken(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, func(options *Options) {
		options.AuthToken = "secret"
	})

	resp := postNotification(t, server, `{"event_type":32}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = postNotification(t, server, `{"event_type":32}`, "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = postNotification(t, server, `{"event_type":32}`, "secret")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, pipeline.received(), 1)
}

func TestPostNotificationRateLimited(t *testing.T) {
	server := newTestServer(t, newFakePipeline(), func(options *Options) {
		options.NotifyRate = 0.001
		options.NotifyBurst = 1
	})

	resp := postNotification(t, server, `{"event_type":32}`, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp = postNotification(t, server, `{"event_type":32}`, "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", decodeBody[errorResponse](t, resp).Code)
}

func TestNotificationStreamAcksEachMessage(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/notifications/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"a","event_type":32}`)))
	var ack notificationResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ack", ack.Type)
	assert.True(t, ack.Accepted)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	var failure wsErrorPayload
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Equal(t, http.StatusBadRequest, failure.Status)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event_name":"window_content_changed"}`)))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.False(t, ack.Accepted)
	assert.Equal(t, "window_content_changed", ack.EventType)

	assert.Len(t, pipeline.received(), 2)
}

func TestNotificationStreamRateLimitKeepsConnection(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, func(options *Options) {
		options.NotifyRate = 0.001
		options.NotifyBurst = 1
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/notifications/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	message := []byte(`{"event_type":32}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, message))
	var ack notificationResponse
	require.NoError(t, conn.ReadJSON(&ack))
	assert.True(t, ack.Accepted)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, message))
	var limited wsErrorPayload
	require.NoError(t, conn.ReadJSON(&limited))
	assert.Equal(t, http.StatusTooManyRequests, limited.Status)
	assert.Len(t, pipeline.received(), 1)
}

func TestNotificationStreamAuthAndOrigin(t *testing.T) {
	server := newTestServer(t, newFakePipeline(), func(options *Options) {
		options.AuthToken = "secret"
	})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/notifications/ws"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err = websocket.DefaultDialer.Dial(wsURL(server, "/api/notifications/ws?token=secret"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/notifications/ws?token=secret"), nil)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestOutcomeStream(t *testing.T) {
	pipeline := newFakePipeline()
	server := newTestServer(t, pipeline, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "/api/outcomes/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()

	completed := time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC)
	failure := capture.Failure(capture.ErrorSecureWindow)
	failure.RequestedAt = completed.Add(-250 * time.Millisecond)
	failure.CompletedAt = completed
	pipeline.outcomes <- failure

	var payload outcomePayload
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, capture.EventTypeFailed, payload.Type)
	assert.Equal(t, "failure", payload.Outcome)
	require.NotNil(t, payload.Code)
	assert.Equal(t, capture.ErrorSecureWindow, *payload.Code)
	assert.Equal(t, int64(250), payload.DurationMS)
	assert.True(t, payload.Timestamp.Equal(completed))

	pipeline.outcomes <- capture.Success(false)
	require.NoError(t, conn.ReadJSON(&payload))
	assert.Equal(t, capture.EventTypeSucceeded, payload.Type)

	close(pipeline.outcomes)
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestStatusAndMetrics(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.status = service.Status{Running: true, Tier: 33, Path: "/tmp/shots", CooldownMS: 3000}
	registry := &metrics.Registry{}
	registry.IncTrigger("filesystem", true)
	registry.IncFileObserved()
	server := newTestServer(t, pipeline, func(options *Options) {
		options.Registry = registry
	})

	resp, err := http.Get(server.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store, must-revalidate", resp.Header.Get("Cache-Control"))

	var status map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "/tmp/shots", status["path"])
	counters, ok := status["counters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), counters["files_observed"])

	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, metricsResp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, string(body), `shotwatch_triggers_total{source="filesystem",decision="accepted"} 1`)
}

func TestValidateToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.True(t, validateToken(req, ""))
	assert.False(t, validateToken(req, "secret"))

	req.Header.Set("Authorization", "Bearer secret")
	assert.True(t, validateToken(req, "secret"))

	req = httptest.NewRequest(http.MethodGet, "/api/status?token=secret", nil)
	assert.True(t, validateToken(req, "secret"))
}

func TestIsOriginAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/api/outcomes/ws", nil)
	assert.True(t, isOriginAllowed(req, nil))

	req.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, isOriginAllowed(req, nil))

	req.Header.Set("Origin", "http://other.example")
	assert.False(t, isOriginAllowed(req, nil))
	assert.True(t, isOriginAllowed(req, []string{"other.example"}))
}

func TestSanitizeWSTargetDropsToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/outcomes/ws?token=secret&x=1", nil)
	assert.Equal(t, "/api/outcomes/ws?x=1", sanitizeWSTarget(req))
}

func TestRESTRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otelapi.SetTracerProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	server := newTestServer(t, newFakePipeline(), func(options *Options) {
		options.AuthToken = "secret"
	})
	resp := postNotification(t, server, `{"event_type":32}`, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /api/notifications", spans[0].Name())
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "auth.token_rejected", spans[0].Events()[0].Name)

	var status int64
	for _, attr := range spans[0].Attributes() {
		if attr.Key == "http.status_code" {
			status = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(http.StatusUnauthorized), status)
}

func TestRecentOutcomes(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.recent = []capture.Outcome{capture.Failure(capture.CodeUnsupported), capture.Success(true)}
	server := newTestServer(t, pipeline, nil)

	resp, err := http.Get(server.URL + "/api/outcomes")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	payloads := decodeBody[[]outcomePayload](t, resp)
	require.Len(t, payloads, 2)
	assert.Equal(t, "failure", payloads[0].Outcome)
	require.NotNil(t, payloads[0].Code)
	assert.Equal(t, capture.CodeUnsupported, *payloads[0].Code)
	assert.True(t, payloads[1].ArtifactPresent)
}

func TestLogsEndpointFilters(t *testing.T) {
	logs := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(logs, logging.LevelDebug, io.Discard)
	logger.Debug("noise", nil)
	logger.Warn("watch failed, retrying", nil)
	logger.Error("screenshot failed", nil)
	server := newTestServer(t, newFakePipeline(), func(options *Options) {
		options.Logs = logs
	})

	resp, err := http.Get(server.URL + "/api/logs?level=warning")
	require.NoError(t, err)
	defer resp.Body.Close()
	entries := decodeBody[[]logging.LogEntry](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, "watch failed, retrying", entries[0].Message)

	resp, err = http.Get(server.URL + "/api/logs?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	entries = decodeBody[[]logging.LogEntry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "screenshot failed", entries[0].Message)

	resp, err = http.Get(server.URL + "/api/logs?level=loud")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func postJSON(t *testing.T, server *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCapabilityRaiseOnlyGoesUp(t *testing.T) {
	pipeline := newFakePipeline()
	pipeline.level = capability.NewLevel(capability.TierModernStorage)
	server := newTestServer(t, pipeline, nil)

	resp := postJSON(t, server, "/api/capability", `{"tier":33}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raised := decodeBody[capabilityResponse](t, resp)
	assert.True(t, raised.Raised)
	assert.Equal(t, 33, raised.Tier)

	resp = postJSON(t, server, "/api/capability", `{"tier":30}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	lowered := decodeBody[capabilityResponse](t, resp)
	assert.False(t, lowered.Raised)
	assert.Equal(t, 33, lowered.Tier)

	getResp, err := http.Get(server.URL + "/api/capability")
	require.NoError(t, err)
	defer getResp.Body.Close()
	assert.Equal(t, 33, decodeBody[capabilityResponse](t, getResp).Tier)
}

func TestCapabilityRejectsBadRequests(t *testing.T) {
	server := newTestServer(t, newFakePipeline(), nil)

	resp := postJSON(t, server, "/api/capability", `{"tier":-1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server, "/api/capability", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, server, "/api/capability", `{"tier":33}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "tier_fixed", decodeBody[errorResponse](t, resp).Code)
}
