package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"shotwatch/internal/gate"
	"shotwatch/internal/logging"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// NotificationsHandler ingests environment notifications over HTTP POST and websocket.
type NotificationsHandler struct {
	Pipeline       Pipeline
	AuthToken      string
	AllowedOrigins []string
	Logger         *logging.Logger

	// limiter is shared by POST requests; newLimiter builds one per websocket.
	limiter    *rate.Limiter
	newLimiter func() *rate.Limiter
}

type notificationRequest struct {
	Kind       string     `json:"kind"`
	Text       []string   `json:"text,omitempty"`
	EventType  *int       `json:"event_type,omitempty"`
	EventName  string     `json:"event_name,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

type notificationResponse struct {
	Type      string `json:"type,omitempty"`
	Accepted  bool   `json:"accepted"`
	EventType string `json:"event_type"`
}

func (req notificationRequest) toNotification() (gate.Notification, *apiError) {
	name := strings.TrimSpace(req.EventName)
	if req.EventType == nil && name == "" {
		return gate.Notification{}, &apiError{Status: http.StatusBadRequest, Message: "event_type or event_name is required"}
	}
	if req.EventType != nil && name != "" {
		return gate.Notification{}, &apiError{Status: http.StatusBadRequest, Message: "event_type and event_name are mutually exclusive"}
	}

	notification := gate.Notification{
		Kind: strings.TrimSpace(req.Kind),
		Text: req.Text,
	}
	if req.EventType != nil {
		notification.EventType = gate.EventType(*req.EventType)
	} else {
		eventType, ok := gate.ParseEventType(name)
		if !ok {
			return gate.Notification{}, &apiError{Status: http.StatusBadRequest, Message: "unknown event_name " + name}
		}
		notification.EventType = eventType
	}
	if req.ReceivedAt != nil {
		notification.ReceivedAt = *req.ReceivedAt
	}
	return notification, nil
}

func (h *NotificationsHandler) handlePost(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, http.MethodPost)
	}
	if h.Pipeline == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "pipeline unavailable"}
	}
	if h.limiter != nil && !h.limiter.Allow() {
		return &apiError{Status: http.StatusTooManyRequests, Message: "notification rate exceeded"}
	}

	var req notificationRequest
	if err := decodeJSONBody(r, &req); err != nil {
		return err
	}
	notification, apiErr := req.toNotification()
	if apiErr != nil {
		return apiErr
	}
	accepted := h.Pipeline.HandleNotification(notification)
	writeJSON(w, http.StatusAccepted, notificationResponse{
		Accepted:  accepted,
		EventType: notification.EventType.String(),
	})
	return nil
}

// ServeHTTP runs the websocket ingest stream. Each text message is one notification;
// every message gets either an ack or an error envelope, and errors never close the stream.
func (h *NotificationsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !validateToken(r, h.AuthToken) {
		rejectWebSocket(w, r, h.Logger, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	if h.Pipeline == nil {
		rejectWebSocket(w, r, h.Logger, http.StatusServiceUnavailable, "pipeline unavailable", nil)
		return
	}

	ctx, span := startWebSocketSpan(r, "/api/notifications/ws")
	defer span.End()

	conn, err := upgradeWebSocket(w, r.WithContext(ctx), h.AllowedOrigins)
	if err != nil {
		span.RecordError(err)
		logWebSocketFailure(h.Logger, r, http.StatusBadRequest, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessageBytes)

	limiter := rate.NewLimiter(rate.Limit(defaultNotifyRate), defaultNotifyBurst)
	if h.newLimiter != nil {
		limiter = h.newLimiter()
	}

	var received, accepted, limited int
	defer func() {
		span.SetAttributes(
			attribute.Int("notifications.received", received),
			attribute.Int("notifications.accepted", accepted),
			attribute.Int("notifications.rate_limited", limited),
		)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		received++

		var reply any
		switch {
		case !limiter.Allow():
			limited++
			reply = newWSError(http.StatusTooManyRequests, "notification rate exceeded")
		default:
			reply = h.ingest(data)
			if ack, ok := reply.(notificationResponse); ok && ack.Accepted {
				accepted++
			}
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (h *NotificationsHandler) ingest(data []byte) any {
	var req notificationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return newWSError(http.StatusBadRequest, "invalid json: "+err.Error())
	}
	notification, apiErr := req.toNotification()
	if apiErr != nil {
		return newWSError(apiErr.Status, apiErr.Message)
	}
	return notificationResponse{
		Type:      "ack",
		Accepted:  h.Pipeline.HandleNotification(notification),
		EventType: notification.EventType.String(),
	}
}
