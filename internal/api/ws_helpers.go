package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"shotwatch/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	wsBufferSize      = 1024
	wsWriteTimeout    = 10 * time.Second
	wsMaxMessageBytes = 16 << 10
)

// wsErrorPayload is the in-band error envelope. Sending one never closes the stream.
type wsErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func newWSError(status int, message string) wsErrorPayload {
	return wsErrorPayload{Type: "error", Message: message, Status: status}
}

var errWSNilOutput = errors.New("websocket output channel is nil")

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsBufferSize,
		WriteBufferSize: wsBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}

// rejectWebSocket answers a websocket request that will not be upgraded.
func rejectWebSocket(w http.ResponseWriter, r *http.Request, logger *logging.Logger, status int, message string, err error) {
	logWebSocketFailure(logger, r, status, message, err)
	writeJSONError(w, &apiError{Status: status, Message: message})
}

func logWebSocketFailure(logger *logging.Logger, r *http.Request, status int, message string, err error) {
	fields := map[string]string{
		"path":        r.URL.Path,
		"status":      strconv.Itoa(status),
		"remote_addr": r.RemoteAddr,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logger.Error(message, fields)
		return
	}
	logger.Warn(message, fields)
}

type wsStreamConfig[T any] struct {
	Conn         *websocket.Conn
	Output       <-chan T
	BuildPayload func(T) (any, bool)
	WriteTimeout time.Duration
}

// serveWSStream writes each value from Output until Output closes, which sends
// a going-away close frame, or the peer disconnects.
func serveWSStream[T any](config wsStreamConfig[T]) error {
	if config.Output == nil {
		return errWSNilOutput
	}
	conn := config.Conn
	timeout := config.WriteTimeout
	if timeout <= 0 {
		timeout = wsWriteTimeout
	}

	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		var value T
		var open bool
		select {
		case <-peerGone:
			return nil
		case value, open = <-config.Output:
		}
		if !open {
			closeFrame := websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed")
			_ = conn.WriteControl(websocket.CloseMessage, closeFrame, time.Now().Add(timeout))
			return nil
		}

		var payload any = value
		if config.BuildPayload != nil {
			built, ok := config.BuildPayload(value)
			if !ok {
				continue
			}
			payload = built
		}
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(payload); err != nil {
			return err
		}
	}
}
