// Package api exposes the notification feed, outcome stream, status and metrics over HTTP.
package api

import (
	"net/http"

	"shotwatch/internal/capability"
	"shotwatch/internal/capture"
	"shotwatch/internal/gate"
	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/service"

	"golang.org/x/time/rate"
)

const (
	defaultNotifyRate  = 20
	defaultNotifyBurst = 40
)

// Pipeline is the part of the service the API drives.
type Pipeline interface {
	HandleNotification(notification gate.Notification) bool
	Outcomes() (<-chan capture.Outcome, func(), error)
	RecentOutcomes() []capture.Outcome
	Status() service.Status
	RaiseTier(tier capability.Tier) (bool, error)
}

type Options struct {
	Pipeline       Pipeline
	Registry       *metrics.Registry
	Logs           *logging.LogBuffer
	AuthToken      string
	AllowedOrigins []string
	// NotifyRate limits notifications per second across HTTP and each websocket.
	NotifyRate  float64
	NotifyBurst int
	Logger      *logging.Logger
}

func RegisterRoutes(mux *http.ServeMux, options Options) {
	logger := options.Logger.Component("api")
	notifyRate := options.NotifyRate
	if notifyRate <= 0 {
		notifyRate = defaultNotifyRate
	}
	notifyBurst := options.NotifyBurst
	if notifyBurst <= 0 {
		notifyBurst = defaultNotifyBurst
	}

	notifications := &NotificationsHandler{
		Pipeline:       options.Pipeline,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
		Logger:         logger,
		limiter:        rate.NewLimiter(rate.Limit(notifyRate), notifyBurst),
		newLimiter: func() *rate.Limiter {
			return rate.NewLimiter(rate.Limit(notifyRate), notifyBurst)
		},
	}
	outcomes := &OutcomesHandler{
		Pipeline:       options.Pipeline,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
		Logger:         logger,
	}
	status := &StatusHandler{
		Pipeline: options.Pipeline,
		Registry: options.Registry,
		Logs:     options.Logs,
	}

	capabilities := &CapabilityHandler{Pipeline: options.Pipeline}

	rest := func(route string, handler apiHandler) {
		mux.Handle(route, traceMiddleware(route, loggingMiddleware(logger, restHandler(options.AuthToken, logger, handler))))
	}
	rest("/api/notifications", notifications.handlePost)
	rest("/api/status", status.handleStatus)
	rest("/api/outcomes", status.handleOutcomes)
	rest("/api/logs", status.handleLogs)
	rest("/api/capability", capabilities.handle)
	rest("/metrics", status.handleMetrics)
	mux.Handle("/api/notifications/ws", loggingMiddleware(logger, notifications))
	mux.Handle("/api/outcomes/ws", loggingMiddleware(logger, outcomes))
}
