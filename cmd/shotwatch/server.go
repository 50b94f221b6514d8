package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"shotwatch/internal/api"
	"shotwatch/internal/capability"
	"shotwatch/internal/capture"
	"shotwatch/internal/config"
	"shotwatch/internal/logging"
	"shotwatch/internal/metrics"
	"shotwatch/internal/otel"
	"shotwatch/internal/service"
	"shotwatch/internal/version"
	"shotwatch/internal/watchpath"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func buildBackend(settings config.Settings) capture.Backend {
	if settings.Capture.Command == "" {
		return nil
	}
	return capture.CommandBackend{
		Path:   settings.Capture.Command,
		Args:   settings.Capture.Args,
		Format: settings.Capture.Format,
	}
}

// outcomeLogSink records every capture outcome in the log, and so in /api/logs.
func outcomeLogSink(logger *logging.Logger) service.Sink {
	logger = logger.Component("outcomes")
	return service.SinkFunc(func(_ context.Context, outcome capture.Outcome) {
		fields := map[string]string{
			"outcome":     outcome.Type(),
			"detail":      outcome.Detail(),
			"duration_ms": strconv.FormatInt(outcome.Duration().Milliseconds(), 10),
		}
		if outcome.Succeeded() {
			logger.Info("capture reported", fields)
			return
		}
		logger.Warn("capture reported", fields)
	})
}

func buildService(settings config.Settings, logger *logging.Logger, registry *metrics.Registry) *service.Service {
	return service.New(service.Options{
		Layout: watchpath.Layout{
			ModernPath: settings.Watch.ModernPath,
			LegacyPath: settings.Watch.LegacyPath,
		},
		Capability:     capability.NewLevel(capability.Tier(settings.Watch.Tier)),
		Backend:        buildBackend(settings),
		Display:        int(settings.Capture.Display),
		CaptureTimeout: time.Duration(settings.Capture.TimeoutMS) * time.Millisecond,
		Cooldown:       time.Duration(settings.Trigger.CooldownMS) * time.Millisecond,
		Sink:           outcomeLogSink(logger),
		Logger:         logger,
		Registry:       registry,
	})
}

// runServer starts the pipeline and the HTTP API and blocks until ctx is done
// or the listener fails, then runs the shutdown phases in order.
func runServer(ctx context.Context, settings config.Settings, logger *logging.Logger, ready func(addr string)) error {
	shutdownOTel, err := otel.SetupSDK(ctx, otel.SDKOptions{
		HTTPEndpoint:       settings.OTel.Endpoint,
		ServiceName:        settings.OTel.ServiceName,
		ServiceVersion:     version.Version,
		ResourceAttributes: otel.ParseResourceAttributes(settings.OTel.ResourceAttributes),
	})
	if err != nil {
		return err
	}

	registry := &metrics.Registry{}
	svc := buildService(settings, logger, registry)
	if settings.Capture.Command == "" {
		logger.Warn("no capture command configured; captures will report unsupported", nil)
	}

	plan := newShutdownPlan(logger)
	shutdown := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return plan.execute(shutdownCtx)
	}

	listener, err := net.Listen("tcp", settings.Server.Addr)
	if err != nil {
		plan.then("otel", shutdownOTel)
		return errors.Join(err, shutdown())
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Pipeline:    svc,
		Registry:    registry,
		Logs:        logger.Buffer(),
		AuthToken:   settings.Server.Token,
		NotifyRate:  settings.Server.NotifyRate,
		NotifyBurst: int(settings.Server.NotifyBurst),
		Logger:      logger,
	})
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	plan.then("http", server.Shutdown)
	plan.then("service", svc.Stop)
	plan.then("otel", shutdownOTel)

	if err := svc.Start(ctx); err != nil {
		_ = listener.Close()
		return errors.Join(err, shutdown())
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	addr := listener.Addr().String()
	logger.Info("shotwatch listening", map[string]string{
		"addr":        addr,
		"tier":        strconv.FormatInt(settings.Watch.Tier, 10),
		"path":        svc.Target().Path,
		"cooldown_ms": strconv.FormatInt(settings.Trigger.CooldownMS, 10),
	})
	if ready != nil {
		ready(addr)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}
	return errors.Join(runErr, shutdown())
}
