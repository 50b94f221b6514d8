package api

import (
	"context"
	"net/http"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const wsConnectSpanName = "websocket.connect"

func startWebSocketSpan(r *http.Request, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	base := []attribute.KeyValue{
		attribute.String("http.method", r.Method),
		attribute.String("http.route", route),
		attribute.String("http.target", sanitizeWSTarget(r)),
		attribute.String("user_agent", r.UserAgent()),
	}
	return otelapi.Tracer("shotwatch/api").Start(ctx, wsConnectSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(append(base, attrs...)...),
	)
}

// sanitizeWSTarget drops the token query parameter so it never lands in a span.
func sanitizeWSTarget(r *http.Request) string {
	if r.URL == nil {
		return ""
	}
	copyURL := *r.URL
	query := copyURL.Query()
	query.Del("token")
	copyURL.RawQuery = query.Encode()
	return copyURL.RequestURI()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// traceMiddleware wraps plain REST routes in a server span. Websocket routes
// start their own span after the upgrade and must not be wrapped, since the
// recorder hides http.Hijacker.
func traceMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otelapi.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := otelapi.Tracer("shotwatch/api").Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
		}
	})
}
