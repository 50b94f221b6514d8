package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AnnotateSpan adds an event named name to the recording span in ctx, with
// fields as string attributes. Without a recording span it does nothing.
func AnnotateSpan(ctx context.Context, name string, fields map[string]string) {
	if ctx == nil || name == "" {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for key, value := range fields {
		attrs = append(attrs, attribute.String(key, value))
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
