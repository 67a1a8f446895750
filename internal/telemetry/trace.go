package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span for a client operation.
// This is a convenience wrapper around otel.Tracer().Start() with common patterns.
//
// Usage in the SDK:
//
//	ctx, span := telemetry.StartSpan(ctx, "autonomeal/sdk", "sdk.Do",
//	    attribute.String(telemetry.AttrHTTPMethod, env.Method),
//	    attribute.String(telemetry.AttrHTTPPath, env.Path),
//	)
//	defer span.End()
func StartSpan(ctx context.Context, tracerName, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// AddEvent adds a named event to the span with optional attributes.
// Use for session events such as credential invalidation.
//
// Example:
//
//	telemetry.AddEvent(span, "session.invalidated",
//	    attribute.String(telemetry.AttrRequestID, requestID),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Common attribute keys for the client
const (
	// Transport attributes
	AttrHTTPMethod = "http.method"
	AttrHTTPPath   = "http.path"
	AttrHTTPStatus = "http.status_code"
	AttrRequestID  = "request.id"
	AttrErrorKind  = "error.kind"

	// Session attributes
	AttrSessionStatus     = "session.status"
	AttrSessionGeneration = "session.generation"
)
