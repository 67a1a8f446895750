// Package telemetrytest captures spans emitted through the global tracer in tests.
package telemetrytest

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Record installs a synchronous span recorder as the global TracerProvider for the rest of
// the test and restores the previous provider afterwards. Tests using it must not run in
// parallel.
func Record(t testing.TB) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

// Events returns the names of every event recorded on ended spans called spanName.
func Events(sr *tracetest.SpanRecorder, spanName string) []string {
	var names []string
	for _, span := range sr.Ended() {
		if span.Name() != spanName {
			continue
		}
		for _, ev := range span.Events() {
			names = append(names, ev.Name)
		}
	}
	return names
}
