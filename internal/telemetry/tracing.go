package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies this process in emitted trace resource attributes.
const ServiceName = "jobcore"

// NewTracerProvider builds the process-wide TracerProvider. Without a
// configured OTLP endpoint it still records spans in-process (useful for
// tests asserting span names) but exports nothing.
func NewTracerProvider() *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", ServiceName))
	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp
}

// Tracer returns the named tracer used by the processor and scheduler to open
// the process_pending_jobs / job_process:{type} spans required by §4.3.
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}

// Shutdown flushes and stops the tracer provider.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
