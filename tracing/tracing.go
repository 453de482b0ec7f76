// Package tracing provides an OpenTelemetry tracer provider and span
// helper (ambient stack, SPEC_FULL.md §1); no other package of this
// module calls it. Grounded on the teacher's tracing package (a
// process-wide tracer provider plus a span-wrapper helper consumed by
// every pipeline stage), narrowed to a single OpenTelemetry backend —
// this module drops the teacher's dual opentracing/jaeger path since
// nothing else in this dependency set uses it.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init installs a process-wide TracerProvider tagged with serviceName
// and returns an io.Closer that flushes and shuts it down. Wiring a real
// span exporter (OTLP, Jaeger, ...) is left to the embedding
// application via sdktrace.WithBatcher, matching the teacher's own
// deployment-specific exporter selection.
func Init(serviceName string, opts ...sdktrace.TracerProviderOption) io.Closer {
	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return providerCloser{tp}
}

type providerCloser struct {
	tp *sdktrace.TracerProvider
}

func (p providerCloser) Close() error {
	return p.tp.Shutdown(context.Background())
}

// Span wraps an OpenTelemetry span with the narrow set of operations
// the pipeline stages need, so call sites don't import the otel API
// directly.
type Span struct {
	ctx  context.Context
	span trace.Span
}

// Start begins a span named name under tracer tracerName.
func Start(ctx context.Context, tracerName, name string) Span {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, name)
	return Span{ctx: spanCtx, span: span}
}

// Context returns the span-carrying context, to thread into downstream calls.
func (s Span) Context() context.Context { return s.ctx }

func (s Span) SetAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

func (s Span) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s Span) Finish() {
	s.span.End()
}
