package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps the bare otel/trace API: a TracerProvider is never
// registered here, so in the absence of an operator wiring one up via
// OTEL_* environment variables through the global otel package, spans are
// recorded to a no-op provider and carry no cost. Trimmed down from the
// teacher's own internal/observability.Tracer, which additionally spun up
// an OTLP/gRPC exporter and sdktrace.TracerProvider; this module has no
// network trace sink to ship spans to, so only the propagation-friendly
// API surface is kept.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer scoped to serviceName, using whatever
// TracerProvider is currently registered with the global otel package
// (the default no-op provider unless a caller configures one).
func NewTracer(serviceName string) *Tracer {
	return &Tracer{tracer: otel.Tracer(serviceName)}
}

// StartStep opens a span for one workflow step's handler execution.
func (t *Tracer) StartStep(ctx context.Context, dialogID, stepName, stepType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "dialog.step", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("dialog.id", dialogID),
			attribute.String("dialog.step_name", stepName),
			attribute.String("dialog.step_type", stepType),
		),
	)
}

// StartCompletion opens a span for one completion provider call.
func (t *Tracer) StartCompletion(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "completion.complete", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("completion.provider", provider),
			attribute.String("completion.model", model),
		),
	)
}

// RecordError records err on span and marks it failed, a no-op if err is nil.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
