package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sendloop/courier/job"
)

// tracerName is the instrumentation scope name for courier tracing.
const tracerName = "github.com/sendloop/courier"

// Tracing returns middleware that wraps each delivery attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes include: courier.job.id, courier.queue,
// courier.domain, courier.attempt. On error, the span status is set to
// codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "courier.delivery.attempt",
			trace.WithAttributes(
				attribute.String("courier.job.id", r.ID.String()),
				attribute.String("courier.queue", r.Queue),
				attribute.String("courier.domain", r.Email.SenderDomain()),
				attribute.Int("courier.attempt", r.Attempts),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
