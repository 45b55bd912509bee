package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "recall"

// StartCallSpan starts a span for one invocation of a tracked operation.
func StartCallSpan(ctx context.Context, identity string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "call",
		trace.WithAttributes(attribute.String("call.identity", identity)),
	)
}

// StartFetchSpan starts a span for a memoized page request.
func StartFetchSpan(ctx context.Context, url string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "fetch",
		trace.WithAttributes(attribute.String("url.full", url)),
	)
}
