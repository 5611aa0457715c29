package engine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the engine's package-scoped OpenTelemetry tracer. When no
// tracer provider has been installed (the common case in tests and in any
// deployment with tracing disabled), otel's global provider is a no-op, so
// every span below costs a few struct allocations and nothing else.
var tracer = otel.Tracer("github.com/StarkFactory/arc-reactor-sub012/internal/engine")

func startRunSpan(ctx context.Context, runID, userID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("arc.run_id", runID),
		attribute.String("arc.user_id", userID),
	))
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
