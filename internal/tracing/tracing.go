// Package tracing installs an OpenTelemetry tracer provider exporting spans
// over OTLP/gRPC, grounded on SPEC_FULL.md §11's Domain Stack entry for
// go.opentelemetry.io/otel: the engine opens input_guards, react_loop,
// llm_call, tool_orchestrator and output_guards spans for each run; no single
// span encloses the whole run.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/StarkFactory/arc-reactor-sub012/internal/config"
)

// Shutdown flushes and stops the tracer provider installed by Install.
type Shutdown func(context.Context) error

var noopShutdown Shutdown = func(context.Context) error { return nil }

// Install configures the global tracer provider from cfg. When tracing is
// disabled it installs nothing and returns a no-op Shutdown, so callers can
// defer it unconditionally.
func Install(ctx context.Context, cfg config.TracingConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if !cfg.Insecure {
		dialOpts = nil // rely on otlptracegrpc's default (system cert pool over TLS)
	}

	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if len(dialOpts) > 0 {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithDialOption(dialOpts...))
	}

	client := otlptracegrpc.NewClient(exporterOpts...)
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return noopShutdown, fmt.Errorf("tracing: building OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return noopShutdown, fmt.Errorf("tracing: building resource: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	if cfg.SamplingRate >= 1 {
		sampler = sdktrace.AlwaysSample()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return provider.Shutdown(ctx)
	}, nil
}
