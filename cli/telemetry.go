package cli

import (
	"context"
	"fmt"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "petalmatch"

// setupTracing returns the tracer used for plan spans. With an empty
// endpoint it uses the global provider (a no-op unless configured);
// otherwise spans are batched to an OTLP/HTTP collector and shutdown
// flushes them.
func setupTracing(ctx context.Context, endpoint string) (trace.Tracer, func(context.Context) error, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return otelapi.GetTracerProvider().Tracer(instrumentationName), func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", instrumentationName),
		)),
	)
	return tp.Tracer(instrumentationName), tp.Shutdown, nil
}
