// Package apm configures the global OpenTelemetry tracer provider.
package apm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

// Provider names accepted in telemetry.trace_provider.
type Provider string

const (
	ZipkinProvider   Provider = "zipkin"
	ConsoleProvider  Provider = "console"
	OTLPGRPCProvider Provider = "otlp-grpc"
	OTLPHTTPProvider Provider = "otlp-http"
	EmptyProvider    Provider = "none"
)

// TraceProvider flushes and stops span export.
type TraceProvider interface {
	Stop() error
}

type emptyProvider struct{}

func (emptyProvider) Stop() error { return nil }

type traceProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTraceProvider installs a global tracer provider for cfg. Disabled telemetry or the
// "none" provider leave otel's no-op tracer in place.
func NewTraceProvider(ctx context.Context, cfg config.TelemetryConfig, log logger.LoggerInterface) (TraceProvider, error) {
	provider := Provider(cfg.TraceProvider)
	if !cfg.Enabled || provider == EmptyProvider || provider == "" {
		return emptyProvider{}, nil
	}

	exp, err := exporter(ctx, provider, cfg.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("trace exporter %s: %w", provider, err)
	}

	rsrc, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			attribute.String("otel.provider", string(provider)),
		))
	if err != nil {
		// Schema URL conflicts only drop the default attributes.
		log.Warn(ctx, "trace resource merge failed", "error", err)
		rsrc = resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(rsrc),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

	log.Info(ctx, "tracing enabled", "provider", string(provider), "endpoint", cfg.OTLPEndpoint)
	return &traceProvider{tp}, nil
}

func exporter(ctx context.Context, provider Provider, endpoint string) (sdktrace.SpanExporter, error) {
	switch provider {
	case ConsoleProvider:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ZipkinProvider:
		return zipkin.New(endpoint)
	case OTLPGRPCProvider:
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint))
	case OTLPHTTPProvider:
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	}
	return nil, fmt.Errorf("unknown trace provider %q", provider)
}

func (o *traceProvider) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return o.tp.Shutdown(ctx)
}
