// Package telemetry installs the OpenTelemetry trace pipeline.
package telemetry

import (
	"context"

	"smartq/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	ServiceName string
	Version     string
	Endpoint    string
	Insecure    bool
	// SampleRatio is the share of new root traces recorded. Child spans follow
	// their parent's decision.
	SampleRatio float64
}

// Setup exports spans over OTLP gRPC when cfg.Endpoint is set. The returned function
// flushes and stops the provider; without an endpoint it does nothing.
func Setup(cfg Config) func(context.Context) error {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		logging.Error().Err(err).Str("endpoint", cfg.Endpoint).Msg("otel exporter")
		return func(context.Context) error { return nil }
	}

	res, err := Resource(cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("otel resource")
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(Sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	logging.Info().
		Str("endpoint", cfg.Endpoint).
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Float64("sample_ratio", cfg.SampleRatio).
		Msg("tracing enabled")

	return provider.Shutdown
}

// Resource describes the running service. OTEL_RESOURCE_ATTRIBUTES is applied on top.
func Resource(cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.Version))
	}
	return resource.New(context.Background(), resource.WithAttributes(attrs...), resource.WithFromEnv())
}

// Sampler records every trace at ratio 1 or above and none at 0 or below.
func Sampler(ratio float64) trace.Sampler {
	switch {
	case ratio >= 1:
		return trace.ParentBased(trace.AlwaysSample())
	case ratio <= 0:
		return trace.ParentBased(trace.NeverSample())
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	}
}
