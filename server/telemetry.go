package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/imrenagi/go-drive-upload/config"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

type ShutdownFn func(context.Context) error

// initTelemetry installs the global meter provider backed by the prometheus
// exporter and, when an OTLP endpoint is configured, the global tracer
// provider. The returned function flushes and stops both.
func initTelemetry(ctx context.Context, cfg config.TelemetryConfig) (ShutdownFn, error) {
	res, err := telemetryResource(ctx, cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	exporter, err := NewPrometheusExporter()
	if err != nil {
		return nil, err
	}
	shutdowns := []ShutdownFn{InitMeterProvider(res, exporter)}

	if cfg.OTLPEndpoint != "" {
		spanExporter, err := NewOTLPTraceExporter(ctx, cfg)
		if err != nil {
			shutdowns[0](ctx)
			return nil, err
		}
		shutdowns = append(shutdowns, InitTraceProvider(res, cfg.TraceSampleRatio, spanExporter))
		log.Info().
			Str("endpoint", cfg.OTLPEndpoint).
			Float64("sample_ratio", cfg.TraceSampleRatio).
			Msg("exporting traces")
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdowns {
			errs = append(errs, fn(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func InitMeterProvider(res *resource.Resource, reader metric.Reader) ShutdownFn {
	meterProvider := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader))
	otel.SetMeterProvider(meterProvider)
	return meterProvider.Shutdown
}

// InitTraceProvider samples ratio of the new traces; spans whose parent was
// sampled upstream are always kept.
func InitTraceProvider(res *resource.Resource, ratio float64, spanExporter trace.SpanExporter) ShutdownFn {
	bsp := trace.NewBatchSpanProcessor(spanExporter)
	tracerProvider := trace.NewTracerProvider(
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(ratio))),
		trace.WithResource(res),
		trace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)
	return tracerProvider.Shutdown
}

func telemetryResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize telemetry resource: %w", err)
	}
	return res, nil
}

func NewPrometheusExporter() (*prometheus.Exporter, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	return exporter, nil
}

// NewOTLPTraceExporter connects lazily: an unreachable collector does not
// hold up startup, spans are retried by the exporter instead.
func NewOTLPTraceExporter(ctx context.Context, cfg config.TelemetryConfig) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithDialOption(grpc.WithUserAgent(cfg.ServiceName)),
	}
	if cfg.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	} else {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
	}

	traceExp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create the collector trace exporter: %w", err)
	}
	return traceExp, nil
}
