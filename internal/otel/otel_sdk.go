package otel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mckinsey/ark-evaluator/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"google.golang.org/grpc/credentials"
)

const (
	ExporterTypeOTLPGRPC = "otlp-grpc"
	ExporterTypeOTLPHTTP = "otlp-http"
	ExporterTypeStdout   = "stdout"

	ServiceName = "github.com/mckinsey/ark-evaluator"
	Compressor  = "gzip"
)

// SetupOTEL bootstraps the OpenTelemetry tracing pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func SetupOTEL(ctx context.Context, config *config.OTELConfig, logger *slog.Logger) (func(context.Context) error, error) {
	if config == nil || !config.Enabled {
		return nil, nil
	}

	// set any default values
	if config.TracerTimeout == 0 {
		config.TracerTimeout = 30 * time.Second
	}
	if config.TracerBatchInterval == 0 {
		config.TracerBatchInterval = 5 * time.Second
	}
	if config.SamplingRatio == 0 {
		config.SamplingRatio = 1.0
	}

	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(newPropagator())

	tracerProvider, err := newTracerProvider(ctx, config)
	if err != nil {
		return shutdown, errors.Join(err, shutdown(ctx))
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	logger.Info("OTEL tracing enabled", "exporter", config.ExporterType, "endpoint", config.ExporterEndpoint)
	return shutdown, nil
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTracerProvider(ctx context.Context, config *config.OTELConfig) (*trace.TracerProvider, error) {
	switch config.ExporterType {
	case ExporterTypeOTLPGRPC:
		if config.ExporterEndpoint == "" {
			return nil, fmt.Errorf("exporter endpoint is required for OTEL %s exporter", config.ExporterType)
		}
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(config.ExporterEndpoint),
			otlptracegrpc.WithTimeout(config.TracerTimeout),
			otlptracegrpc.WithCompressor(Compressor),
		}
		if config.ExporterInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else if config.TLSConfig != nil {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(config.TLSConfig)))
		} else {
			return nil, fmt.Errorf("no TLS config provided for secure OTEL %s exporter", config.ExporterType)
		}
		traceExporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return buildTracerProvider(config, traceExporter)
	case ExporterTypeOTLPHTTP:
		if config.ExporterEndpoint == "" {
			return nil, fmt.Errorf("exporter endpoint is required for OTEL %s exporter", config.ExporterType)
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(config.ExporterEndpoint),
			otlptracehttp.WithTimeout(config.TracerTimeout),
		}
		if config.ExporterInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		} else if config.TLSConfig != nil {
			opts = append(opts, otlptracehttp.WithTLSClientConfig(config.TLSConfig))
		} else {
			return nil, fmt.Errorf("no TLS config provided for secure OTEL %s exporter", config.ExporterType)
		}
		traceExporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return buildTracerProvider(config, traceExporter)
	case ExporterTypeStdout:
		traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		return trace.NewTracerProvider(
			trace.WithBatcher(traceExporter, trace.WithBatchTimeout(config.TracerBatchInterval)),
		), nil
	default:
		return nil, fmt.Errorf("invalid OTEL exporter type: %s", config.ExporterType)
	}
}

func buildTracerProvider(config *config.OTELConfig, exporter trace.SpanExporter) (*trace.TracerProvider, error) {
	res, err := createResource(config)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithBatcher(exporter, trace.WithBatchTimeout(config.TracerBatchInterval)),
		trace.WithSampler(newSampler(config.SamplingRatio)),
		trace.WithResource(res),
	), nil
}

func createResource(config *config.OTELConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(ServiceName),
	}
	for key, value := range config.AdditionalAttributes {
		attrs = append(attrs, attribute.String(key, value))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...), nil
}

// newSampler creates a sampler based on the sampling ratio
func newSampler(ratio float64) trace.Sampler {
	if ratio >= 1.0 {
		return trace.AlwaysSample()
	}
	if ratio <= 0.0 {
		return trace.NeverSample()
	}
	return trace.TraceIDRatioBased(ratio)
}

// NewRoundTripper instruments an outbound HTTP transport with trace propagation.
func NewRoundTripper(base http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(base)
}
