// Package otelexport sets up the OpenTelemetry tracer provider that records
// one span per pairing session and exports it over OTLP.
package otelexport

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used for pairing spans.
const InstrumentationName = "github.com/nextlevelbuilder/pairlink/internal/pairing"

// Config configures the OpenTelemetry OTLP exporter.
type Config struct {
	Endpoint    string            // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // skip TLS for local dev
	ServiceName string            // OTEL service name (default "pairlink")
	Version     string            // service version attribute
	Headers     map[string]string // extra headers (auth tokens, etc.)
}

// Exporter owns the tracer provider.
type Exporter struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New creates an OTLP exporter with the given config.
func New(ctx context.Context, cfg Config) (*Exporter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTLP endpoint is required")
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	e, err := NewWithSpanExporter(ctx, cfg, exporter, sdktrace.WithBatcher(exporter,
		sdktrace.WithMaxExportBatchSize(100),
		sdktrace.WithBatchTimeout(5*time.Second),
	))
	if err != nil {
		return nil, err
	}
	slog.Info("otel exporter started", "endpoint", cfg.Endpoint, "protocol", protocolName(cfg.Protocol))
	return e, nil
}

// NewWithSpanExporter builds the provider around an existing span exporter.
// opts defaults to a synchronous processor for exp.
func NewWithSpanExporter(ctx context.Context, cfg Config, exp sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) (*Exporter, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName(cfg)),
			semconv.ServiceVersion(serviceVersion(cfg)),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	if len(opts) == 0 {
		opts = []sdktrace.TracerProviderOption{sdktrace.WithSyncer(exp)}
	}
	opts = append(opts, sdktrace.WithResource(res))

	tp := sdktrace.NewTracerProvider(opts...)
	return &Exporter{
		provider: tp,
		tracer:   tp.Tracer(InstrumentationName),
	}, nil
}

// Tracer returns the pairing tracer.
func (e *Exporter) Tracer() trace.Tracer { return e.tracer }

// Shutdown gracefully shuts down the OTel exporter, flushing remaining spans.
func (e *Exporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	slog.Info("otel exporter shutting down")
	return e.provider.Shutdown(ctx)
}

func serviceName(cfg Config) string {
	if cfg.ServiceName == "" {
		return "pairlink"
	}
	return cfg.ServiceName
}

func serviceVersion(cfg Config) string {
	if cfg.Version == "" {
		return "dev"
	}
	return cfg.Version
}

func protocolName(p string) string {
	if p == "http" {
		return "http"
	}
	return "grpc"
}
