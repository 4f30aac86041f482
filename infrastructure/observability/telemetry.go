package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracingConfig holds tracing and metrics export configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	Endpoint       string
	Insecure       bool
	SampleRatio    float64
	Debug          bool
}

// Telemetry carries the tracer and meter providers of the process. It is
// built once at startup and handed to every component that emits spans or
// metrics; nothing reads providers from OTel globals.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagator     propagation.TextMapPropagator
	Registry       *prometheus.Registry

	shutdowns []func(context.Context) error
}

// NewTelemetry builds the OTLP trace pipeline and a Prometheus-backed meter
// provider. With tracing disabled spans are still created but not exported.
func NewTelemetry(ctx context.Context, cfg TracingConfig, logger *zap.Logger) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "api-backend"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.Enabled {
		exporter, err := createOTLPExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	promExporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithResource(res),
	)

	if cfg.Debug {
		// The OTel error handler is process-wide; only install it on request.
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			logger.Warn("OpenTelemetry error", zap.Error(err))
		}))
	}

	logger.Info("Telemetry initialized",
		zap.String("service", cfg.ServiceName),
		zap.Bool("traceExport", cfg.Enabled),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sampleRatio", cfg.SampleRatio),
	)

	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Propagator:     newPropagator(),
		Registry:       registry,
		shutdowns:      []func(context.Context) error{tp.Shutdown, mp.Shutdown},
	}, nil
}

// NewTelemetryWithProviders wraps existing providers, e.g. the in-memory
// ones used by tests.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	return &Telemetry{
		TracerProvider: tp,
		MeterProvider:  mp,
		Propagator:     newPropagator(),
		Registry:       prometheus.NewRegistry(),
	}
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func createOTLPExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

// Tracer returns a named span coordinator backed by the telemetry's provider.
func (t *Telemetry) Tracer(name string) *Tracer {
	return NewTracer(t.TracerProvider.Tracer(name))
}

// Meter returns a named meter.
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.MeterProvider.Meter(name)
}

// MetricsHandler serves the Prometheus exposition format.
func (t *Telemetry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{
		Registry:          t.Registry,
		EnableOpenMetrics: false,
	})
}

// Shutdown flushes and stops the providers created by NewTelemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range t.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
