package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"

	"github.com/shortly/shortly/go-server/internal/tracing"
)

type Options struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint enables trace and metric push when non-empty.
	OTLPEndpoint string
	Logger       *zap.Logger
}

// Observability holds all observability components
type Observability struct {
	shutdowns []func(ctx context.Context) error
	// MetricsHandler serves the promauto metrics and the OTel bridge together.
	MetricsHandler http.Handler
	status         Status
}

// Status tracks which components are initialized
type Status struct {
	TracingEnabled     bool
	OTLPMetricsEnabled bool
}

// Setup installs the global tracer and meter providers.
func Setup(ctx context.Context, opts Options) (*Observability, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	obs := &Observability{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(opts.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	var exporterClient *http.Client
	if opts.OTLPEndpoint != "" {
		exporterClient = &http.Client{Transport: tracing.NewLoggingTransport(nil, opts.Logger)}

		tracerShutdown, err := initTracing(ctx, res, opts.OTLPEndpoint, exporterClient)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
		obs.shutdowns = append(obs.shutdowns, tracerShutdown)
		obs.status.TracingEnabled = true
	}

	registry := prometheus.NewRegistry()
	meterShutdown, err := initMetrics(ctx, res, registry, opts.OTLPEndpoint, exporterClient)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	obs.shutdowns = append(obs.shutdowns, meterShutdown)
	obs.status.OTLPMetricsEnabled = opts.OTLPEndpoint != ""

	obs.MetricsHandler = promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, registry},
		promhttp.HandlerOpts{},
	)

	opts.Logger.Info("Observability initialized",
		zap.Bool("tracing", obs.status.TracingEnabled),
		zap.Bool("otlp_metrics", obs.status.OTLPMetricsEnabled),
		zap.String("otlp_endpoint", opts.OTLPEndpoint),
	)

	return obs, nil
}

// Shutdown gracefully shuts down all observability components
func (o *Observability) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range o.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Observability) Status() Status {
	return o.status
}

func initTracing(ctx context.Context, res *resource.Resource, endpoint string, client *http.Client) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(stripProtocol(endpoint)),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithHTTPClient(client),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(
		exporter,
		sdktrace.WithMaxExportBatchSize(512),
		sdktrace.WithMaxQueueSize(2048),
		sdktrace.WithBatchTimeout(5*time.Second),
	)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tracerProvider)
	return tracerProvider.Shutdown, nil
}

// initMetrics always bridges OTel instruments into registry; OTLP push is added when an endpoint is set.
func initMetrics(ctx context.Context, res *resource.Resource, registry *prometheus.Registry, endpoint string, client *http.Client) (func(context.Context) error, error) {
	prometheusExporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	providerOpts := []metric.Option{
		metric.WithResource(res),
		metric.WithReader(prometheusExporter),
	}

	if endpoint != "" {
		otlpExporter, err := otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpoint(stripProtocol(endpoint)),
			otlpmetrichttp.WithInsecure(),
			otlpmetrichttp.WithHTTPClient(client),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		providerOpts = append(providerOpts,
			metric.WithReader(metric.NewPeriodicReader(otlpExporter, metric.WithInterval(30*time.Second))))
	}

	meterProvider := metric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(meterProvider)

	return meterProvider.Shutdown, nil
}

// stripProtocol reduces an endpoint to host:port. The OTLP exporters append
// /v1/traces and /v1/metrics themselves.
func stripProtocol(endpoint string) string {
	endpoint = strings.TrimSpace(strings.Trim(endpoint, `"`))

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			return endpoint[:idx]
		}
		return endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	}
	return parsed.Host
}
