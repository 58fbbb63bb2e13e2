package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc/credentials"
)

// newResource creates a resource describing the service.
// A standalone resource avoids schema URL conflicts with resource.Default().
func newResource(cfg *Config) (*resource.Resource, error) {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	), nil
}

// newSpanExporter builds the exporter selected by cfg.Exporter. It returns
// nil for ExporterNone.
func newSpanExporter(ctx context.Context, cfg *Config, stdout io.Writer) (trace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		return stdouttrace.New(
			stdouttrace.WithWriter(stdout),
			stdouttrace.WithPrettyPrint(),
		)
	}

	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		} else {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlptracegrpc.New(ctx, opts...)
	}
}

// newTracerProvider creates a TracerProvider around exp. Every span is
// recorded; volume is never reduced here. Stdout output is written
// synchronously so each span appears as soon as it is exported.
func newTracerProvider(cfg *Config, res *resource.Resource, exp trace.SpanExporter) *trace.TracerProvider {
	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	}
	if exp != nil {
		if cfg.Exporter == ExporterStdout {
			opts = append(opts, trace.WithSyncer(exp))
		} else {
			opts = append(opts, trace.WithBatcher(exp))
		}
	}
	return trace.NewTracerProvider(opts...)
}

// newMetricExporter builds the OTLP metric exporter. Metrics are only
// exported over OTLP.
func newMetricExporter(ctx context.Context, cfg *Config) (metric.Exporter, error) {
	// Cumulative temporality for Prometheus-compatible backends.
	cumulative := func(metric.InstrumentKind) metricdata.Temporality {
		return metricdata.CumulativeTemporality
	}

	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetrichttp.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(stripScheme(cfg.Endpoint)),
			otlpmetricgrpc.WithTemporalitySelector(cumulative),
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		} else {
			opts = append(opts, otlpmetricgrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
}

// newMeterProvider creates a MeterProvider around reader.
func newMeterProvider(res *resource.Resource, reader metric.Reader) *metric.MeterProvider {
	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(reader),
	)
}

// newLogExporter builds the OTLP log exporter for the logging bridge.
func newLogExporter(ctx context.Context, cfg *Config) (sdklog.Exporter, error) {
	switch cfg.Protocol {
	case ProtocolHTTP:
		opts := []otlploghttp.Option{
			otlploghttp.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		return otlploghttp.New(ctx, opts...)
	default:
		opts := []otlploggrpc.Option{
			otlploggrpc.WithEndpoint(stripScheme(cfg.Endpoint)),
		}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		} else {
			opts = append(opts, otlploggrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
		}
		return otlploggrpc.New(ctx, opts...)
	}
}

// newLoggerProvider creates a LoggerProvider that batches records to exp.
func newLoggerProvider(res *resource.Resource, exp sdklog.Exporter) *sdklog.LoggerProvider {
	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
	)
}

// stripScheme removes http:// or https:// from an endpoint URL.
// The OTLP exporters expect host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}

// Option configures New.
type Option func(*options)

type options struct {
	traceExporter trace.SpanExporter
	metricReader  metric.Reader
	logExporter   sdklog.Exporter
	stdout        io.Writer
}

// WithTraceExporter overrides the exporter chosen by config.
func WithTraceExporter(exp trace.SpanExporter) Option {
	return func(o *options) {
		o.traceExporter = exp
	}
}

// WithMetricReader overrides the OTLP periodic reader.
func WithMetricReader(r metric.Reader) Option {
	return func(o *options) {
		o.metricReader = r
	}
}

// WithLogExporter overrides the OTLP log exporter. It enables the logger
// provider whatever logs.enabled says.
func WithLogExporter(exp sdklog.Exporter) Option {
	return func(o *options) {
		o.logExporter = exp
	}
}

// WithStdout sets where the stdout exporter writes.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.stdout = w
		}
	}
}

// providers is what buildProviders hands to Telemetry. Any field may be nil.
type providers struct {
	tracer *trace.TracerProvider
	meter  *metric.MeterProvider
	logger *sdklog.LoggerProvider
}

func (p *providers) shutdown(ctx context.Context) {
	if p.tracer != nil {
		_ = p.tracer.Shutdown(ctx)
	}
	if p.meter != nil {
		_ = p.meter.Shutdown(ctx)
	}
}

func buildProviders(ctx context.Context, cfg *Config, o *options) (*providers, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	p := &providers{}

	exp := o.traceExporter
	if exp == nil {
		exp, err = newSpanExporter(ctx, cfg, o.stdout)
		if err != nil {
			return nil, fmt.Errorf("creating trace exporter: %w", err)
		}
	}
	p.tracer = newTracerProvider(cfg, res, exp)

	reader := o.metricReader
	if reader == nil && cfg.Metrics.Enabled && cfg.Exporter == ExporterOTLP {
		mexp, err := newMetricExporter(ctx, cfg)
		if err != nil {
			p.shutdown(ctx)
			return nil, fmt.Errorf("creating metric exporter: %w", err)
		}
		reader = metric.NewPeriodicReader(mexp, metric.WithInterval(cfg.Metrics.ExportInterval))
	}
	if reader != nil {
		p.meter = newMeterProvider(res, reader)
	}

	lexp := o.logExporter
	if lexp == nil && cfg.Logs.Enabled && cfg.Exporter == ExporterOTLP {
		lexp, err = newLogExporter(ctx, cfg)
		if err != nil {
			p.shutdown(ctx)
			return nil, fmt.Errorf("creating log exporter: %w", err)
		}
	}
	if lexp != nil {
		p.logger = newLoggerProvider(res, lexp)
	}

	return p, nil
}
