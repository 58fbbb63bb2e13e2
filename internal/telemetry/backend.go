package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

const instrumentationName = "github.com/fyrsmithlabs/wasmobs"

// Attribute keys set on every exported span.
const (
	AttrFunction      = attribute.Key("wasm.function")
	AttrCorrelationID = attribute.Key("wasm.correlation_id")
	AttrSpanID        = attribute.Key("wasm.span_id")
	AttrRuntimeID     = attribute.Key("wasm.runtime_id")
	AttrMemoryBytes   = attribute.Key("wasm.memory_bytes")
	AttrStatus        = attribute.Key("wasm.status")
)

// SpanName returns the OTel span name for a wasm function.
func SpanName(function string) string {
	return "wasm::" + function
}

// ErrTracingDisabled is returned by NewBackend when tel has no SDK tracer
// provider, in which case spans would be discarded while counting as
// exported.
var ErrTracingDisabled = errors.New("telemetry is disabled; spans would be discarded")

// Backend exports instrumented calls as OTel spans and records their
// duration on a histogram.
type Backend struct {
	tel      *Telemetry
	tracer   oteltrace.Tracer
	duration metric.Float64Histogram
	calls    metric.Int64Counter
	shared   bool
}

var _ exporter.Backend = (*Backend)(nil)

// NewBackend creates a backend on top of tel. The backend owns tel and shuts
// it down in Shutdown.
func NewBackend(tel *Telemetry) (*Backend, error) {
	return newBackend(tel, false)
}

// NewSharedBackend creates a backend on top of tel without taking it over:
// Shutdown only flushes, and the caller shuts tel down later.
func NewSharedBackend(tel *Telemetry) (*Backend, error) {
	return newBackend(tel, true)
}

func newBackend(tel *Telemetry, shared bool) (*Backend, error) {
	if !tel.Recording() {
		return nil, ErrTracingDisabled
	}

	meter := tel.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"wasm.function.duration",
		metric.WithDescription("Duration of instrumented wasm function calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	calls, err := meter.Int64Counter(
		"wasm.function.calls",
		metric.WithDescription("Number of instrumented wasm function calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating call counter: %w", err)
	}

	return &Backend{
		tel:      tel,
		tracer:   tel.Tracer(instrumentationName),
		duration: duration,
		calls:    calls,
		shared:   shared,
	}, nil
}

// NewBackendFactory returns a factory that builds telemetry from cfg on the
// exporter goroutine.
func NewBackendFactory(cfg *Config, opts ...Option) exporter.BackendFactory {
	return func(ctx context.Context) (exporter.Backend, error) {
		tel, err := New(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
		b, err := NewBackend(tel)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, err
		}
		return b, nil
	}
}

// Export records s as a root span with its original timestamps.
func (b *Backend) Export(ctx context.Context, s span.Span) error {
	attrs := []attribute.KeyValue{
		AttrFunction.String(s.FunctionName),
		AttrCorrelationID.String(s.CorrelationID.String()),
		AttrSpanID.String(s.ID.String()),
		AttrRuntimeID.String(s.RuntimeID.String()),
		AttrMemoryBytes.Int64(int64(s.MemoryBytes)),
	}

	_, otelSpan := b.tracer.Start(ctx, SpanName(s.FunctionName),
		oteltrace.WithNewRoot(),
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithTimestamp(s.StartTime()),
		oteltrace.WithAttributes(attrs...),
	)
	if s.Status.Kind == span.KindFailed {
		otelSpan.SetStatus(codes.Error, s.Status.Reason)
	} else {
		otelSpan.SetStatus(codes.Ok, "")
	}
	otelSpan.End(oteltrace.WithTimestamp(s.EndTime()))

	set := metric.WithAttributes(
		AttrFunction.String(s.FunctionName),
		AttrStatus.String(s.Status.Kind.String()),
	)
	b.duration.Record(ctx, s.Duration().Seconds(), set)
	b.calls.Add(ctx, 1, set)
	return nil
}

// Shutdown flushes the underlying providers and, unless shared, stops them.
func (b *Backend) Shutdown(ctx context.Context) error {
	if b.shared {
		return b.tel.ForceFlush(ctx)
	}
	return b.tel.Shutdown(ctx)
}
