package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the TracerProvider and MeterProvider used to export
// instrumented calls, and the LoggerProvider behind the logging bridge.
type Telemetry struct {
	config *Config

	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	loggerProvider *sdklog.LoggerProvider

	healthy      atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg and builds the providers. A disabled config yields an
// instance whose tracer and meter are no-ops.
//
// Unlike process-wide instrumentation, the providers are not installed as
// the otel globals; callers get them through Tracer and Meter.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := &options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	t := &Telemetry{config: cfg}
	if !cfg.Enabled {
		t.healthy.Store(true)
		return t, nil
	}

	p, err := buildProviders(ctx, cfg, o)
	if err != nil {
		return nil, err
	}
	t.tracerProvider = p.tracer
	t.meterProvider = p.meter
	t.loggerProvider = p.logger
	t.healthy.Store(true)
	return t, nil
}

// Tracer returns a tracer for the given instrumentation scope.
// Returns the global (no-op by default) tracer if telemetry is disabled.
func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tracerProvider == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tracerProvider.Tracer(name, opts...)
}

// Meter returns a meter for the given instrumentation scope.
// Returns the global (no-op by default) meter if metrics are not exported.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// LoggerProvider returns the log provider for the OTEL logging bridge, or
// nil when log export is not configured.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil || t.loggerProvider == nil {
		return nil
	}
	return t.loggerProvider
}

// Recording reports whether spans from Tracer reach an SDK provider rather
// than the global no-op one.
func (t *Telemetry) Recording() bool {
	return t != nil && t.tracerProvider != nil
}

// Shutdown flushes and stops all providers. It is safe to call more than
// once; later calls return the first result. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	t.shutdownOnce.Do(func() {
		if _, ok := ctx.Deadline(); !ok && t.config != nil {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.config.Shutdown.Timeout)
			defer cancel()
		}

		var errs []error
		if t.tracerProvider != nil {
			if err := t.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
			}
		}
		if t.meterProvider != nil {
			if err := t.meterProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
			}
		}
		if t.loggerProvider != nil {
			if err := t.loggerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("logger provider shutdown: %w", err))
			}
		}

		t.healthy.Store(false)
		t.shutdownErr = errors.Join(errs...)
	})
	return t.shutdownErr
}

// ForceFlush immediately exports all pending telemetry data.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace flush: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter flush: %w", err))
		}
	}
	if t.loggerProvider != nil {
		if err := t.loggerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger flush: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsEnabled returns true if telemetry is enabled and not shut down.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.config == nil {
		return false
	}
	return t.config.Enabled && t.healthy.Load()
}
