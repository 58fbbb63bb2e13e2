// Package exporter runs the single consumer of the span queue: it configures
// a backend, signals readiness, drains every span until all producers are
// gone, then flushes the backend within a bounded time.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/queue"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

// DefaultShutdownTimeout bounds the backend flush.
const DefaultShutdownTimeout = 5 * time.Second

var (
	// ErrConfiguration wraps backend factory failures. It is fatal: the
	// exporter does not retry.
	ErrConfiguration = errors.New("exporter: backend configuration failed")

	// ErrAlreadyRunning is returned when Run or Start is called twice.
	ErrAlreadyRunning = errors.New("exporter: already running")
)

// Backend receives spans. Export is called from a single goroutine.
type Backend interface {
	Export(ctx context.Context, s span.Span) error
	Shutdown(ctx context.Context) error
}

// BackendFactory configures a backend. It runs on the exporter goroutine.
type BackendFactory func(ctx context.Context) (Backend, error)

// Exporter consumes spans from a queue and forwards them to a backend.
type Exporter struct {
	rx              *queue.Receiver[span.Span]
	factory         BackendFactory
	logger          *zap.Logger
	shutdownTimeout time.Duration
	onSpan          func(span.Span)

	running  atomic.Bool
	state    atomic.Int32
	exported atomic.Int64
	skipped  atomic.Int64

	ready chan struct{}
	done  chan struct{}
	err   error
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithShutdownTimeout bounds the backend flush. Non-positive values keep
// the default.
func WithShutdownTimeout(d time.Duration) Option {
	return func(e *Exporter) {
		if d > 0 {
			e.shutdownTimeout = d
		}
	}
}

// WithOnSpan registers fn to be called after each successful export.
func WithOnSpan(fn func(span.Span)) Option {
	return func(e *Exporter) {
		e.onSpan = fn
	}
}

// New creates an exporter reading from rx.
func New(rx *queue.Receiver[span.Span], factory BackendFactory, opts ...Option) *Exporter {
	e := &Exporter{
		rx:              rx,
		factory:         factory,
		logger:          zap.NewNop(),
		shutdownTimeout: DefaultShutdownTimeout,
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start runs the exporter in a new goroutine and returns once it is ready to
// receive spans, or with the configuration error if the backend could not be
// built.
func (e *Exporter) Start(ctx context.Context) error {
	if e.running.Load() {
		return ErrAlreadyRunning
	}
	go func() {
		_ = e.Run(ctx)
	}()

	select {
	case <-e.ready:
		return nil
	case <-e.done:
		return e.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the exporter lifecycle on the calling goroutine. It returns
// nil after a normal termination and an ErrConfiguration error if the
// backend factory failed.
//
// Cancelling ctx does not stop draining; the exporter finishes when every
// producer handle has been released.
func (e *Exporter) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)
	defer e.rx.Close()

	e.setState(StateConfiguring)
	backend, err := e.factory(ctx)
	if err != nil {
		e.setState(StateFailed)
		e.err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		e.logger.Error("exporter configuration failed", zap.Error(err))
		return e.err
	}

	e.setState(StateReady)
	close(e.ready)
	e.logger.Info("exporter ready")

	e.setState(StateDraining)
	e.drain(context.WithoutCancel(ctx), backend)

	e.setState(StateShuttingDown)
	e.shutdown(ctx, backend)

	e.setState(StateTerminated)
	e.logger.Info("exporter terminated",
		zap.Int64("exported", e.exported.Load()),
		zap.Int64("skipped", e.skipped.Load()),
	)
	return nil
}

func (e *Exporter) drain(ctx context.Context, backend Backend) {
	for {
		s, err := e.rx.Recv(ctx)
		if err != nil {
			if !errors.Is(err, queue.ErrDrained) {
				e.logger.Error("span queue receive failed", zap.Error(err))
			}
			return
		}

		if !s.Valid() {
			e.skipped.Add(1)
			SpansSkipped.Inc()
			e.logger.Warn("skipping incomplete span",
				zap.String("function", s.FunctionName),
				zap.String("correlation_id", s.CorrelationID.String()),
				zap.Int64("start_time_ns", s.StartTimeNs),
				zap.Int64("end_time_ns", s.EndTimeNs),
			)
			continue
		}

		if err := backend.Export(ctx, s); err != nil {
			ExportErrors.Inc()
			e.logger.Error("span export failed",
				zap.String("function", s.FunctionName),
				zap.Error(err),
			)
			continue
		}

		e.exported.Add(1)
		SpansExported.Inc()
		if e.onSpan != nil {
			e.onSpan(s)
		}
	}
}

// shutdown flushes the backend. A backend that does not return within the
// timeout is abandoned.
func (e *Exporter) shutdown(ctx context.Context, backend Backend) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.shutdownTimeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- backend.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-result:
		if err != nil {
			e.logger.Warn("backend shutdown failed", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		ShutdownTimeouts.Inc()
		e.logger.Warn("backend shutdown timed out",
			zap.Duration("timeout", e.shutdownTimeout),
		)
	}
}

func (e *Exporter) setState(s State) {
	e.state.Store(int32(s))
	CurrentState.Set(float64(s))
	e.logger.Debug("exporter state", zap.Stringer("state", s))
}

// State returns the current lifecycle state.
func (e *Exporter) State() State {
	return State(e.state.Load())
}

// Ready is closed once the backend is configured.
func (e *Exporter) Ready() <-chan struct{} {
	return e.ready
}

// Done is closed when the exporter has terminated or failed.
func (e *Exporter) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the exporter finishes and returns its error.
func (e *Exporter) Wait() error {
	<-e.done
	return e.err
}

// Exported returns the number of spans the backend accepted.
func (e *Exporter) Exported() int64 {
	return e.exported.Load()
}

// Skipped returns the number of incomplete spans that were dropped.
func (e *Exporter) Skipped() int64 {
	return e.skipped.Load()
}
