// Package agent wires the span pipeline: a delivery queue, the correlator
// that feeds it, and the exporter that drains it. Host code starts the agent,
// instruments modules with its observer, and shuts it down once all calls are
// done.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/config"
	"github.com/fyrsmithlabs/wasmobs/internal/correlator"
	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/instrument"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/observer"
	"github.com/fyrsmithlabs/wasmobs/internal/queue"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

// Agent owns one span pipeline.
type Agent struct {
	logger     *logging.Logger
	tx         *queue.Sender[span.Span]
	rx         *queue.Receiver[span.Span]
	correlator *correlator.Correlator
	exporter   *exporter.Exporter
	observer   observer.Observer

	releaseOnce sync.Once
}

// Option configures an Agent.
type Option func(*options)

type options struct {
	observers []observer.Observer
	runtimeID uuid.UUID
	onSpan    func(span.Span)
}

// WithObservers adds observers that see every hook alongside the correlator.
func WithObservers(obs ...observer.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs...)
	}
}

// WithRuntimeID fixes the runtime id stamped on spans.
func WithRuntimeID(id uuid.UUID) Option {
	return func(o *options) {
		o.runtimeID = id
	}
}

// WithOnSpan registers fn to run after each exported span.
func WithOnSpan(fn func(span.Span)) Option {
	return func(o *options) {
		o.onSpan = fn
	}
}

// New builds the pipeline. Nothing runs until Start.
func New(cfg *config.Config, factory exporter.BackendFactory, logger *logging.Logger, opts ...Option) *Agent {
	o := &options{runtimeID: uuid.New()}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = logging.Nop()
	}

	tx, rx := queue.New[span.Span](queue.WithCapacity(cfg.Exporter.QueueCapacity))

	corr := correlator.New(tx,
		correlator.WithLogger(logger.Named("correlator").Underlying()),
		correlator.WithRuntimeID(o.runtimeID),
	)

	exp := exporter.New(rx, factory,
		exporter.WithLogger(logger.Named("exporter").Underlying()),
		exporter.WithShutdownTimeout(cfg.Exporter.ShutdownTimeout.Duration()),
		exporter.WithOnSpan(o.onSpan),
	)

	hooks := append([]observer.Observer{corr}, o.observers...)
	if logger.Enabled(logging.TraceLevel) {
		hooks = append(hooks, observer.Log(logger.Named("calls").Underlying()))
	}

	return &Agent{
		logger:     logger,
		tx:         tx,
		rx:         rx,
		correlator: corr,
		exporter:   exp,
		observer:   observer.Multi(hooks...),
	}
}

// Start launches the exporter and waits until it is ready. A backend
// configuration error is returned as is and is fatal.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.exporter.Start(ctx); err != nil {
		a.release()
		return err
	}
	a.logger.Info(ctx, "agent started",
		zap.String("runtime_id", a.correlator.RuntimeID().String()))
	return nil
}

// Observer returns the observer to instrument modules with.
func (a *Agent) Observer() observer.Observer {
	return a.observer
}

// Instrument instruments an already compiled module.
func (a *Agent) Instrument(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule, opts ...instrument.Option) (*instrument.Instance, error) {
	opts = append([]instrument.Option{instrument.WithLogger(a.logger.Named("instrument").Underlying())}, opts...)
	return instrument.Instrument(ctx, r, compiled, a.observer, opts...)
}

// Load compiles and instruments wasm.
func (a *Agent) Load(ctx context.Context, r wazero.Runtime, wasm []byte, opts ...instrument.Option) (*instrument.Instance, error) {
	opts = append([]instrument.Option{instrument.WithLogger(a.logger.Named("instrument").Underlying())}, opts...)
	return instrument.Load(ctx, r, wasm, a.observer, opts...)
}

// Shutdown releases the agent's producer handle and waits for the exporter
// to drain and terminate. Calls still running after Shutdown may have their
// spans dropped. If ctx ends first, Shutdown returns while the exporter keeps
// draining in the background.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.release()

	select {
	case <-a.exporter.Done():
	case <-ctx.Done():
		return fmt.Errorf("waiting for exporter: %w", ctx.Err())
	}

	if err := a.exporter.Wait(); err != nil {
		return err
	}
	a.logger.Info(ctx, "agent stopped",
		zap.Int64("exported", a.exporter.Exported()),
		zap.Int64("skipped", a.exporter.Skipped()),
		zap.Int("pending", a.correlator.Pending()),
	)
	return nil
}

func (a *Agent) release() {
	a.releaseOnce.Do(a.tx.Release)
}

// Sender returns a new producer handle on the agent's queue. The caller must
// release it.
func (a *Agent) Sender() *queue.Sender[span.Span] {
	return a.tx.Clone()
}

// State returns the exporter state.
func (a *Agent) State() exporter.State {
	return a.exporter.State()
}

// Exported returns the number of spans exported so far.
func (a *Agent) Exported() int64 {
	return a.exporter.Exported()
}

// Pending returns the number of calls in flight.
func (a *Agent) Pending() int {
	return a.correlator.Pending()
}

// RuntimeID returns the id stamped on this agent's spans.
func (a *Agent) RuntimeID() uuid.UUID {
	return a.correlator.RuntimeID()
}

// QueueLen returns the number of spans waiting for export.
func (a *Agent) QueueLen() int {
	return a.rx.Len()
}
