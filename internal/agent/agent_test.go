package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/wasmobs/internal/config"
	"github.com/fyrsmithlabs/wasmobs/internal/demo"
	"github.com/fyrsmithlabs/wasmobs/internal/exporter"
	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/observer"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
	"github.com/fyrsmithlabs/wasmobs/internal/telemetry"
)

// spanLog collects spans in export order.
type spanLog struct {
	mu    sync.Mutex
	spans []span.Span
}

func (l *spanLog) add(s span.Span) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spans = append(l.spans, s)
}

func (l *spanLog) all() []span.Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]span.Span(nil), l.spans...)
}

type harness struct {
	agent *Agent
	tt    *telemetry.TestTelemetry
	log   *spanLog
	tl    *logging.TestLogger
	r     wazero.Runtime
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx := context.Background()

	tt := telemetry.NewTestTelemetry()
	factory := func(context.Context) (exporter.Backend, error) {
		return tt.Backend(t), nil
	}

	h := &harness{tt: tt, log: &spanLog{}, tl: logging.NewTestLogger()}
	opts = append(opts, WithOnSpan(h.log.add))
	h.agent = New(config.Default(), factory, h.tl.Logger, opts...)
	require.NoError(t, h.agent.Start(ctx))

	r, err := NewRuntime(ctx, config.RuntimeConfig{WASI: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(ctx) })
	h.r = r
	return h
}

func (h *harness) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.agent.Shutdown(ctx))
	assert.Equal(t, exporter.StateTerminated, h.agent.State())
}

func TestAgent_SequentialCalls(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	inst, err := h.agent.Load(ctx, h.r, demo.Module)
	require.NoError(t, err)

	res, err := inst.ExportedFunction("add").Call(ctx, api.EncodeI32(5), api.EncodeI32(3))
	require.NoError(t, err)
	assert.Equal(t, int32(8), api.DecodeI32(res[0]))

	res, err = inst.ExportedFunction("multiply").Call(ctx, api.EncodeI32(4), api.EncodeI32(7))
	require.NoError(t, err)
	assert.Equal(t, int32(28), api.DecodeI32(res[0]))

	h.shutdown(t)

	spans := h.log.all()
	require.Len(t, spans, 2)
	assert.Equal(t, "add", spans[0].FunctionName)
	assert.Equal(t, "multiply", spans[1].FunctionName)
	for _, s := range spans {
		assert.Equal(t, span.KindCompleted, s.Status.Kind)
		assert.GreaterOrEqual(t, s.EndTimeNs, s.StartTimeNs)
		assert.Equal(t, h.agent.RuntimeID(), s.RuntimeID)
	}
	assert.NotEqual(t, spans[0].CorrelationID, spans[1].CorrelationID)

	h.tt.AssertSpanExists(t, "wasm::add")
	h.tt.AssertSpanExists(t, "wasm::multiply")
	h.tt.AssertSpanAttribute(t, "wasm::add", telemetry.AttrCorrelationID, spans[0].CorrelationID.String())
	assert.Equal(t, int64(2), h.agent.Exported())
}

func TestAgent_ConcurrentCalls(t *testing.T) {
	const calls = 8
	ctx := context.Background()
	h := newHarness(t)

	inst, err := h.agent.Load(ctx, h.r, demo.Module)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := inst.ExportedFunction("add").Call(ctx, api.EncodeI32(int32(i)), api.EncodeI32(1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h.shutdown(t)

	spans := h.log.all()
	require.Len(t, spans, calls)
	ids := make(map[uuid.UUID]bool, calls)
	for _, s := range spans {
		assert.Equal(t, "add", s.FunctionName)
		assert.Equal(t, span.KindCompleted, s.Status.Kind)
		ids[s.CorrelationID] = true
	}
	assert.Len(t, ids, calls)
	h.tl.AssertNotLogged(t, zapcore.WarnLevel, "correlation mismatch")
	assert.Zero(t, h.agent.Pending())
}

func TestAgent_TrapProducesFailedSpan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	inst, err := h.agent.Load(ctx, h.r, demo.Module)
	require.NoError(t, err)

	_, err = inst.ExportedFunction("fail").Call(ctx)
	require.Error(t, err)
	h.shutdown(t)

	spans := h.log.all()
	require.Len(t, spans, 1)
	assert.Equal(t, span.KindFailed, spans[0].Status.Kind)
	assert.Equal(t, err.Error(), spans[0].Status.Reason)

	got := h.tt.SpanByName("wasm::fail")
	require.NotNil(t, got)
	assert.Equal(t, codes.Error, got.Status().Code)
}

func TestAgent_ExtraObservers(t *testing.T) {
	ctx := context.Background()
	rec := observer.NewRecorder()
	h := newHarness(t, WithObservers(rec))

	inst, err := h.agent.Load(ctx, h.r, demo.Module)
	require.NoError(t, err)
	_, err = inst.ExportedFunction("add").Call(ctx, api.EncodeI32(1), api.EncodeI32(2))
	require.NoError(t, err)
	h.shutdown(t)

	assert.Len(t, rec.Exits(), 1)
	assert.Len(t, h.log.all(), 1)
}

func TestAgent_StartConfigurationFailure(t *testing.T) {
	tl := logging.NewTestLogger()
	a := New(config.Default(), func(context.Context) (exporter.Backend, error) {
		return nil, errors.New("no collector")
	}, tl.Logger)

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exporter.ErrConfiguration)
	assert.Equal(t, exporter.StateFailed, a.State())

	// Hooks keep working; spans are dropped.
	id := uuid.New()
	assert.NotPanics(t, func() {
		a.Observer().OnEnter(id, "add")
		a.Observer().OnExit(id, "add", time.Millisecond)
	})

	assert.ErrorIs(t, a.Shutdown(context.Background()), exporter.ErrConfiguration)
}

func TestAgent_ShutdownHonoursContext(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	a := New(config.Default(), func(context.Context) (exporter.Backend, error) {
		return tt.Backend(t), nil
	}, nil)
	require.NoError(t, a.Start(context.Background()))

	// An outstanding producer handle keeps the exporter draining.
	held := a.Sender()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	held.Release()
	require.NoError(t, a.Shutdown(context.Background()))
	assert.Equal(t, exporter.StateTerminated, a.State())
}

func TestBackendFactory(t *testing.T) {
	cfg := config.Default()
	logger := logging.NewTestLogger().Logger

	f, err := BackendFactory(cfg, logger)
	require.NoError(t, err)
	assert.NotNil(t, f)

	cfg.Exporter.Backend = config.BackendNATS
	f, err = BackendFactory(cfg, logger)
	require.NoError(t, err)
	assert.NotNil(t, f)

	cfg.Exporter.Backend = "kafka"
	_, err = BackendFactory(cfg, logger)
	assert.Error(t, err)
}

func TestNewRuntime_WithoutWASI(t *testing.T) {
	ctx := context.Background()
	r, err := NewRuntime(ctx, config.RuntimeConfig{})
	require.NoError(t, err)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, demo.Module)
	require.NoError(t, err)
	assert.Len(t, compiled.ExportedFunctions(), len(demo.Exports))
}
