package correlator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/wasmobs/internal/logging"
	"github.com/fyrsmithlabs/wasmobs/internal/queue"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

func drain(t *testing.T, tx *queue.Sender[span.Span], rx *queue.Receiver[span.Span]) []span.Span {
	t.Helper()
	tx.Release()

	var spans []span.Span
	for {
		s, err := rx.Recv(context.Background())
		if errors.Is(err, queue.ErrDrained) {
			return spans
		}
		require.NoError(t, err)
		spans = append(spans, s)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCorrelator_PairsEnterAndExit(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	runtimeID := uuid.New()
	start := time.Unix(1700000000, 123)
	c := New(tx, WithClock(fixedClock(start)), WithRuntimeID(runtimeID))

	id := uuid.New()
	c.OnEnter(id, "add")
	assert.Equal(t, 1, c.Pending())
	assert.Zero(t, rx.Len(), "enter emits nothing")

	c.OnExit(id, "add", 1500*time.Nanosecond)
	assert.Zero(t, c.Pending())

	spans := drain(t, tx, rx)
	require.Len(t, spans, 1)

	s := spans[0]
	assert.Equal(t, id, s.CorrelationID)
	assert.Equal(t, runtimeID, s.RuntimeID)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.NotEqual(t, id, s.ID)
	assert.Equal(t, "add", s.FunctionName)
	assert.Equal(t, start.UnixNano(), s.StartTimeNs)
	assert.Equal(t, int64(1500), s.EndTimeNs-s.StartTimeNs, "end - start equals the measured duration exactly")
	assert.Zero(t, s.MemoryBytes)
	assert.Equal(t, span.Completed(), s.Status)
	assert.True(t, s.Valid())
}

func TestCorrelator_FailedCall(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	c := New(tx)

	id := uuid.New()
	c.OnEnter(id, "fail")
	c.OnError(id, "fail", errors.New("wasm error: unreachable"))
	c.OnExit(id, "fail", time.Microsecond)

	spans := drain(t, tx, rx)
	require.Len(t, spans, 1)
	assert.Equal(t, span.Failed("wasm error: unreachable"), spans[0].Status)
}

func TestCorrelator_OnErrorWithoutEnterIsIgnored(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	c := New(tx)

	assert.NotPanics(t, func() {
		c.OnError(uuid.New(), "fail", errors.New("boom"))
		c.OnError(uuid.New(), "fail", nil)
	})
	assert.Zero(t, c.Pending())
	assert.Empty(t, drain(t, tx, rx))
}

func TestCorrelator_OrphanExit(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	tl := logging.NewTestLogger()
	c := New(tx, WithLogger(tl.Underlying()))

	assert.NotPanics(t, func() {
		c.OnExit(uuid.New(), "add", time.Millisecond)
	})

	assert.Empty(t, drain(t, tx, rx), "orphan exit never emits a span")
	tl.AssertLogged(t, zapcore.WarnLevel, "correlation mismatch: exit without enter")
}

func TestCorrelator_OrphanWarningsAreRateLimited(t *testing.T) {
	tx, _ := queue.New[span.Span]()
	tl := logging.NewTestLogger()
	c := New(tx, WithLogger(tl.Underlying()), WithOrphanLogLimit(time.Hour, 3))

	for i := 0; i < 50; i++ {
		c.OnExit(uuid.New(), "add", time.Millisecond)
	}

	assert.Equal(t, 3, tl.Count(zapcore.WarnLevel, "correlation mismatch"))
}

func TestCorrelator_SecondExitIsOrphan(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	tl := logging.NewTestLogger()
	c := New(tx, WithLogger(tl.Underlying()))

	id := uuid.New()
	c.OnEnter(id, "add")
	c.OnExit(id, "add", time.Millisecond)
	c.OnExit(id, "add", time.Millisecond)

	assert.Len(t, drain(t, tx, rx), 1)
	tl.AssertLogged(t, zapcore.WarnLevel, "correlation mismatch")
}

func TestCorrelator_SendFailureIsSwallowed(t *testing.T) {
	tx, rx := queue.New[span.Span]()
	rx.Close()
	tl := logging.NewTestLogger()
	c := New(tx, WithLogger(tl.Underlying()))

	id := uuid.New()
	c.OnEnter(id, "add")
	assert.NotPanics(t, func() {
		c.OnExit(id, "add", time.Millisecond)
	})
	assert.Zero(t, c.Pending())
	tl.AssertLogged(t, zapcore.DebugLevel, "span dropped")
}

func TestCorrelator_ConcurrentCalls(t *testing.T) {
	const calls = 8
	tx, rx := queue.New[span.Span]()
	tl := logging.NewTestLogger()
	c := New(tx, WithLogger(tl.Underlying()))

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, calls)
	for i := range ids {
		ids[i] = uuid.New()
		c.OnEnter(ids[i], "add")
	}
	for i := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			c.OnExit(id, "add", time.Duration(i+1)*time.Microsecond)
		}(ids[i])
	}
	wg.Wait()

	spans := drain(t, tx, rx)
	require.Len(t, spans, calls)

	seen := make(map[uuid.UUID]bool)
	for _, s := range spans {
		assert.Equal(t, span.KindCompleted, s.Status.Kind)
		seen[s.CorrelationID] = true
	}
	assert.Len(t, seen, calls)
	tl.AssertNotLogged(t, zapcore.WarnLevel, "correlation mismatch")
}

func TestCorrelator_DefaultRuntimeID(t *testing.T) {
	tx, _ := queue.New[span.Span]()
	a, b := New(tx), New(tx)
	assert.NotEqual(t, uuid.Nil, a.RuntimeID())
	assert.NotEqual(t, a.RuntimeID(), b.RuntimeID())
}
