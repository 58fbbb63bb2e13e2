// Package correlator pairs enter and exit events by correlation id and turns
// each completed pair into a span on the delivery queue.
package correlator

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/wasmobs/internal/observer"
	"github.com/fyrsmithlabs/wasmobs/internal/queue"
	"github.com/fyrsmithlabs/wasmobs/internal/span"
)

var _ observer.ErrorObserver = (*Correlator)(nil)

type pending struct {
	startNs int64
	failure string
	failed  bool
}

// Correlator is an observer that records call starts and emits one span per
// completed call. It is safe for concurrent use.
type Correlator struct {
	out       *queue.Sender[span.Span]
	runtimeID uuid.UUID
	now       func() time.Time
	logger    *zap.Logger
	orphanLog *rate.Limiter

	mu      sync.Mutex
	pending map[uuid.UUID]pending
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Correlator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the wall clock used for start timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRuntimeID sets the id stamped on every span. Defaults to a random id.
func WithRuntimeID(id uuid.UUID) Option {
	return func(c *Correlator) {
		c.runtimeID = id
	}
}

// WithOrphanLogLimit bounds how often unmatched exits are logged.
func WithOrphanLogLimit(every time.Duration, burst int) Option {
	return func(c *Correlator) {
		c.orphanLog = rate.NewLimiter(rate.Every(every), burst)
	}
}

// New creates a correlator that sends spans on out. The correlator owns out
// and never releases it; the caller releases its handle on shutdown.
func New(out *queue.Sender[span.Span], opts ...Option) *Correlator {
	c := &Correlator{
		out:       out,
		runtimeID: uuid.New(),
		now:       time.Now,
		logger:    zap.NewNop(),
		orphanLog: rate.NewLimiter(rate.Every(time.Second), 10),
		pending:   make(map[uuid.UUID]pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RuntimeID returns the id stamped on every span.
func (c *Correlator) RuntimeID() uuid.UUID {
	return c.runtimeID
}

// OnEnter records the start time of call id.
func (c *Correlator) OnEnter(id uuid.UUID, name string) {
	start := c.now().UnixNano()

	c.mu.Lock()
	c.pending[id] = pending{startNs: start}
	c.mu.Unlock()

	PendingCalls.Inc()
}

// OnError marks call id as failed. The span is still emitted at exit.
func (c *Correlator) OnError(id uuid.UUID, name string, err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	if p, ok := c.pending[id]; ok {
		p.failed = true
		p.failure = err.Error()
		c.pending[id] = p
	}
	c.mu.Unlock()
}

// OnExit completes call id and sends its span. An exit without a matching
// enter is logged and produces no span.
func (c *Correlator) OnExit(id uuid.UUID, name string, duration time.Duration) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		OrphanExits.Inc()
		if c.orphanLog.Allow() {
			c.logger.Warn("correlation mismatch: exit without enter",
				zap.String("correlation_id", id.String()),
				zap.String("function", name),
			)
		}
		return
	}
	PendingCalls.Dec()

	status := span.Completed()
	if p.failed {
		status = span.Failed(p.failure)
	}

	s := span.Span{
		ID:            uuid.New(),
		CorrelationID: id,
		RuntimeID:     c.runtimeID,
		FunctionName:  name,
		StartTimeNs:   p.startNs,
		EndTimeNs:     p.startNs + duration.Nanoseconds(),
		Status:        status,
	}

	if err := c.out.Send(s); err != nil {
		SpansDropped.Inc()
		c.logger.Debug("span dropped",
			zap.String("function", name),
			zap.Error(err),
		)
		return
	}
	SpansEmitted.WithLabelValues(status.Kind.String()).Inc()
}

// Pending returns the number of calls that have entered but not exited.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
