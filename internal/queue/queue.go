// Package queue provides the delivery channel between span producers and the
// exporter: a multi-producer, single-consumer FIFO that is unbounded by
// default and reports end-of-stream once every producer handle is released.
//
// A plain Go channel cannot serve here. It is bounded, and "closed when the
// last of N producers is done" requires reference counting that channels do
// not provide.
//
// The default queue has no backpressure: a stalled consumer lets memory grow
// without limit. WithCapacity switches to a bounded queue that drops new
// items when full.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrDrained is returned by Recv once all senders are released and every
	// buffered item has been received.
	ErrDrained = errors.New("queue: drained")

	// ErrReceiverClosed is returned by Send after the receiver was closed.
	ErrReceiverClosed = errors.New("queue: receiver closed")

	// ErrSenderReleased is returned by Send on a released handle.
	ErrSenderReleased = errors.New("queue: sender released")

	// ErrFull is returned by Send on a bounded queue at capacity.
	ErrFull = errors.New("queue: full")
)

type state[T any] struct {
	mu       sync.Mutex
	items    []T
	head     int
	senders  int
	closed   bool
	capacity int // 0 = unbounded

	notify chan struct{}
}

// Option configures a queue.
type Option func(*config)

type config struct {
	capacity int
}

// WithCapacity bounds the queue to n buffered items. Sends beyond that fail
// with ErrFull. n <= 0 means unbounded.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New creates a queue and returns its first producer handle and its consumer.
func New[T any](opts ...Option) (*Sender[T], *Receiver[T]) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &state[T]{
		senders:  1,
		capacity: cfg.capacity,
		notify:   make(chan struct{}, 1),
	}
	return &Sender[T]{s: s}, &Receiver[T]{s: s}
}

// Sender is one producer handle. Handles are safe for concurrent use.
type Sender[T any] struct {
	s        *state[T]
	released atomic.Bool
}

// Clone returns a new producer handle for the same queue. Cloning a released
// handle returns a released handle.
func (p *Sender[T]) Clone() *Sender[T] {
	clone := &Sender[T]{s: p.s}
	if p.released.Load() {
		clone.released.Store(true)
		return clone
	}

	p.s.mu.Lock()
	p.s.senders++
	p.s.mu.Unlock()
	return clone
}

// Send enqueues v without blocking.
func (p *Sender[T]) Send(v T) error {
	if p.released.Load() {
		return ErrSenderReleased
	}

	s := p.s
	s.mu.Lock()
	// Release may have won the race since the check above; once it holds
	// s.mu the receiver may already have seen ErrDrained.
	if p.released.Load() {
		s.mu.Unlock()
		return ErrSenderReleased
	}
	if s.closed {
		s.mu.Unlock()
		return ErrReceiverClosed
	}
	if s.capacity > 0 && len(s.items)-s.head >= s.capacity {
		s.mu.Unlock()
		return ErrFull
	}
	s.items = append(s.items, v)
	s.mu.Unlock()

	s.wake()
	return nil
}

// Release gives up this handle. It is idempotent. When the last handle is
// released the receiver drains what is buffered and then sees ErrDrained.
func (p *Sender[T]) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}

	s := p.s
	s.mu.Lock()
	s.senders--
	last := s.senders == 0
	s.mu.Unlock()

	if last {
		s.wake()
	}
}

// Receiver is the single consumer of a queue.
type Receiver[T any] struct {
	s *state[T]
}

// Recv returns the next item, blocking until one is available. It returns
// ErrDrained when no producers remain and the buffer is empty, or ctx.Err()
// if ctx is done first.
func (c *Receiver[T]) Recv(ctx context.Context) (T, error) {
	s := c.s
	for {
		s.mu.Lock()
		if s.head < len(s.items) {
			v := s.items[s.head]
			var zero T
			s.items[s.head] = zero
			s.head++
			if s.head == len(s.items) {
				s.items = s.items[:0]
				s.head = 0
			}
			s.mu.Unlock()
			return v, nil
		}
		if s.senders == 0 {
			s.mu.Unlock()
			var zero T
			return zero, ErrDrained
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close marks the consumer as gone. Later sends fail with ErrReceiverClosed
// and buffered items are discarded.
func (c *Receiver[T]) Close() {
	s := c.s
	s.mu.Lock()
	s.closed = true
	s.items = nil
	s.head = 0
	s.mu.Unlock()
}

// Len returns the number of buffered items.
func (c *Receiver[T]) Len() int {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) - s.head
}

// Senders returns the number of unreleased producer handles.
func (c *Receiver[T]) Senders() int {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.senders
}

func (s *state[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
