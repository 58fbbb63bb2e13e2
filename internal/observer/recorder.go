package observer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a recorded hook call.
type EventKind string

const (
	EventEnter EventKind = "enter"
	EventError EventKind = "error"
	EventExit  EventKind = "exit"
)

// Event is one hook call captured by a Recorder.
type Event struct {
	Kind     EventKind
	ID       uuid.UUID
	Name     string
	Duration time.Duration // exit only
	Err      error         // error only
}

// Recorder captures hook calls in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) OnEnter(id uuid.UUID, name string) {
	r.add(Event{Kind: EventEnter, ID: id, Name: name})
}

func (r *Recorder) OnError(id uuid.UUID, name string, err error) {
	r.add(Event{Kind: EventError, ID: id, Name: name, Err: err})
}

func (r *Recorder) OnExit(id uuid.UUID, name string, duration time.Duration) {
	r.add(Event{Kind: EventExit, ID: id, Name: name, Duration: duration})
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of every recorded event in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns recorded events of the given kind.
func (r *Recorder) Filter(kind EventKind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Exits returns recorded exit events.
func (r *Recorder) Exits() []Event {
	return r.Filter(EventExit)
}

// Reset discards all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
