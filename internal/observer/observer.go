// Package observer defines the hook interface invoked around every call to an
// instrumented function, together with a few stock implementations.
package observer

import (
	"time"

	"github.com/google/uuid"
)

// Observer receives enter/exit notifications around a call.
//
// Both methods run synchronously on the calling goroutine, so implementations
// must not block or perform I/O. They cannot fail: any internal problem is
// absorbed by the implementation.
type Observer interface {
	OnEnter(id uuid.UUID, name string)
	OnExit(id uuid.UUID, name string, duration time.Duration)
}

// ErrorObserver is implemented by observers that want the error returned by a
// failed call. OnError is called after the call returns and before OnExit.
type ErrorObserver interface {
	Observer
	OnError(id uuid.UUID, name string, err error)
}

// Nop ignores every notification.
type Nop struct{}

func (Nop) OnEnter(uuid.UUID, string)                {}
func (Nop) OnExit(uuid.UUID, string, time.Duration) {}

// Multi fans notifications out to several observers, in order.
func Multi(observers ...Observer) Observer {
	flat := make(multi, 0, len(observers))
	for _, o := range observers {
		if o == nil {
			continue
		}
		if m, ok := o.(multi); ok {
			flat = append(flat, m...)
			continue
		}
		flat = append(flat, o)
	}
	return flat
}

type multi []Observer

func (m multi) OnEnter(id uuid.UUID, name string) {
	for _, o := range m {
		o.OnEnter(id, name)
	}
}

func (m multi) OnError(id uuid.UUID, name string, err error) {
	for _, o := range m {
		if eo, ok := o.(ErrorObserver); ok {
			eo.OnError(id, name, err)
		}
	}
}

func (m multi) OnExit(id uuid.UUID, name string, duration time.Duration) {
	for _, o := range m {
		o.OnExit(id, name, duration)
	}
}
