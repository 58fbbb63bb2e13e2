package instrument

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero/api"

	"github.com/fyrsmithlabs/wasmobs/internal/observer"
)

// function decorates an api.Function. Definition and anything else not
// overridden here is served by the embedded original.
type function struct {
	api.Function
	name     string
	observer observer.Observer
}

// Wrap returns a function with the same definition as fn whose calls are
// reported to obs under name. A nil observer behaves like observer.Nop.
func Wrap(fn api.Function, name string, obs observer.Observer) api.Function {
	if obs == nil {
		obs = observer.Nop{}
	}
	return &function{Function: fn, name: name, observer: obs}
}

// Unwrap returns the original function behind an instrumented one, or fn
// itself when it was not produced by Wrap.
func Unwrap(fn api.Function) api.Function {
	if f, ok := fn.(*function); ok {
		return f.Function
	}
	return fn
}

// Call implements api.Function.
func (f *function) Call(ctx context.Context, params ...uint64) (results []uint64, err error) {
	id, start := f.begin()
	defer func() { f.end(id, start, err) }()

	return f.Function.Call(ctx, params...)
}

// CallWithStack implements api.Function.
func (f *function) CallWithStack(ctx context.Context, stack []uint64) (err error) {
	id, start := f.begin()
	defer func() { f.end(id, start, err) }()

	return f.Function.CallWithStack(ctx, stack)
}

func (f *function) begin() (uuid.UUID, time.Time) {
	id := uuid.New()
	f.observer.OnEnter(id, f.name)
	return id, time.Now()
}

// end runs deferred, so it also fires when the original panics; the panic
// then continues unchanged.
func (f *function) end(id uuid.UUID, start time.Time, err error) {
	elapsed := time.Since(start)
	if err != nil {
		if eo, ok := f.observer.(observer.ErrorObserver); ok {
			eo.OnError(id, f.name, err)
		}
	}
	f.observer.OnExit(id, f.name, elapsed)
}
