package instrument

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wasmobs/internal/observer"
)

// Instance is an instantiated module whose exported functions are
// instrumented. It embeds the underlying api.Module, so it can be used
// wherever an api.Module is expected.
type Instance struct {
	api.Module

	observer     observer.Observer
	exports      []string
	wrapped      map[string]bool
	instrumented []string
}

// Option configures Instrument.
type Option func(*options)

type options struct {
	moduleConfig wazero.ModuleConfig
	logger       *zap.Logger
	filter       func(name string) bool
}

// WithModuleConfig sets the config used for the single instantiation.
func WithModuleConfig(cfg wazero.ModuleConfig) Option {
	return func(o *options) {
		o.moduleConfig = cfg
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithFilter restricts instrumentation to exports for which keep returns
// true. Other exports still resolve, to the original function.
func WithFilter(keep func(name string) bool) Option {
	return func(o *options) {
		o.filter = keep
	}
}

// Instrument instantiates compiled exactly once and wraps every exported
// function with obs.
//
// Instantiation errors are returned as the engine reported them. Exports that
// do not resolve to a function are skipped.
func Instrument(ctx context.Context, r wazero.Runtime, compiled wazero.CompiledModule, obs observer.Observer, opts ...Option) (*Instance, error) {
	o := &options{
		moduleConfig: wazero.NewModuleConfig(),
		logger:       zap.NewNop(),
		filter:       func(string) bool { return true },
	}
	for _, opt := range opts {
		opt(o)
	}

	mod, err := r.InstantiateModule(ctx, compiled, o.moduleConfig)
	if err != nil {
		return nil, err
	}

	defs := compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	if obs == nil {
		obs = observer.Nop{}
	}
	inst := &Instance{
		Module:   mod,
		observer: obs,
		wrapped:  make(map[string]bool, len(names)),
	}
	for _, name := range names {
		if mod.ExportedFunction(name) == nil {
			o.logger.Debug("skipping export without callable", zap.String("export", name))
			continue
		}
		inst.exports = append(inst.exports, name)
		if o.filter(name) {
			inst.wrapped[name] = true
			inst.instrumented = append(inst.instrumented, name)
		}
	}

	o.logger.Info("module instrumented",
		zap.String("module", mod.Name()),
		zap.Int("exports", len(names)),
		zap.Strings("instrumented", inst.instrumented))

	return inst, nil
}

// Load compiles wasm and instruments it. The compiled module is released once
// the instance exists.
func Load(ctx context.Context, r wazero.Runtime, wasm []byte, obs observer.Observer, opts ...Option) (*Instance, error) {
	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}
	defer compiled.Close(ctx)

	return Instrument(ctx, r, compiled, obs, opts...)
}

// ExportedFunction returns the instrumented function exported under name, or
// nil if there is none.
//
// Like the engine's own functions, the returned function must not be called
// from several goroutines at once. Each call to ExportedFunction returns a new
// one, so concurrent callers look the function up separately.
func (i *Instance) ExportedFunction(name string) api.Function {
	fn := i.Module.ExportedFunction(name)
	if fn == nil || !i.wrapped[name] {
		return fn
	}
	return Wrap(fn, name, i.observer)
}

// Names returns the instrumented export names in sorted order.
func (i *Instance) Names() []string {
	out := make([]string, len(i.instrumented))
	copy(out, i.instrumented)
	return out
}

// Len returns the number of instrumented exports.
func (i *Instance) Len() int {
	return len(i.instrumented)
}

// Exports returns every callable function export, instrumented or not, in
// sorted order.
func (i *Instance) Exports() []string {
	out := make([]string, len(i.exports))
	copy(out, i.exports)
	return out
}
