package instrument

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Link instantiates a host module named moduleName that re-exports every
// function of inst with its original parameter and result types. Calls made
// through the host module, including from other wasm modules importing it,
// go through the instrumented functions.
//
// Errors cannot be returned across the wasm boundary, so a failed call is
// raised the way wazero host functions report failures. The engine may
// annotate such errors with a wasm stack trace; use Instance directly when
// the exact error value matters.
func Link(ctx context.Context, r wazero.Runtime, moduleName string, inst *Instance) (api.Module, error) {
	b := r.NewHostModuleBuilder(moduleName)
	for _, name := range inst.Exports() {
		def := inst.ExportedFunction(name).Definition()
		b.NewFunctionBuilder().
			WithGoModuleFunction(forward(inst, name), def.ParamTypes(), def.ResultTypes()).
			Export(name)
	}

	mod, err := b.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate host module %q: %w", moduleName, err)
	}
	return mod, nil
}

// forward looks the function up per call so concurrent host calls never
// share one api.Function.
func forward(inst *Instance, name string) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		if err := inst.ExportedFunction(name).CallWithStack(ctx, stack); err != nil {
			panic(err)
		}
	}
}
