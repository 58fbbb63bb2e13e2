// Package instrument wraps the exported functions of a WebAssembly module so
// that every call notifies an observer.Observer, without touching the
// module's bytecode.
//
// # Usage
//
//	r := wazero.NewRuntime(ctx)
//	inst, err := instrument.Load(ctx, r, wasmBytes, obs)
//	if err != nil {
//	    return err
//	}
//	defer inst.Close(ctx)
//
//	add := inst.ExportedFunction("add")
//	res, err := add.Call(ctx, api.EncodeI32(5), api.EncodeI32(3))
//
// Instance embeds the instantiated api.Module, so host code that already works
// with an api.Module keeps working: only ExportedFunction is intercepted.
//
// # Guarantees
//
// A wrapped function has the same definition (parameter and result types) as
// the original. Parameters are forwarded untouched, and results and errors
// come back exactly as the original returned them. The exit hook fires once
// per call whether the call succeeded, returned an error, or panicked.
//
// # Linking
//
// Link re-exports the instrumented functions as a wazero host module with the
// original signatures, so other modules can import them.
package instrument
