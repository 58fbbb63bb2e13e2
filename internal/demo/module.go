// Package demo carries a tiny prebuilt WebAssembly module used by the
// `wasmobs demo` command and by tests across the repository.
package demo

// Module is the binary encoding of:
//
//	(module
//	  (func (export "add") (param i32 i32) (result i32)
//	    local.get 0 local.get 1 i32.add)
//	  (func (export "multiply") (param i32 i32) (result i32)
//	    local.get 0 local.get 1 i32.mul)
//	  (func (export "fail") unreachable)
//	  (memory (export "memory") 1))
var Module = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version

	// type section: (i32 i32)->i32, ()->()
	0x01, 0x0a, 0x02,
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x60, 0x00, 0x00,

	// function section
	0x03, 0x04, 0x03, 0x00, 0x00, 0x01,

	// memory section: one memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section
	0x07, 0x22, 0x04,
	0x03, 'a', 'd', 'd', 0x00, 0x00,
	0x08, 'm', 'u', 'l', 't', 'i', 'p', 'l', 'y', 0x00, 0x01,
	0x04, 'f', 'a', 'i', 'l', 0x00, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,

	// code section
	0x0a, 0x15, 0x03,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6c, 0x0b,
	0x03, 0x00, 0x00, 0x0b,
}

// Exports lists the callable exports of Module in export order.
var Exports = []string{"add", "multiply", "fail"}
