package instrument

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/fyrsmithlabs/wasmobs/internal/demo"
)

// missingImportModule imports env.missing, which nothing provides:
//
//	(module (import "env" "missing" (func)))
var missingImportModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x02, 0x0f, 0x01,
	0x03, 'e', 'n', 'v',
	0x07, 'm', 'i', 's', 's', 'i', 'n', 'g',
	0x00, 0x00,
}

func newRuntime(t *testing.T) wazero.Runtime {
	t.Helper()
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = r.Close(ctx) })
	return r
}

func compileDemo(t *testing.T, r wazero.Runtime) wazero.CompiledModule {
	t.Helper()
	compiled, err := r.CompileModule(context.Background(), demo.Module)
	require.NoError(t, err)
	return compiled
}

// fakeFunction is an api.Function driven by a closure. The embedded interface
// is left nil; it only satisfies the engine's marker method.
type fakeFunction struct {
	api.Function
	call func(ctx context.Context, params []uint64) ([]uint64, error)
}

func (f *fakeFunction) Definition() api.FunctionDefinition { return nil }

func (f *fakeFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.call(ctx, params)
}

func (f *fakeFunction) CallWithStack(ctx context.Context, stack []uint64) error {
	res, err := f.call(ctx, stack)
	copy(stack, res)
	return err
}

// fakeDefinition overrides the type information of a function definition.
type fakeDefinition struct {
	api.FunctionDefinition
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func (d fakeDefinition) ExportNames() []string         { return []string{d.name} }
func (d fakeDefinition) ParamTypes() []api.ValueType  { return d.params }
func (d fakeDefinition) ResultTypes() []api.ValueType { return d.results }
