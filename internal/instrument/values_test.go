package instrument

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
)

func TestEncodeParams_DemoAdd(t *testing.T) {
	r := newRuntime(t)
	def := compileDemo(t, r).ExportedFunctions()["add"]

	params, err := EncodeParams(def, []string{"5", " -3 "})
	require.NoError(t, err)
	assert.Equal(t, []uint64{api.EncodeI32(5), api.EncodeI32(-3)}, params)

	_, err = EncodeParams(def, []string{"5"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add expects 2 arguments, got 1")

	_, err = EncodeParams(def, []string{"5", "three"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "argument 1 of add")

	assert.Equal(t, "(i32, i32) -> (i32)", Signature(def))
}

func TestEncodeParams_AllTypes(t *testing.T) {
	def := fakeDefinition{
		name:   "mixed",
		params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeI32},
	}

	params, err := EncodeParams(def, []string{"0x10", "-9000000000", "1.5", "2.25", "4294967295"})
	require.NoError(t, err)
	assert.Equal(t, int32(16), api.DecodeI32(params[0]))
	assert.Equal(t, int64(-9000000000), int64(params[1]))
	assert.Equal(t, float32(1.5), api.DecodeF32(params[2]))
	assert.Equal(t, 2.25, api.DecodeF64(params[3]))
	assert.Equal(t, uint32(4294967295), api.DecodeU32(params[4]))
}

func TestEncodeParams_UnsupportedType(t *testing.T) {
	def := fakeDefinition{name: "ref", params: []api.ValueType{api.ValueTypeExternref}}

	_, err := EncodeParams(def, []string{"1"})
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestDecodeResults(t *testing.T) {
	def := fakeDefinition{
		name:    "mixed",
		results: []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeExternref},
	}

	out := DecodeResults(def, []uint64{
		api.EncodeI32(-7),
		api.EncodeI64(1 << 40),
		api.EncodeF32(0.5),
		api.EncodeF64(-1.25),
		99,
		100, // more results than declared types
	})

	assert.Equal(t, []any{int32(-7), int64(1 << 40), float32(0.5), -1.25, uint64(99), uint64(100)}, out)
	assert.Equal(t, "() -> (i32, i64, f32, f64, externref)", Signature(def))
}

func TestDecodeResults_NonFiniteFloatsEncodeAsJSON(t *testing.T) {
	def := fakeDefinition{
		name:    "ratios",
		results: []api.ValueType{api.ValueTypeF64, api.ValueTypeF64, api.ValueTypeF32, api.ValueTypeF64},
	}

	out := DecodeResults(def, []uint64{
		api.EncodeF64(math.NaN()),
		api.EncodeF64(math.Inf(1)),
		api.EncodeF32(float32(math.Inf(-1))),
		api.EncodeF64(2.5),
	})
	assert.Equal(t, []any{"NaN", "+Inf", "-Inf", 2.5}, out)

	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `["NaN","+Inf","-Inf",2.5]`, string(data))
}
