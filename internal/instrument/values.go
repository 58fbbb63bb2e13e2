package instrument

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// ErrUnsupportedType is returned for value types that cannot be expressed as
// text arguments (v128, externref, funcref).
var ErrUnsupportedType = errors.New("unsupported value type")

// EncodeParams parses text arguments into the stack encoding expected by
// def's parameter types.
func EncodeParams(def api.FunctionDefinition, args []string) ([]uint64, error) {
	types := def.ParamTypes()
	if len(args) != len(types) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", exportName(def), len(types), len(args))
	}

	params := make([]uint64, len(args))
	for i, arg := range args {
		v, err := encodeValue(types[i], strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, exportName(def), err)
		}
		params[i] = v
	}
	return params, nil
}

func encodeValue(t api.ValueType, arg string) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		if v, err := strconv.ParseInt(arg, 0, 32); err == nil {
			return api.EncodeI32(int32(v)), nil
		}
		v, err := strconv.ParseUint(arg, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("parse i32 %q: %w", arg, err)
		}
		return api.EncodeU32(uint32(v)), nil
	case api.ValueTypeI64:
		if v, err := strconv.ParseInt(arg, 0, 64); err == nil {
			return api.EncodeI64(v), nil
		}
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse i64 %q: %w", arg, err)
		}
		return v, nil
	case api.ValueTypeF32:
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return 0, fmt.Errorf("parse f32 %q: %w", arg, err)
		}
		return api.EncodeF32(float32(v)), nil
	case api.ValueTypeF64:
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, fmt.Errorf("parse f64 %q: %w", arg, err)
		}
		return api.EncodeF64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, api.ValueTypeName(t))
	}
}

// DecodeResults converts raw results into Go values according to def's
// result types: int32, int64, float32, float64, or the raw uint64 for
// anything else. NaN and infinite floats become the strings "NaN", "+Inf"
// and "-Inf" so that results always encode as JSON.
func DecodeResults(def api.FunctionDefinition, results []uint64) []any {
	types := def.ResultTypes()
	out := make([]any, len(results))
	for i, v := range results {
		if i >= len(types) {
			out[i] = v
			continue
		}
		switch types[i] {
		case api.ValueTypeI32:
			out[i] = api.DecodeI32(v)
		case api.ValueTypeI64:
			out[i] = int64(v)
		case api.ValueTypeF32:
			f := api.DecodeF32(v)
			out[i] = floatResult(f, float64(f), 32)
		case api.ValueTypeF64:
			f := api.DecodeF64(v)
			out[i] = floatResult(f, f, 64)
		default:
			out[i] = v
		}
	}
	return out
}

func floatResult(v any, f float64, bitSize int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bitSize)
	}
	return v
}

// Signature renders def's type signature, e.g. "(i32, i32) -> (i32)".
func Signature(def api.FunctionDefinition) string {
	return "(" + typeList(def.ParamTypes()) + ") -> (" + typeList(def.ResultTypes()) + ")"
}

func typeList(types []api.ValueType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, ", ")
}

func exportName(def api.FunctionDefinition) string {
	if names := def.ExportNames(); len(names) > 0 {
		return names[0]
	}
	return def.DebugName()
}
