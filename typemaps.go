package finn

import (
	"reflect"

	"github.com/creachadair/mds/mapset"
)

var (
	// scalarKinds are the reflect.Kinds that encode as a single
	// packed value.
	scalarKinds = mapset.New(
		reflect.Bool,
		reflect.Int8,
		reflect.Int16,
		reflect.Int32,
		reflect.Int64,
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
	)

	// unsignedKinds are the scalar kinds that can hold an element
	// count.
	unsignedKinds = mapset.New(
		reflect.Uint8,
		reflect.Uint16,
		reflect.Uint32,
		reflect.Uint64,
	)
)

func isScalarKind(k reflect.Kind) bool {
	return scalarKinds.Has(k)
}

func isUnsignedKind(k reflect.Kind) bool {
	return unsignedKinds.Has(k)
}

// scalarUint returns the value of the scalar v, widened to a
// uint64. Negative signed values wrap around, and so compare as
// larger than any sensible bound.
func scalarUint(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			return 1
		}
		return 0
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	default:
		panic("scalarUint called on non-scalar " + v.Type().String())
	}
}

// setScalarUint stores u into the scalar v, truncating it to v's
// width.
func setScalarUint(v reflect.Value, u uint64) {
	switch v.Kind() {
	case reflect.Bool:
		v.SetBool(u != 0)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(signExtend(u, v.Type().Size()))
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(u)
	default:
		panic("setScalarUint called on non-scalar " + v.Type().String())
	}
}

func signExtend(u uint64, size uintptr) int64 {
	shift := 64 - 8*size
	return int64(u<<shift) >> shift
}
