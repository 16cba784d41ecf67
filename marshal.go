package finn

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/danderson/finn/fragments"
)

// marshal writes the FINN encoding of the struct pointed to by v to
// e, in direction dir.
//
// Marshal traverses the value v recursively, and uses the following
// type-dependent encodings:
//
// uint{8,16,32,64}, int{8,16,32,64} and bool values encode as packed
// integers of the same width, with no alignment padding. bool
// encodes as a single byte. Fields tagged with `finn:"max=N"` are
// checked against the bound before anything is written, and fail
// with [StatusOutOfRange].
//
// Values whose type implements [Enum] encode as their 4-byte wire ID.
//
// Fixed length arrays encode each element in order.
//
// Struct values encode as a FINN struct body: padding to an 8-byte
// boundary, a 64-bit field mask with one bit set per exported field,
// the fixed size fields in declaration order, padding to an 8-byte
// boundary, and finally the variable length fields in declaration
// order.
//
// Slice fields are variable length, and must be tagged with
// `finn:"count=Field"` naming an earlier unsigned integer field that
// holds the element count, or with `finn:"count=N"` for a constant
// count. A slice encodes as a presence byte, followed by count
// elements if the slice is non-nil, followed by padding to an 8-byte
// boundary. A non-nil slice shorter than its count fails with
// [StatusInvalidArgument].
//
// Interface fields are tagged unions, and must be tagged with
// `finn:"union=Field"` naming an earlier [UnionTag] field. A union
// encodes as a struct body whose field mask has one bit per variant,
// and whose only content is the selected variant's struct. The
// variant held by the field must match the variant selected by the
// tag. A nil union field encodes the zero value of the selected
// variant.
//
// Pointer values encode as the value pointed to. A nil pointer
// encodes as the zero value of the type pointed to.
//
// When dir is [Up], marshal releases the slices it encodes by
// setting their fields to nil, once they have been copied into the
// output. The caller must then not rely on their contents.
//
// int, uint, uintptr, floats, complex, string, map, channel and
// function values cannot be encoded. Attempting to encode such values
// causes marshal to return a [TypeError].
func marshal(ctx context.Context, e *fragments.Encoder, v reflect.Value, dir Direction) error {
	enc, err := lookupEncoder(v.Type())
	if err != nil {
		return err
	}
	e.Mapper = lookupEncoder
	return enc(withContextDirection(ctx, dir), e, v)
}

var encoders cache[reflect.Type, fragments.EncoderFunc]

// lookupEncoder returns the encoder for t, building it if needed.
func lookupEncoder(t reflect.Type) (fragments.EncoderFunc, error) {
	if ret, ok, err := encoders.Load(t); ok {
		return ret, err
	}
	buildMu.Lock()
	defer buildMu.Unlock()
	return encoderFor(t)
}

// encoderFor returns the encoder for t. It must be called with
// buildMu held, unless the encoder for t is already built.
func encoderFor(t reflect.Type) (ret fragments.EncoderFunc, err error) {
	if ret, err := encoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	// Note, defer captures the type value in case it gets messed with
	// below.
	defer func(t reflect.Type) {
		if err != nil {
			encoders.SetErr(t, err)
		} else {
			encoders.Set(t, ret)
		}
	}(t)

	if t.Implements(enumType) {
		return newEnumEncoder(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		return newPtrEncoder(t)
	case reflect.Bool:
		return newBoolEncoder(), nil
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return nil, typeErr(t, "int and uint aren't portable, use fixed width integers")
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntEncoder(t), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintEncoder(t), nil
	case reflect.Array:
		return newArrayEncoder(t)
	case reflect.Struct:
		return newStructEncoder(t)
	case reflect.Slice:
		return nil, typeErr(t, "slices are only supported as struct fields with a count tag")
	case reflect.Interface:
		return nil, typeErr(t, "interfaces are only supported as struct fields with a union tag")
	}
	return nil, typeErr(t, "no FINN mapping for type")
}

func newPtrEncoder(t reflect.Type) (fragments.EncoderFunc, error) {
	elemEnc, err := encoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		if v.IsNil() {
			return elemEnc(ctx, e, reflect.New(t.Elem()).Elem())
		}
		return elemEnc(ctx, e, v.Elem())
	}
	return fn, nil
}

func newEnumEncoder() fragments.EncoderFunc {
	return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		id, err := v.Interface().(Enum).WireID()
		if err != nil {
			return &Error{Status: StatusInvalidArgument, Reason: err}
		}
		e.Uint32(id)
		return nil
	}
}

func newBoolEncoder() fragments.EncoderFunc {
	return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		val := uint8(0)
		if v.Bool() {
			val = 1
		}
		e.Uint8(val)
		return nil
	}
}

func newIntEncoder(t reflect.Type) fragments.EncoderFunc {
	switch t.Size() {
	case 1:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint8(uint8(v.Int()))
			return nil
		}
	case 2:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint16(uint16(v.Int()))
			return nil
		}
	case 4:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint32(uint32(v.Int()))
			return nil
		}
	case 8:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint64(uint64(v.Int()))
			return nil
		}
	default:
		panic("invalid newIntEncoder type")
	}
}

func newUintEncoder(t reflect.Type) fragments.EncoderFunc {
	switch t.Size() {
	case 1:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint8(uint8(v.Uint()))
			return nil
		}
	case 2:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint16(uint16(v.Uint()))
			return nil
		}
	case 4:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint32(uint32(v.Uint()))
			return nil
		}
	case 8:
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			e.Uint64(v.Uint())
			return nil
		}
	default:
		panic("invalid newUintEncoder type")
	}
}

func newArrayEncoder(t reflect.Type) (fragments.EncoderFunc, error) {
	if t.Elem().Kind() == reflect.Uint8 && !t.Elem().Implements(enumType) {
		// Fast path for [N]byte
		return func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
			if v.CanAddr() {
				e.Write(v.Bytes())
				return nil
			}
			for i := range v.Len() {
				e.Uint8(uint8(v.Index(i).Uint()))
			}
			return nil
		}, nil
	}

	elemEnc, err := encoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		for i := range v.Len() {
			if err := elemEnc(ctx, e, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fn, nil
}

func newStructEncoder(t reflect.Type) (fragments.EncoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, fmt.Errorf("getting struct info for %s: %w", t, err)
	}

	var static, variable []fragments.EncoderFunc
	for _, f := range fs.Static {
		fEnc, err := newStructFieldEncoder(t, f)
		if err != nil {
			return nil, err
		}
		static = append(static, fEnc)
	}
	for _, f := range fs.Variable {
		var fEnc fragments.EncoderFunc
		if f.Kind == fieldBuffer {
			fEnc, err = newBufferFieldEncoder(t, f)
		} else {
			fEnc, err = newUnionFieldEncoder(t, f)
		}
		if err != nil {
			return nil, err
		}
		variable = append(variable, fEnc)
	}

	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		return e.Struct(fs.Mask, func() error {
			for _, frag := range static {
				if err := frag(ctx, e, v); err != nil {
					return err
				}
			}
			e.Pad(8)
			for _, frag := range variable {
				if err := frag(ctx, e, v); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return fn, nil
}

// Note, the returned fragment encoder expects to be given the entire
// struct, not just the one field being encoded.
func newStructFieldEncoder(st reflect.Type, f *structField) (fragments.EncoderFunc, error) {
	fEnc, err := encoderFor(f.Type)
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		fv := f.Get(v)
		if err := f.CheckRange(fv); err != nil {
			return withField(err, st, f.Name)
		}
		if err := fEnc(ctx, e, fv); err != nil {
			return withField(err, st, f.Name)
		}
		return nil
	}
	return fn, nil
}

// Note, the returned fragment encoder expects to be given the entire
// struct, not just the one field being encoded.
func newBufferFieldEncoder(st reflect.Type, f *structField) (fragments.EncoderFunc, error) {
	et := f.Type.Elem()
	elemEnc, err := encoderFor(et)
	if err != nil {
		return nil, err
	}
	rawBytes := et.Kind() == reflect.Uint8 && !et.Implements(enumType)

	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		fv := f.Get(v)
		present := !fv.IsNil()
		count := f.ElemCount(v)
		if present && uint64(fv.Len()) < count {
			return withField(statusErr(StatusInvalidArgument, "slice has %d elements, count is %d", fv.Len(), count), st, f.Name)
		}

		err := e.Variable(present, func() error {
			if rawBytes {
				e.Write(fv.Bytes()[:count])
				return nil
			}
			for i := range int(count) {
				if err := elemEnc(ctx, e, fv.Index(i)); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return withField(err, st, f.Name)
		}

		if present && !e.SizeOnly && ContextDirection(ctx) == Up && fv.CanSet() {
			// The payload now carries the data, release the sender's
			// copy.
			fv.SetZero()
		}
		return nil
	}
	return fn, nil
}

// Note, the returned fragment encoder expects to be given the entire
// struct, not just the one field being encoded.
func newUnionFieldEncoder(st reflect.Type, f *structField) (fragments.EncoderFunc, error) {
	fn := func(ctx context.Context, e *fragments.Encoder, v reflect.Value) error {
		vt, tag, err := unionVariant(f, v)
		if err != nil {
			return withField(&Error{Status: StatusInvalidArgument, Reason: err}, st, f.Name)
		}
		return withField(encodeUnion(ctx, e, tag, vt, f.Get(v)), st, f.Name)
	}
	return fn, nil
}

// encodeUnion writes the union value fv, whose active variant is
// vt as selected by tag.
func encodeUnion(ctx context.Context, e *fragments.Encoder, tag UnionTag, vt reflect.Type, fv reflect.Value) error {
	var val reflect.Value
	if fv.IsNil() {
		val = reflect.New(vt).Elem()
	} else {
		val = fv.Elem()
		if val.Kind() == reflect.Pointer && val.Type().Elem() == vt {
			if val.IsNil() {
				val = reflect.New(vt)
			}
			val = val.Elem()
		}
		if val.Type() != vt {
			return statusErr(StatusInvalidArgument, "union holds %s, but tag %v selects %s", val.Type(), tag, vt)
		}
	}

	// Variants held by value are not addressable. Encode a copy, and
	// store it back afterwards so that released slices stay
	// released.
	storeBack := false
	if !val.CanSet() {
		cp := reflect.New(vt).Elem()
		cp.Set(val)
		val = cp
		storeBack = !fv.IsNil() && fv.CanSet() && !e.SizeOnly && ContextDirection(ctx) == Up
	}

	err := e.Struct(fieldMask(tag.NumVariants()), func() error {
		return e.Value(ctx, val.Addr().Interface())
	})
	if err != nil {
		return err
	}
	e.Pad(8)
	if storeBack {
		fv.Set(val)
	}
	return nil
}
