package finn

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"reflect"

	"github.com/danderson/finn/fragments"
)

// unmarshal reads a FINN struct body from d into v, which must be a
// settable struct value, in direction dir.
//
// Generally, unmarshal applies the inverse of the rules used by
// [marshal], and additionally checks the following:
//
// Every struct body's field mask must exactly match the mask of the
// target struct, or unmarshal fails with
// [StatusLibRMVersionMismatch].
//
// Fields tagged with `finn:"max=N"` are checked against the bound
// once read, and fail with [StatusOutOfRange].
//
// Enum values must carry a known wire ID, and union tags must select
// a known variant, or unmarshal fails with [StatusInvalidArgument].
//
// Slice fields decode differently depending on dir. In the [Down]
// direction, []byte slices alias the input directly, and other
// slices are freshly allocated. A present slice of structs with a
// count of zero fails with [StatusBufferTooSmall]. An absent slice
// sets the field to nil.
//
// In the [Up] direction, the caller must provide slices with enough
// room for the incoming elements. A nil slice fails with
// [StatusInvalidPointer], and a slice shorter than the incoming
// count fails with [StatusBufferTooSmall]. The data is copied into
// the slice's backing array, and the field is resliced to the
// incoming count. An absent slice leaves the field untouched.
//
// Union fields in the [Up] direction decode into the variant the
// field already holds, if it is of the incoming type or a pointer to
// it. Otherwise a new variant value is allocated.
//
// Reads beyond the end of the input fail with
// [StatusBufferTooSmall].
func unmarshal(ctx context.Context, d *fragments.Decoder, v reflect.Value, dir Direction) error {
	dec, err := lookupDecoder(v.Type())
	if err != nil {
		return err
	}
	d.Mapper = lookupDecoder
	return dec(withContextDirection(ctx, dir), d, v)
}

var decoders cache[reflect.Type, fragments.DecoderFunc]

// lookupDecoder returns the decoder for t, building it if needed.
func lookupDecoder(t reflect.Type) (fragments.DecoderFunc, error) {
	if ret, ok, err := decoders.Load(t); ok {
		return ret, err
	}
	buildMu.Lock()
	defer buildMu.Unlock()
	return decoderFor(t)
}

// decoderFor returns the decoder func for the given type, if the type
// is representable in the FINN wire format. It must be called with
// buildMu held, unless the decoder for t is already built.
func decoderFor(t reflect.Type) (ret fragments.DecoderFunc, err error) {
	if ret, err := decoders.Get(t); err == nil {
		return ret, nil
	} else if !errors.Is(err, errNotFound) {
		return nil, err
	}
	defer func(t reflect.Type) {
		if err != nil {
			decoders.SetErr(t, err)
		} else {
			decoders.Set(t, ret)
		}
	}(t)

	if t.Implements(enumType) {
		if !reflect.PointerTo(t).Implements(enumSetterType) {
			return nil, typeErr(t, "Enum must implement SetWireID with a pointer receiver")
		}
		return newEnumDecoder(), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		return newPtrDecoder(t)
	case reflect.Bool:
		return newBoolDecoder(), nil
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return nil, typeErr(t, "int and uint aren't portable, use fixed width integers")
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return newIntDecoder(t), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return newUintDecoder(t), nil
	case reflect.Array:
		return newArrayDecoder(t)
	case reflect.Struct:
		return newStructDecoder(t)
	case reflect.Slice:
		return nil, typeErr(t, "slices are only supported as struct fields with a count tag")
	case reflect.Interface:
		return nil, typeErr(t, "interfaces are only supported as struct fields with a union tag")
	}
	return nil, typeErr(t, "no FINN mapping for type")
}

func newPtrDecoder(t reflect.Type) (fragments.DecoderFunc, error) {
	elemDec, err := decoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		if v.IsNil() {
			v.Set(reflect.New(t.Elem()))
		}
		return elemDec(ctx, d, v.Elem())
	}
	return fn, nil
}

func newEnumDecoder() fragments.DecoderFunc {
	return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		id, err := d.Uint32()
		if err != nil {
			return err
		}
		if err := v.Addr().Interface().(enumSetter).SetWireID(id); err != nil {
			return &Error{Status: StatusInvalidArgument, Reason: err}
		}
		return nil
	}
}

func newBoolDecoder() fragments.DecoderFunc {
	return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		u8, err := d.Uint8()
		if err != nil {
			return err
		}
		v.SetBool(u8 != 0)
		return nil
	}
}

func newIntDecoder(t reflect.Type) fragments.DecoderFunc {
	switch t.Size() {
	case 1:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u8, err := d.Uint8()
			if err != nil {
				return err
			}
			v.SetInt(int64(int8(u8)))
			return nil
		}
	case 2:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u16, err := d.Uint16()
			if err != nil {
				return err
			}
			v.SetInt(int64(int16(u16)))
			return nil
		}
	case 4:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u32, err := d.Uint32()
			if err != nil {
				return err
			}
			v.SetInt(int64(int32(u32)))
			return nil
		}
	case 8:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u64, err := d.Uint64()
			if err != nil {
				return err
			}
			v.SetInt(int64(u64))
			return nil
		}
	default:
		panic("invalid newIntDecoder type")
	}
}

func newUintDecoder(t reflect.Type) fragments.DecoderFunc {
	switch t.Size() {
	case 1:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u8, err := d.Uint8()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u8))
			return nil
		}
	case 2:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u16, err := d.Uint16()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u16))
			return nil
		}
	case 4:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u32, err := d.Uint32()
			if err != nil {
				return err
			}
			v.SetUint(uint64(u32))
			return nil
		}
	case 8:
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			u64, err := d.Uint64()
			if err != nil {
				return err
			}
			v.SetUint(u64)
			return nil
		}
	default:
		panic("invalid newUintDecoder type")
	}
}

func newArrayDecoder(t reflect.Type) (fragments.DecoderFunc, error) {
	if t.Elem() == reflect.TypeFor[uint8]() {
		// Fast path for [N]byte
		return func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
			bs, err := d.Read(v.Len())
			if err != nil {
				return err
			}
			reflect.Copy(v, reflect.ValueOf(bs))
			return nil
		}, nil
	}

	elemDec, err := decoderFor(t.Elem())
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		for i := range v.Len() {
			if err := elemDec(ctx, d, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	}
	return fn, nil
}

func newStructDecoder(t reflect.Type) (fragments.DecoderFunc, error) {
	fs, err := getStructInfo(t)
	if err != nil {
		return nil, fmt.Errorf("getting struct info for %s: %w", t, err)
	}

	var static, variable []fragments.DecoderFunc
	for _, f := range fs.Static {
		fDec, err := newStructFieldDecoder(t, f)
		if err != nil {
			return nil, err
		}
		static = append(static, fDec)
	}
	for _, f := range fs.Variable {
		var fDec fragments.DecoderFunc
		if f.Kind == fieldBuffer {
			fDec, err = newBufferFieldDecoder(t, f)
		} else {
			fDec, err = newUnionFieldDecoder(t, f)
		}
		if err != nil {
			return nil, err
		}
		variable = append(variable, fDec)
	}

	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		err := d.Struct(func(mask uint64) error {
			if mask != fs.Mask {
				return statusErr(StatusLibRMVersionMismatch, "field mask 0x%x, want 0x%x", mask, fs.Mask)
			}
			for _, frag := range static {
				if err := frag(ctx, d, v); err != nil {
					return err
				}
			}
			if err := d.Pad(8); err != nil {
				return err
			}
			for _, frag := range variable {
				if err := frag(ctx, d, v); err != nil {
					return err
				}
			}
			return nil
		})
		return withField(err, t, "")
	}
	return fn, nil
}

// Note, the returned fragment decoder expects to be given the entire
// struct, not just the one field being decoded.
func newStructFieldDecoder(st reflect.Type, f *structField) (fragments.DecoderFunc, error) {
	fDec, err := decoderFor(f.Type)
	if err != nil {
		return nil, err
	}
	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		fv := f.Get(v)
		if err := fDec(ctx, d, fv); err != nil {
			return withField(err, st, f.Name)
		}
		if err := f.CheckRange(fv); err != nil {
			return withField(err, st, f.Name)
		}
		return nil
	}
	return fn, nil
}

// wireSize returns the encoded size of one element of a scalar
// buffer.
func wireSize(t reflect.Type) uint64 {
	if t.Implements(enumType) {
		return 4
	}
	return uint64(t.Size())
}

// Note, the returned fragment decoder expects to be given the entire
// struct, not just the one field being decoded.
func newBufferFieldDecoder(st reflect.Type, f *structField) (fragments.DecoderFunc, error) {
	et := f.Type.Elem()
	elemDec, err := decoderFor(et)
	if err != nil {
		return nil, err
	}
	isStruct := et.Kind() == reflect.Struct
	rawBytes := et == reflect.TypeFor[uint8]()
	esize := wireSize(et)

	down := func(ctx context.Context, d *fragments.Decoder, fv reflect.Value, count uint64) error {
		if isStruct {
			if count == 0 {
				return statusErr(StatusBufferTooSmall, "present struct array has no elements")
			}
			// Every struct body carries at least a field mask.
			if count > uint64(d.Remaining())/8 {
				return statusErr(StatusBufferTooSmall, "%d structs cannot fit in %d remaining bytes", count, d.Remaining())
			}
			ret := reflect.MakeSlice(f.Type, int(count), int(count))
			for i := range int(count) {
				if err := elemDec(ctx, d, ret.Index(i)); err != nil {
					return err
				}
			}
			fv.Set(ret)
			return nil
		}

		hi, n := bits.Mul64(count, esize)
		if hi != 0 || n > uint64(d.Remaining()) {
			return statusErr(StatusBufferTooSmall, "%d elements of %d bytes overrun %d remaining bytes", count, esize, d.Remaining())
		}
		if rawBytes {
			bs, err := d.Read(int(n))
			if err != nil {
				return err
			}
			fv.Set(reflect.ValueOf(bs).Convert(f.Type))
			return nil
		}
		ret := reflect.MakeSlice(f.Type, int(count), int(count))
		for i := range int(count) {
			if err := elemDec(ctx, d, ret.Index(i)); err != nil {
				return err
			}
		}
		fv.Set(ret)
		return nil
	}

	up := func(ctx context.Context, d *fragments.Decoder, fv reflect.Value, count uint64) error {
		if fv.IsNil() {
			return statusErr(StatusInvalidPointer, "no destination buffer for %d incoming elements", count)
		}
		if uint64(fv.Len()) < count {
			return statusErr(StatusBufferTooSmall, "destination buffer has room for %d elements, %d incoming", fv.Len(), count)
		}
		if rawBytes {
			bs, err := d.Read(int(count))
			if err != nil {
				return err
			}
			copy(fv.Bytes(), bs)
		} else {
			for i := range int(count) {
				if err := elemDec(ctx, d, fv.Index(i)); err != nil {
					return err
				}
			}
		}
		fv.Set(fv.Slice(0, int(count)))
		return nil
	}

	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		fv := f.Get(v)
		count := f.ElemCount(v)
		dir := ContextDirection(ctx)
		present, err := d.Variable(func() error {
			if dir == Up {
				return up(ctx, d, fv, count)
			}
			return down(ctx, d, fv, count)
		})
		if err != nil {
			return withField(err, st, f.Name)
		}
		if !present && dir == Down {
			fv.SetZero()
		}
		return nil
	}
	return fn, nil
}

// Note, the returned fragment decoder expects to be given the entire
// struct, not just the one field being decoded.
func newUnionFieldDecoder(st reflect.Type, f *structField) (fragments.DecoderFunc, error) {
	fn := func(ctx context.Context, d *fragments.Decoder, v reflect.Value) error {
		vt, tag, err := unionVariant(f, v)
		if err != nil {
			return withField(&Error{Status: StatusInvalidArgument, Reason: err}, st, f.Name)
		}
		if !vt.Implements(f.Type) {
			return withField(typeErr(vt, "union variant does not implement %s", f.Type), st, f.Name)
		}
		return withField(decodeUnion(ctx, d, tag, vt, f.Get(v)), st, f.Name)
	}
	return fn, nil
}

// decodeUnion reads a union whose active variant is vt, as selected
// by tag, and stores it in fv.
func decodeUnion(ctx context.Context, d *fragments.Decoder, tag UnionTag, vt reflect.Type, fv reflect.Value) error {
	// In the Up direction, decode into the receiver's existing
	// variant so that its presized buffers are filled. A variant held
	// by pointer is decoded in place and the pointer kept.
	val := reflect.New(vt).Elem()
	inPlace := false
	if ContextDirection(ctx) == Up && !fv.IsNil() {
		switch cur := fv.Elem(); {
		case cur.Type() == vt:
			val.Set(cur)
		case cur.Kind() == reflect.Pointer && cur.Type().Elem() == vt && !cur.IsNil():
			val = cur.Elem()
			inPlace = true
		}
	}

	want := fieldMask(tag.NumVariants())
	err := d.Struct(func(mask uint64) error {
		if mask != want {
			return statusErr(StatusLibRMVersionMismatch, "union mask 0x%x, want 0x%x", mask, want)
		}
		return d.Value(ctx, val.Addr().Interface())
	})
	if err != nil {
		return err
	}
	if err := d.Pad(8); err != nil {
		return err
	}
	if !inPlace {
		fv.Set(val)
	}
	return nil
}
