package fragments

import (
	"context"
	"errors"
	"reflect"
)

// An EncoderFunc writes a value to the given encoder.
type EncoderFunc func(ctx context.Context, enc *Encoder, val reflect.Value) error

// An Encoder provides utilities to write a FINN wire format payload
// to a byte slice.
//
// Scalars are packed with no implicit alignment. Padding is only
// inserted by explicit calls to [Encoder.Pad], and by
// [Encoder.Struct] which starts every struct body on an 8-byte
// boundary.
type Encoder struct {
	// Order is the byte order to use when encoding multi-byte values.
	Order ByteOrder
	// Mapper provides [EncoderFunc]s for types given to
	// [Encoder.Value]. If mapper is nil, the Encoder functions
	// normally except that [Encoder.Value] always returns an error.
	Mapper func(reflect.Type) (EncoderFunc, error)
	// Out is the encoded output.
	Out []byte
	// SizeOnly, if set, makes the Encoder count the bytes it would
	// write without storing them. Out is left untouched.
	SizeOnly bool

	// n is the output length in SizeOnly mode.
	n int
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	if e.SizeOnly {
		return e.n
	}
	return len(e.Out)
}

// Pad inserts zero bytes as needed to make the output a multiple of
// align bytes. If the output is already correctly aligned, no
// padding is inserted.
func (e *Encoder) Pad(align int) {
	extra := e.Len() % align
	if extra == 0 {
		return
	}
	var pad [8]byte
	e.Write(pad[:align-extra])
}

// Write writes bs as-is to the output. It is the caller's
// responsibility to ensure correct padding and encoding.
func (e *Encoder) Write(bs []byte) {
	if e.SizeOnly {
		e.n += len(bs)
		return
	}
	e.Out = append(e.Out, bs...)
}

// Uint8 writes a uint8.
func (e *Encoder) Uint8(u8 uint8) {
	if e.SizeOnly {
		e.n++
		return
	}
	e.Out = append(e.Out, u8)
}

// Uint16 writes a uint16.
func (e *Encoder) Uint16(u16 uint16) {
	if e.SizeOnly {
		e.n += 2
		return
	}
	e.Out = e.Order.AppendUint16(e.Out, u16)
}

// Uint32 writes a uint32.
func (e *Encoder) Uint32(u32 uint32) {
	if e.SizeOnly {
		e.n += 4
		return
	}
	e.Out = e.Order.AppendUint32(e.Out, u32)
}

// Uint64 writes a uint64.
func (e *Encoder) Uint64(u64 uint64) {
	if e.SizeOnly {
		e.n += 8
		return
	}
	e.Out = e.Order.AppendUint64(e.Out, u64)
}

// Presence writes the one-byte flag that precedes every variable
// length field.
func (e *Encoder) Presence(present bool) {
	if present {
		e.Uint8(1)
	} else {
		e.Uint8(0)
	}
}

// Value writes v to the output, using the [EncoderFunc] provided by
// [Encoder.Mapper].
func (e *Encoder) Value(ctx context.Context, v any) error {
	if e.Mapper == nil {
		return errors.New("Mapper not provided to Encoder")
	}
	fn, err := e.Mapper(reflect.TypeOf(v))
	if err != nil {
		return err
	}
	return fn(ctx, e, reflect.ValueOf(v))
}

// Struct writes a struct body to the output: padding to an 8-byte
// boundary, followed by the struct's field mask.
//
// Struct fields must be added within the provided fields function.
func (e *Encoder) Struct(mask uint64, fields func() error) error {
	e.Pad(8)
	e.Uint64(mask)
	return fields()
}

// Variable writes a variable length field: a presence byte, then
// the field's contents if present, then padding to an 8-byte
// boundary.
//
// contents is only called if present is true.
func (e *Encoder) Variable(present bool, contents func() error) error {
	e.Presence(present)
	if present {
		if err := contents(); err != nil {
			return err
		}
	}
	e.Pad(8)
	return nil
}
