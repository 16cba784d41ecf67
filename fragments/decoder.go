package fragments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// A DecoderFunc reads a value into val.
type DecoderFunc func(ctx context.Context, dec *Decoder, val reflect.Value) error

// ErrBadPresence is returned by [Decoder.Presence] when the presence
// byte is neither 0 nor 1.
var ErrBadPresence = errors.New("invalid presence byte")

// A Decoder provides utilities to read a FINN wire format payload
// from a byte slice.
//
// Reads never go past the end of In, and fail with
// [io.ErrUnexpectedEOF] instead. Like [Encoder], scalars are read
// packed and padding is only consumed by explicit calls to
// [Decoder.Pad] and by [Decoder.Struct].
type Decoder struct {
	// Order is the byte order to use when reading multi-byte values.
	Order ByteOrder
	// Mapper provides [DecoderFunc]s for types given to
	// [Decoder.Value]. If mapper is nil, the Decoder functions
	// normally except that [Decoder.Value] always returns an error.
	Mapper func(reflect.Type) (DecoderFunc, error)
	// In is the input to read. Alignment is computed relative to the
	// start of In.
	In []byte

	// offset is the number of bytes consumed off the front of In so
	// far.
	offset int
}

// Offset returns the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.offset
}

// Remaining returns the number of unread bytes in In.
func (d *Decoder) Remaining() int {
	return len(d.In) - d.offset
}

// Seek moves the read cursor to offset, which must be within In.
func (d *Decoder) Seek(offset int) error {
	if offset < 0 || offset > len(d.In) {
		return fmt.Errorf("seek to %d outside of %d byte input: %w", offset, len(d.In), io.ErrUnexpectedEOF)
	}
	d.offset = offset
	return nil
}

// Pad consumes padding bytes as needed to make the next read happen
// at a multiple of align bytes. If the decoder is already correctly
// aligned, no bytes are consumed.
func (d *Decoder) Pad(align int) error {
	extra := d.offset % align
	if extra == 0 {
		return nil
	}
	_, err := d.Read(align - extra)
	return err
}

// Read reads n bytes, with no framing or padding.
//
// The returned slice aliases In, and has its capacity clipped to n
// so that appending to it cannot clobber the rest of the input.
func (d *Decoder) Read(n int) ([]byte, error) {
	if n < 0 || n > d.Remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	ret := d.In[d.offset : d.offset+n : d.offset+n]
	d.offset += n
	return ret, nil
}

// Uint8 reads a uint8.
func (d *Decoder) Uint8() (uint8, error) {
	bs, err := d.Read(1)
	if err != nil {
		return 0, err
	}
	return bs[0], nil
}

// Uint16 reads a uint16.
func (d *Decoder) Uint16() (uint16, error) {
	bs, err := d.Read(2)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint16(bs), nil
}

// Uint32 reads a uint32.
func (d *Decoder) Uint32() (uint32, error) {
	bs, err := d.Read(4)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint32(bs), nil
}

// Uint64 reads a uint64.
func (d *Decoder) Uint64() (uint64, error) {
	bs, err := d.Read(8)
	if err != nil {
		return 0, err
	}
	return d.Order.Uint64(bs), nil
}

// Presence reads the one-byte flag that precedes every variable
// length field.
func (d *Decoder) Presence() (bool, error) {
	v, err := d.Uint8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w 0x%02x", ErrBadPresence, v)
	}
}

// Value reads a value into v, using the [DecoderFunc] provided by
// [Decoder.Mapper]. v must be a non-nil pointer.
func (d *Decoder) Value(ctx context.Context, v any) error {
	if d.Mapper == nil {
		return errors.New("Mapper not provided to Decoder")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer {
		return fmt.Errorf("outval of Decoder.Value must be a pointer, got %s", rv.Type())
	}
	if rv.IsNil() {
		return fmt.Errorf("outval of Decoder.Value must not be a nil pointer")
	}
	fn, err := d.Mapper(rv.Type().Elem())
	if err != nil {
		return err
	}
	return fn(ctx, d, rv.Elem())
}

// Struct reads a struct body: padding to an 8-byte boundary,
// followed by the struct's field mask, which is returned to the
// fields function for checking.
//
// Struct fields must be read within the provided fields function.
func (d *Decoder) Struct(fields func(mask uint64) error) error {
	if err := d.Pad(8); err != nil {
		return err
	}
	mask, err := d.Uint64()
	if err != nil {
		return err
	}
	return fields(mask)
}

// Variable reads a variable length field: a presence byte, then the
// field's contents if present, then padding to an 8-byte boundary.
//
// contents is only called if the field is present.
func (d *Decoder) Variable(contents func() error) (present bool, err error) {
	present, err = d.Presence()
	if err != nil {
		return false, err
	}
	if present {
		if err := contents(); err != nil {
			return true, err
		}
	}
	if err := d.Pad(8); err != nil {
		return present, err
	}
	return present, nil
}
