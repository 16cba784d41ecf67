package finn

import (
	"context"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/danderson/finn/fragments"
)

// Simple is a struct with only static fields.
type Simple struct {
	A int16
	B bool
	C uint8
}

// Nested is a struct with a struct field.
type Nested struct {
	A byte
	B Simple
}

// Bounded has a scalar with an upper bound, and a buffer sized by it.
type Bounded struct {
	N   uint32   `finn:"max=4"`
	Buf []uint16 `finn:"count=N"`
}

// StructBuffer has a variable length array of structs.
type StructBuffer struct {
	N    uint8
	Elts []Simple `finn:"count=N"`
}

// Fixed has a buffer with a constant element count.
type Fixed struct {
	One []uint64 `finn:"count=1"`
}

// Tree is a self-referential struct that can't be represented in the
// FINN wire format.
type Tree struct {
	Left  *Tree
	Right *Tree
}

// CountAfter names a count field declared after the slice.
type CountAfter struct {
	Buf []byte `finn:"count=N"`
	N   uint32
}

// SignedCount uses a signed count field.
type SignedCount struct {
	N   int32
	Buf []byte `finn:"count=N"`
}

// UntaggedSlice is a slice with no count.
type UntaggedSlice struct {
	Buf []byte
}

// BadTag has an unknown struct tag option.
type BadTag struct {
	A uint32 `finn:"min=2"`
}

// MaxOnSlice puts a bound on a non-scalar.
type MaxOnSlice struct {
	N   uint32
	Buf []byte `finn:"max=2,count=N"`
}

// PortableInt uses a non-portable int field.
type PortableInt struct {
	A int
}

// UnionNoTag is an interface field without a union tag.
type UnionNoTag struct {
	Data I2CTransactionData
}

// UnionBadTag is a union discriminated by a field that isn't a
// UnionTag.
type UnionBadTag struct {
	Kind uint32
	Data I2CTransactionData `finn:"union=Kind"`
}

// encodeLE encodes v, which must be a pointer to a struct, in
// little-endian byte order.
func encodeLE(v any, dir Direction) ([]byte, error) {
	e := fragments.Encoder{Order: fragments.LittleEndian}
	if err := marshal(context.Background(), &e, reflect.ValueOf(v), dir); err != nil {
		return nil, err
	}
	return e.Out, nil
}

// decodeLE decodes bs into v, which must be a pointer to a struct, in
// little-endian byte order. It returns the number of bytes consumed.
func decodeLE(bs []byte, v any, dir Direction) (int, error) {
	d := fragments.Decoder{Order: fragments.LittleEndian, In: bs}
	if err := unmarshal(context.Background(), &d, reflect.ValueOf(v), dir); err != nil {
		return d.Offset(), err
	}
	return d.Offset(), nil
}

// le is a little-endian byte string builder for expected encodings.
type le []byte

func (b le) u8(vs ...uint8) le {
	return append(b, vs...)
}

func (b le) u16(v uint16) le {
	return binary.LittleEndian.AppendUint16(b, v)
}

func (b le) u32(v uint32) le {
	return binary.LittleEndian.AppendUint32(b, v)
}

func (b le) u64(v uint64) le {
	return binary.LittleEndian.AppendUint64(b, v)
}

func (b le) pad() le {
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

// native is a native byte order builder for expected payloads.
type native []byte

func (b native) u8(vs ...uint8) native {
	return append(b, vs...)
}

func (b native) u32(v uint32) native {
	return binary.NativeEndian.AppendUint32(b, v)
}

func (b native) u64(v uint64) native {
	return binary.NativeEndian.AppendUint64(b, v)
}

func (b native) pad() native {
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

func wantStatus(t *testing.T, err error, want Status) {
	t.Helper()
	if err == nil {
		t.Fatalf("got no error, want %s", want)
	}
	if got := StatusOf(err); got != want {
		t.Fatalf("got status %s, want %s (err: %v)", got, want, err)
	}
	if !errors.Is(err, want) {
		t.Fatalf("errors.Is(%v, %s) = false, want true", err, want)
	}
}

// mustSerialize serializes p for msg in the given direction, into a
// buffer of exactly the right size.
func mustSerialize(t *testing.T, cmd uint32, p any, dir Direction) []byte {
	t.Helper()
	iface, msg := SplitCommand(cmd)
	size := GetSerializedSize(uint64(iface), uint64(msg), p)
	if size == 0 {
		t.Fatalf("GetSerializedSize(%T) = 0", p)
	}
	out := make([]byte, size)
	n, err := Serialize(uint64(iface), uint64(msg), p, out, dir)
	if err != nil {
		t.Fatalf("Serialize(%T) failed: %v", p, err)
	}
	if n != size {
		t.Fatalf("Serialize(%T) wrote %d bytes, GetSerializedSize said %d", p, n, size)
	}
	return out
}

func serialize(cmd uint32, p any, dst []byte, dir Direction) (int, error) {
	iface, msg := SplitCommand(cmd)
	return Serialize(uint64(iface), uint64(msg), p, dst, dir)
}

// newOf returns a pointer to a new zero value of the type v points
// to.
func newOf(v any) any {
	return reflect.New(reflect.TypeOf(v).Elem()).Interface()
}
