package finn

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/danderson/finn/fragments"
)

// Serialize writes the FINN encoding of src, the parameter block for
// interface iface and message msg, into dst. It returns the number
// of bytes written, which is also the payload size recorded in the
// header.
//
// src must be a non-nil pointer to the parameter block type
// registered for (iface, msg), and dst must not be empty, or
// Serialize fails with [StatusInvalidArgument]. Unknown interfaces
// and messages fail with [StatusNotSupported].
//
// Serialize validates the entire parameter block and computes its
// encoded size before writing anything. If dst is too small for the
// payload, Serialize fails with [StatusBufferTooSmall]. In that
// case, if dst has room for a [Header], a header with a zero payload
// size is written to dst to mark the payload incomplete. On any
// other failure, dst is left untouched.
//
// When dir is [Up], Serialize releases the slices of src once their
// contents are in dst, by setting the slice fields to nil. This
// hands ownership of the data to the payload.
func Serialize(iface, msg uint64, src any, dst []byte, dir Direction) (n int, err error) {
	defer func() {
		if err != nil {
			logFailure("serialize", iface, msg, dir, err)
		}
	}()

	v, err := paramsPointer(src)
	if err != nil {
		return 0, err
	}
	if len(dst) == 0 {
		return 0, statusErr(StatusInvalidArgument, "empty destination buffer")
	}

	m, err := Lookup(iface, msg)
	if err != nil {
		return 0, err
	}
	if v.Type() != m.Type {
		return 0, &Error{
			Status: StatusInvalidArgument,
			Type:   m.Type.Name(),
			Reason: typeErr(v.Type(), "wrong parameter block type for %s", m.Name),
		}
	}

	ctx := context.Background()
	h := Header{
		Version:   Version,
		Interface: iface,
		Message:   msg,
	}

	sizer := fragments.Encoder{
		Order:    fragments.NativeEndian,
		SizeOnly: true,
	}
	h.encode(&sizer)
	if err := marshal(ctx, &sizer, v, dir); err != nil {
		return 0, err
	}
	size := sizer.Len()
	if size > len(dst) {
		if len(dst) >= HeaderSize {
			AppendHeader(dst[:0], h)
		}
		return 0, &Error{
			Status: StatusBufferTooSmall,
			Type:   m.Type.Name(),
			Reason: fmt.Errorf("payload needs %d bytes, destination has %d", size, len(dst)),
		}
	}

	out := dst[:size]
	clear(out)
	e := fragments.Encoder{
		Order: fragments.NativeEndian,
		Out:   out[:0],
	}
	h.encode(&e)
	if err := marshal(ctx, &e, v, dir); err != nil {
		return 0, err
	}
	if e.Len() != size {
		return 0, statusErr(StatusInvalidArgument, "encoded %d bytes, sized %d bytes", e.Len(), size)
	}
	fragments.NativeEndian.PutUint64(out[8:], uint64(size))
	return size, nil
}

// SerializeDown is [Serialize] in the [Down] direction.
func SerializeDown(iface, msg uint64, src any, dst []byte) (int, error) {
	return Serialize(iface, msg, src, dst, Down)
}

// SerializeUp is [Serialize] in the [Up] direction.
func SerializeUp(iface, msg uint64, src any, dst []byte) (int, error) {
	return Serialize(iface, msg, src, dst, Up)
}

// Deserialize reads the FINN payload at the start of src into dst,
// and returns the number of bytes consumed.
//
// The parameter block type is selected by the interface and message
// IDs in the payload's header. dst must be a non-nil pointer to that
// type.
//
// Deserialize checks, in order: that dst is a non-nil pointer and
// src is not empty ([StatusInvalidArgument]), that the header
// carries the current [Version] ([StatusLibRMVersionMismatch]), that
// the payload fits within src ([StatusBufferTooSmall]), that the
// message is known ([StatusNotSupported]), and that dst has the
// right type ([StatusBufferTooSmall]). Then each struct's field
// mask, bounds and contents are checked as they are read. Finally,
// the number of bytes consumed must equal the header's payload size,
// or Deserialize fails with [StatusInvalidArgument].
//
// In the [Down] direction, []byte fields of dst alias src, and src
// must outlive them. See [Direction] for how the [Up] direction
// differs.
func Deserialize(src []byte, dst any, dir Direction) (n int, err error) {
	var h Header
	defer func() {
		if err != nil {
			logFailure("deserialize", h.Interface, h.Message, dir, err)
		}
	}()

	v, err := paramsPointer(dst)
	if err != nil {
		return 0, err
	}
	if len(src) == 0 {
		return 0, statusErr(StatusInvalidArgument, "empty source buffer")
	}

	if h, err = ParseHeader(src); err != nil {
		return 0, err
	}
	if err := h.Valid(len(src)); err != nil {
		return 0, err
	}

	m, err := Lookup(h.Interface, h.Message)
	if err != nil {
		return 0, err
	}
	if v.Type() != m.Type {
		return 0, &Error{
			Status: StatusBufferTooSmall,
			Type:   m.Type.Name(),
			Reason: typeErr(v.Type(), "wrong parameter block type for %s", m.Name),
		}
	}

	d := fragments.Decoder{
		Order: fragments.NativeEndian,
		In:    src,
	}
	if err := d.Seek(HeaderSize); err != nil {
		return 0, statusErr(StatusBufferTooSmall, "%w", err)
	}
	if err := unmarshal(context.Background(), &d, v, dir); err != nil {
		return d.Offset(), withField(err, m.Type, "")
	}
	if uint64(d.Offset()) != h.PayloadSize {
		return d.Offset(), &Error{
			Status: StatusInvalidArgument,
			Type:   m.Type.Name(),
			Reason: fmt.Errorf("consumed %d bytes, header declares %d", d.Offset(), h.PayloadSize),
		}
	}
	return d.Offset(), nil
}

// DeserializeDown is [Deserialize] in the [Down] direction.
func DeserializeDown(src []byte, dst any) (int, error) {
	return Deserialize(src, dst, Down)
}

// DeserializeUp is [Deserialize] in the [Up] direction.
func DeserializeUp(src []byte, dst any) (int, error) {
	return Deserialize(src, dst, Up)
}

// GetSerializedSize returns the number of bytes [Serialize] would
// write for src, or 0 if src cannot be serialized as the parameter
// block for (iface, msg).
func GetSerializedSize(iface, msg uint64, src any) int {
	v, err := paramsPointer(src)
	if err != nil {
		return 0
	}
	m, err := Lookup(iface, msg)
	if err != nil || v.Type() != m.Type {
		return 0
	}
	sizer := fragments.Encoder{
		Order:    fragments.NativeEndian,
		SizeOnly: true,
	}
	h := Header{Version: Version, Interface: iface, Message: msg}
	h.encode(&sizer)
	// Sizing never releases buffers, so the direction is irrelevant.
	if err := marshal(context.Background(), &sizer, v, Down); err != nil {
		return 0
	}
	return sizer.Len()
}

// GetUnserializedSize returns the in-memory size of the parameter
// block for (iface, msg), or 0 if the message is unknown.
func GetUnserializedSize(iface, msg uint64) int {
	m, err := Lookup(iface, msg)
	if err != nil {
		return 0
	}
	return int(m.Type.Size())
}

// paramsPointer returns the struct pointed to by p.
func paramsPointer(p any) (reflect.Value, error) {
	if p == nil {
		return reflect.Value{}, statusErr(StatusInvalidArgument, "nil parameter block")
	}
	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, &Error{
			Status: StatusInvalidArgument,
			Reason: typeErr(v.Type(), "parameter block must be a non-nil pointer"),
		}
	}
	return v.Elem(), nil
}

func logFailure(op string, iface, msg uint64, dir Direction, err error) {
	fields := []zap.Field{
		zap.Stringer("status", StatusOf(err)),
		zap.Uint64("interface", iface),
		zap.Uint64("message", msg),
		zap.Stringer("direction", dir),
		zap.Error(err),
	}
	var fe *Error
	if errors.As(err, &fe) {
		fields = append(fields, zap.String("type", fe.Type), zap.String("field", fe.Field))
	}
	zap.L().Debug("finn "+op+" failed", fields...)
}
