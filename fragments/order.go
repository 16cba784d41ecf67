package fragments

import (
	"encoding/binary"

	"golang.org/x/sys/cpu"
)

// ByteOrder is the byte order used for multi-byte scalars.
//
// FINN payloads never leave the host that produced them, and are
// written in the host's native byte order. The fixed orders exist
// for tests and for inspecting traces captured on other machines.
type ByteOrder interface {
	byteOrder
	bigEndian() bool
}

type byteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

type wrapStd struct {
	byteOrder
}

func (w wrapStd) bigEndian() bool {
	switch w.byteOrder {
	case binary.BigEndian:
		return true
	case binary.LittleEndian:
		return false
	case binary.NativeEndian:
		return cpu.IsBigEndian
	default:
		panic("unknown ByteOrder, how did you manage to make one of those?")
	}
}

var (
	BigEndian    = wrapStd{binary.BigEndian}
	LittleEndian = wrapStd{binary.LittleEndian}
	NativeEndian = wrapStd{binary.NativeEndian}
)

// IsBigEndian reports whether o writes the most significant byte
// first.
func IsBigEndian(o ByteOrder) bool {
	return o.bigEndian()
}

// OrderName returns a human readable name for o's effective byte
// order.
func OrderName(o ByteOrder) string {
	if o.bigEndian() {
		return "big-endian"
	}
	return "little-endian"
}
