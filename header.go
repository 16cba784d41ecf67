package finn

import (
	"fmt"

	"github.com/danderson/finn/fragments"
)

// Version is the FINN serialization version written into every
// header. Payloads carrying any other version are rejected with
// [StatusLibRMVersionMismatch].
const Version = 1

// HeaderSize is the size in bytes of the [Header] that starts every
// serialized payload.
const HeaderSize = 32

// Header is the fixed prefix of every serialized FINN payload.
//
// The header is four 64-bit words in the host's byte order. It
// carries enough information to route a payload to its parameter
// block type and to bound the rest of the payload.
type Header struct {
	// Version is the serialization version. It must equal [Version].
	Version uint64
	// PayloadSize is the size of the whole payload, including the
	// header. It is zero while serialization is in progress, and is
	// only set once the payload is complete.
	PayloadSize uint64
	// Interface is the FINN interface ID of the parameter block.
	Interface uint64
	// Message is the FINN message ID of the parameter block, within
	// the interface.
	Message uint64
}

func (h *Header) encode(e *fragments.Encoder) {
	e.Uint64(h.Version)
	e.Uint64(h.PayloadSize)
	e.Uint64(h.Interface)
	e.Uint64(h.Message)
}

func (h *Header) decode(d *fragments.Decoder) (err error) {
	if h.Version, err = d.Uint64(); err != nil {
		return err
	}
	if h.PayloadSize, err = d.Uint64(); err != nil {
		return err
	}
	if h.Interface, err = d.Uint64(); err != nil {
		return err
	}
	if h.Message, err = d.Uint64(); err != nil {
		return err
	}
	return nil
}

// ParseHeader parses the header at the start of bs.
//
// ParseHeader only fails if bs is shorter than [HeaderSize]. Use
// [Header.Valid] to check the parsed values.
func ParseHeader(bs []byte) (Header, error) {
	var h Header
	d := fragments.Decoder{
		Order: fragments.NativeEndian,
		In:    bs,
	}
	if err := h.decode(&d); err != nil {
		return Header{}, statusErr(StatusBufferTooSmall, "payload of %d bytes is shorter than a %d byte header", len(bs), HeaderSize)
	}
	return h, nil
}

// AppendHeader appends the encoding of h to bs.
func AppendHeader(bs []byte, h Header) []byte {
	e := fragments.Encoder{
		Order: fragments.NativeEndian,
		Out:   bs,
	}
	h.encode(&e)
	return e.Out
}

// Valid checks that the header describes a complete payload of a
// supported version, which fits within avail bytes.
//
// The checks are made in the same order as deserialization makes
// them, so the returned status is the one deserialization would
// report.
func (h *Header) Valid(avail int) error {
	if h.Version != Version {
		return statusErr(StatusLibRMVersionMismatch, "payload version %d, want %d", h.Version, Version)
	}
	if h.PayloadSize < HeaderSize {
		return statusErr(StatusBufferTooSmall, "payload size %d is smaller than the header", h.PayloadSize)
	}
	if h.PayloadSize > uint64(avail) {
		return statusErr(StatusBufferTooSmall, "payload size %d exceeds %d available bytes", h.PayloadSize, avail)
	}
	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("finn header v%d: %d bytes, interface 0x%06x message 0x%02x", h.Version, h.PayloadSize, h.Interface, h.Message)
}
