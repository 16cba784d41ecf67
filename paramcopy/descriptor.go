package paramcopy

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"github.com/danderson/finn"
	"go.uber.org/zap"
)

// P64 is a pointer into the caller's address space, as stored in a
// legacy parameter block.
type P64 uint64

func (p P64) String() string { return fmt.Sprintf("0x%x", uint64(p)) }

// MaxParamsSize is the largest buffer a Descriptor copies, unless it
// sets DisableMaxSizeCheck.
const MaxParamsSize = 1 << 20

// Flags adjust how a Descriptor moves its buffer.
type Flags uint32

const (
	// SkipCopyIn allocates a kernel buffer without reading the
	// caller's buffer. The kernel buffer starts zeroed.
	SkipCopyIn Flags = 1 << iota
	// SkipCopyOut discards the kernel buffer on release instead of
	// writing it back to the caller.
	SkipCopyOut
	// ZeroBuffer zeroes the kernel buffer before copying in.
	ZeroBuffer
	// DisableMaxSizeCheck lifts the MaxParamsSize limit.
	DisableMaxSizeCheck
)

func (f Flags) String() string {
	if f == 0 {
		return "0"
	}
	var ret []byte
	add := func(flag Flags, name string) {
		if f&flag == 0 {
			return
		}
		if len(ret) > 0 {
			ret = append(ret, '|')
		}
		ret = append(ret, name...)
	}
	add(SkipCopyIn, "SkipCopyIn")
	add(SkipCopyOut, "SkipCopyOut")
	add(ZeroBuffer, "ZeroBuffer")
	add(DisableMaxSizeCheck, "DisableMaxSizeCheck")
	if rest := f &^ (SkipCopyIn | SkipCopyOut | ZeroBuffer | DisableMaxSizeCheck); rest != 0 {
		if len(ret) > 0 {
			ret = append(ret, '|')
		}
		ret = fmt.Appendf(ret, "0x%x", uint32(rest))
	}
	return string(ret)
}

// Memory is the caller's address space that embedded pointers refer
// to.
type Memory interface {
	// CopyIn reads len(dst) bytes starting at addr.
	CopyIn(ctx context.Context, addr P64, dst []byte) error
	// CopyOut writes src starting at addr.
	CopyOut(ctx context.Context, addr P64, src []byte) error
}

// A Descriptor describes one embedded pointer of a parameter block,
// and the kernel side copy of the buffer it points to.
type Descriptor struct {
	// Field is the parameter block field holding the pointer.
	Field *P64
	// User is the caller's pointer, recorded by Acquire.
	User P64
	// Count and ElemSize give the buffer's size. Count may be
	// adjusted between Acquire and Release to shorten the copy out.
	Count    uint32
	ElemSize uint32
	Flags    Flags

	// Kernel is the kernel side buffer, valid between Acquire and
	// Release. It is nil if the caller's pointer was null.
	Kernel []byte
}

func newDescriptor(field *P64, count, elemSize uint32, flags Flags) *Descriptor {
	return &Descriptor{
		Field:    field,
		Count:    count,
		ElemSize: elemSize,
		Flags:    flags,
	}
}

// Size returns the size of the described buffer in bytes.
func (d *Descriptor) Size() (int, error) {
	hi, lo := bits.Mul64(uint64(d.Count), uint64(d.ElemSize))
	if hi != 0 || lo > math.MaxInt {
		return 0, &finn.Error{
			Status: finn.StatusInvalidArgument,
			Reason: fmt.Errorf("buffer size %d*%d overflows", d.Count, d.ElemSize),
		}
	}
	if d.Flags&DisableMaxSizeCheck == 0 && lo > MaxParamsSize {
		return 0, &finn.Error{
			Status: finn.StatusInvalidArgument,
			Reason: fmt.Errorf("buffer size %d exceeds maximum %d", lo, MaxParamsSize),
		}
	}
	return int(lo), nil
}

// Acquire copies the caller's buffer into a new kernel buffer.
//
// A null pointer or an empty buffer acquires nothing, and leaves
// Kernel nil.
func (d *Descriptor) Acquire(ctx context.Context, mem Memory) error {
	d.User = *d.Field
	d.Kernel = nil
	size, err := d.Size()
	if err != nil {
		return err
	}
	if d.User == 0 || size == 0 {
		return nil
	}

	// Fresh allocations are zeroed, which covers ZeroBuffer and
	// SkipCopyIn.
	buf := make([]byte, size)
	if d.Flags&SkipCopyIn == 0 {
		if err := mem.CopyIn(ctx, d.User, buf); err != nil {
			return &finn.Error{
				Status: finn.StatusInvalidPointer,
				Reason: fmt.Errorf("copying in %d bytes from %v: %w", size, d.User, err),
			}
		}
	}
	d.Kernel = buf
	return nil
}

// Release copies the kernel buffer back to the caller, unless
// SkipCopyOut is set, and restores the caller's pointer in the
// parameter block.
func (d *Descriptor) Release(ctx context.Context, mem Memory) error {
	defer func() {
		*d.Field = d.User
		d.Kernel = nil
	}()
	if d.Kernel == nil || d.Flags&SkipCopyOut != 0 {
		return nil
	}

	out := d.Kernel
	// Count may have shrunk while the call ran, never grown.
	if size, err := d.Size(); err == nil && size < len(out) {
		out = out[:size]
	}
	if err := mem.CopyOut(ctx, d.User, out); err != nil {
		zap.L().Warn("paramcopy: copy out failed",
			zap.Stringer("addr", d.User),
			zap.Int("size", len(out)),
			zap.Error(err))
		return &finn.Error{
			Status: finn.StatusInvalidPointer,
			Reason: fmt.Errorf("copying out %d bytes to %v: %w", len(out), d.User, err),
		}
	}
	return nil
}
