package paramcopy

import (
	"context"
	"fmt"

	"github.com/creachadair/mds/mapset"
	"github.com/danderson/finn"
	"go.uber.org/zap"
)

// A Call is one legacy control call whose parameter block may carry
// embedded pointers.
type Call struct {
	// Cmd is the control command number.
	Cmd uint32
	// Params points to the call's legacy parameter block, for
	// example *Nv0080GpuGetClasslistParams.
	Params any
	// KernelOrigin reports that the call was issued from kernel
	// space, and its pointers need no copying.
	KernelOrigin bool
	// Serialized reports that the parameter block travels in the
	// FINN wire format, which carries buffers inline.
	Serialized bool

	descs []*Descriptor
}

// Buffer returns the kernel side copy of the call's i-th embedded
// buffer, in the order the parameter block declares them. It returns
// nil if the buffer was not acquired.
func (c *Call) Buffer(i int) []byte {
	if i < 0 || i >= len(c.descs) {
		return nil
	}
	return c.descs[i].Kernel
}

// Descriptors returns the call's acquired descriptors.
func (c *Call) Descriptors() []*Descriptor { return c.descs }

func (c *Call) skip() bool { return c.KernelOrigin || c.Serialized }

// withEmbeddedPointers is the set of commands whose legacy parameter
// blocks carry embedded pointers.
var withEmbeddedPointers = mapset.New[uint32](
	finn.CmdNv0000NvdGetDump,
	finn.CmdNv0080DmaUpdatePde2,
	finn.CmdNv0080FbGetCaps,
	finn.CmdNv0080FifoGetCaps,
	finn.CmdNv0080FifoStartSelectedChannels,
	finn.CmdNv0080FifoGetChannellist,
	finn.CmdNv0080GpuGetClasslist,
	finn.CmdNv0080GrGetCaps,
	finn.CmdNv0080HostGetCaps,
	finn.CmdNv0080MsencGetCaps,
	finn.CmdNv2080CeGetCaps,
	finn.CmdNv2080GpuGetEngines,
	finn.CmdNv2080GpuGetEngineClasslist,
	finn.CmdNv2080I2CAccess,
	finn.CmdNv2080NvdGetDump,
	finn.CmdNv2080PerfGetGpumonPerfmonUtilSamples,
	finn.CmdNv2080RcReadVirtualMem,
	finn.CmdNv402cI2CIndexed,
	finn.CmdNv402cI2CTransaction,
	finn.CmdNv83deDebugReadMemory,
	finn.CmdNv83deDebugWriteMemory,
	finn.CmdNvb06fGetEngineCtxData,
	finn.CmdNvb06fMigrateEngineCtxData,
)

// HasEmbeddedPointers reports whether the legacy parameter block for
// cmd carries embedded pointers that CopyIn and CopyOut handle.
func HasEmbeddedPointers(cmd uint32) bool {
	return withEmbeddedPointers.Has(cmd)
}

// CopyIn copies the buffers that call's parameter block points to
// into kernel buffers, accessible with [Call.Buffer].
//
// CopyIn does nothing for kernel origin calls, serialized calls, and
// commands without embedded pointers. If any buffer cannot be
// acquired, the buffers acquired before it are released without
// copying back, and the call must not proceed.
func CopyIn(ctx context.Context, mem Memory, call *Call) error {
	if call.skip() {
		return nil
	}
	descs, err := descriptors(call)
	if err != nil {
		return err
	}
	if descs == nil {
		zap.L().Debug("paramcopy: no embedded pointers", zap.Uint32("cmd", call.Cmd))
		return nil
	}

	for i, d := range descs {
		if err := d.Acquire(ctx, mem); err != nil {
			zap.L().Debug("paramcopy: acquire failed",
				zap.Uint32("cmd", call.Cmd),
				zap.Int("index", i),
				zap.Error(err))
			for _, prev := range descs[:i] {
				prev.Flags |= SkipCopyOut
				prev.Release(ctx, mem)
			}
			// Put back any pointer the failed descriptor saw.
			*d.Field = d.User
			return err
		}
	}
	call.descs = descs
	return nil
}

// CopyOut copies call's kernel buffers back to the caller and
// restores the parameter block's pointers.
//
// Every buffer is released even if some fail. The error of the last
// failing release is returned.
func CopyOut(ctx context.Context, mem Memory, call *Call) error {
	if call.skip() {
		return nil
	}
	var ret error
	for _, d := range call.descs {
		if err := d.Release(ctx, mem); err != nil {
			ret = err
		}
	}
	call.descs = nil
	return ret
}

// descriptors returns the descriptors for call's embedded pointers,
// or nil if its command has none.
func descriptors(call *Call) ([]*Descriptor, error) {
	if !HasEmbeddedPointers(call.Cmd) {
		return nil, nil
	}

	switch call.Cmd {
	case finn.CmdNv0000NvdGetDump:
		p, err := params[Nv0000NvdGetDumpParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Buffer, p.Size, 1, DisableMaxSizeCheck),
		}, nil

	case finn.CmdNv0080DmaUpdatePde2:
		p, err := params[Nv0080DmaUpdatePde2Params](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.PdeBuffer, 1, 8*finn.DmaUpdatePde2PtIdxSize, SkipCopyIn|ZeroBuffer),
		}, nil

	case finn.CmdNv0080FbGetCaps, finn.CmdNv0080FifoGetCaps, finn.CmdNv0080GrGetCaps,
		finn.CmdNv0080HostGetCaps, finn.CmdNv0080MsencGetCaps:
		p, err := params[CapsParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.CapsTbl, p.CapsTblSize, 1, 0),
		}, nil

	case finn.CmdNv0080FifoStartSelectedChannels:
		p, err := params[Nv0080FifoStartSelectedChannelsParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.FifoStartChannelList, p.FifoStartChannelListCount, 4, 0),
		}, nil

	case finn.CmdNv0080FifoGetChannellist:
		p, err := params[Nv0080FifoGetChannellistParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.PChannelHandleList, p.NumChannels, 4, 0),
			newDescriptor(&p.PChannelList, p.NumChannels, 4, 0),
		}, nil

	case finn.CmdNv0080GpuGetClasslist:
		p, err := params[Nv0080GpuGetClasslistParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.ClassList, p.NumClasses, 4, 0),
		}, nil

	case finn.CmdNv2080CeGetCaps:
		p, err := params[Nv2080CeGetCapsParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.CapsTbl, p.CapsTblSize, 1, 0),
		}, nil

	case finn.CmdNv2080GpuGetEngines:
		p, err := params[Nv2080GpuGetEnginesParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.EngineList, p.EngineCount, 4, 0),
		}, nil

	case finn.CmdNv2080GpuGetEngineClasslist:
		p, err := params[Nv2080GpuGetEngineClasslistParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.ClassList, p.NumClasses, 4, 0),
		}, nil

	case finn.CmdNv2080I2CAccess:
		p, err := params[Nv2080I2CAccessParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Data, p.DataBuffSize, 1, 0),
		}, nil

	case finn.CmdNv2080NvdGetDump:
		p, err := params[Nv2080NvdGetDumpParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Buffer, p.Size, 1, DisableMaxSizeCheck),
		}, nil

	case finn.CmdNv2080PerfGetGpumonPerfmonUtilSamples:
		p, err := params[Nv2080GpumonSamples](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Samples, p.BufSize, 1, SkipCopyIn),
		}, nil

	case finn.CmdNv2080RcReadVirtualMem:
		p, err := params[Nv2080RcReadVirtualMemParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.BufferPtr, p.BufferSize, 1, SkipCopyIn),
		}, nil

	case finn.CmdNv402cI2CIndexed:
		p, err := params[Nv402cI2CIndexedParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Message, p.MessageLength, 1, readWrite(p.IsWrite != 0)),
		}, nil

	case finn.CmdNv402cI2CTransaction:
		p, err := params[Nv402cI2CTransactionParams](call)
		if err != nil {
			return nil, err
		}
		return i2cTransactionDescriptors(p)

	case finn.CmdNv83deDebugReadMemory:
		p, err := params[Nv83deDebugMemoryParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Buffer, p.Length, 1, SkipCopyIn),
		}, nil

	case finn.CmdNv83deDebugWriteMemory:
		p, err := params[Nv83deDebugMemoryParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Buffer, p.Length, 1, SkipCopyOut),
		}, nil

	case finn.CmdNvb06fGetEngineCtxData:
		p, err := params[Nvb06fGetEngineCtxDataParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.EngineCtxBuff, p.Size, 1, SkipCopyIn),
		}, nil

	case finn.CmdNvb06fMigrateEngineCtxData:
		p, err := params[Nvb06fMigrateEngineCtxDataParams](call)
		if err != nil {
			return nil, err
		}
		return []*Descriptor{
			newDescriptor(&p.Params.EngineCtxBuff, p.Params.Size, 1, SkipCopyIn),
		}, nil
	}

	panic(fmt.Sprintf("paramcopy: command 0x%08x has embedded pointers but no descriptors", call.Cmd))
}

// i2cTransactionDescriptors returns the descriptor for the one buffer
// an I2C transaction may carry, which depends on the transaction
// type.
func i2cTransactionDescriptors(p *Nv402cI2CTransactionParams) ([]*Descriptor, error) {
	d := &p.TransData
	switch p.TransType {
	case finn.I2CTransactionI2CBlockRW,
		finn.I2CTransactionI2CBufferRW,
		finn.I2CTransactionSmbusBlockRW,
		finn.I2CTransactionSmbusMultibyteRegisterBlockRW:
		return []*Descriptor{
			newDescriptor(&d.Message, d.MessageLength, 1, readWrite(d.Write)),
		}, nil
	case finn.I2CTransactionReadEdidDdc:
		return []*Descriptor{
			newDescriptor(&d.Message, d.MessageLength, 1, SkipCopyIn),
		}, nil
	case finn.I2CTransactionSmbusQuickRW,
		finn.I2CTransactionI2CByteRW,
		finn.I2CTransactionSmbusByteRW,
		finn.I2CTransactionSmbusWordRW,
		finn.I2CTransactionSmbusProcessCall,
		finn.I2CTransactionSmbusBlockProcessCall:
		// Data is inline.
		return nil, nil
	default:
		return nil, &finn.Error{
			Status: finn.StatusInvalidArgument,
			Type:   "Nv402cI2CTransactionParams",
			Field:  "TransType",
			Reason: fmt.Errorf("unknown transaction type %v", p.TransType),
		}
	}
}

// readWrite returns the flags for a buffer that is either written to
// the device, or read from it.
func readWrite(write bool) Flags {
	if write {
		return SkipCopyOut
	}
	return SkipCopyIn
}

// params returns call's parameter block as a *T.
func params[T any](call *Call) (*T, error) {
	p, ok := call.Params.(*T)
	if !ok || p == nil {
		var zero T
		return nil, &finn.Error{
			Status: finn.StatusInvalidArgument,
			Reason: fmt.Errorf("command 0x%08x wants parameters of type *%T, got %T", call.Cmd, zero, call.Params),
		}
	}
	return p, nil
}
