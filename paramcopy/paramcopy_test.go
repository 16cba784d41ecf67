package paramcopy

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/danderson/finn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFault = errors.New("bad address")

// fakeMemory is an address space made of disjoint regions.
type fakeMemory struct {
	regions map[P64][]byte
	// readOnly regions fault on CopyOut.
	readOnly map[P64]bool
	reads    int
	writes   int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		regions:  map[P64][]byte{},
		readOnly: map[P64]bool{},
	}
}

func (m *fakeMemory) add(addr P64, bs []byte) P64 {
	m.regions[addr] = bs
	return addr
}

func (m *fakeMemory) region(addr P64, n int) ([]byte, error) {
	for base, bs := range m.regions {
		if addr >= base && uint64(addr)+uint64(n) <= uint64(base)+uint64(len(bs)) {
			off := int(addr - base)
			return bs[off : off+n], nil
		}
	}
	return nil, fmt.Errorf("%w: %v+%d", errFault, addr, n)
}

func (m *fakeMemory) CopyIn(ctx context.Context, addr P64, dst []byte) error {
	m.reads++
	bs, err := m.region(addr, len(dst))
	if err != nil {
		return err
	}
	copy(dst, bs)
	return nil
}

func (m *fakeMemory) CopyOut(ctx context.Context, addr P64, src []byte) error {
	m.writes++
	if m.readOnly[addr] {
		return fmt.Errorf("%w: %v is read only", errFault, addr)
	}
	bs, err := m.region(addr, len(src))
	if err != nil {
		return err
	}
	copy(bs, src)
	return nil
}

func TestDescriptorSize(t *testing.T) {
	tests := []struct {
		name  string
		count uint32
		elem  uint32
		flags Flags
		want  int
		fail  bool
	}{
		{"empty", 0, 4, 0, 0, false},
		{"bytes", 10, 1, 0, 10, false},
		{"words", 10, 4, 0, 40, false},
		{"at max", MaxParamsSize / 4, 4, 0, MaxParamsSize, false},
		{"over max", MaxParamsSize/4 + 1, 4, 0, 0, true},
		{"over max allowed", MaxParamsSize/4 + 1, 4, DisableMaxSizeCheck, MaxParamsSize + 4, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var p P64
			d := newDescriptor(&p, tc.count, tc.elem, tc.flags)
			got, err := d.Size()
			if tc.fail {
				require.Error(t, err)
				assert.Equal(t, finn.StatusInvalidArgument, finn.StatusOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDescriptorAcquireRelease(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	user := mem.add(0x1000, []byte{1, 2, 3, 4})

	field := user
	d := newDescriptor(&field, 4, 1, 0)
	require.NoError(t, d.Acquire(ctx, mem))
	assert.Equal(t, []byte{1, 2, 3, 4}, d.Kernel)
	assert.Equal(t, user, d.User)

	d.Kernel[0] = 42
	field = 0xdead
	require.NoError(t, d.Release(ctx, mem))
	assert.Equal(t, []byte{42, 2, 3, 4}, mem.regions[user])
	assert.Equal(t, user, field, "user pointer not restored")
	assert.Nil(t, d.Kernel)
}

func TestDescriptorFlags(t *testing.T) {
	ctx := context.Background()

	t.Run("SkipCopyIn", func(t *testing.T) {
		mem := newFakeMemory()
		field := mem.add(0x1000, []byte{1, 2, 3, 4})
		d := newDescriptor(&field, 4, 1, SkipCopyIn)
		require.NoError(t, d.Acquire(ctx, mem))
		assert.Equal(t, []byte{0, 0, 0, 0}, d.Kernel)
		assert.Equal(t, 0, mem.reads)
		d.Kernel[3] = 9
		require.NoError(t, d.Release(ctx, mem))
		// The whole zeroed buffer is copied out, not just the bytes
		// the handler wrote.
		assert.Equal(t, []byte{0, 0, 0, 9}, mem.regions[0x1000])
		assert.Equal(t, 1, mem.writes)
	})

	t.Run("SkipCopyOut", func(t *testing.T) {
		mem := newFakeMemory()
		field := mem.add(0x1000, []byte{1, 2, 3, 4})
		d := newDescriptor(&field, 4, 1, SkipCopyOut)
		require.NoError(t, d.Acquire(ctx, mem))
		d.Kernel[0] = 9
		require.NoError(t, d.Release(ctx, mem))
		assert.Equal(t, []byte{1, 2, 3, 4}, mem.regions[0x1000])
		assert.Equal(t, 0, mem.writes)
	})

	t.Run("null pointer", func(t *testing.T) {
		mem := newFakeMemory()
		var field P64
		d := newDescriptor(&field, 4, 1, 0)
		require.NoError(t, d.Acquire(ctx, mem))
		assert.Nil(t, d.Kernel)
		require.NoError(t, d.Release(ctx, mem))
		assert.Equal(t, 0, mem.reads+mem.writes)
	})

	t.Run("shrunk count", func(t *testing.T) {
		mem := newFakeMemory()
		field := mem.add(0x1000, []byte{1, 2, 3, 4})
		d := newDescriptor(&field, 4, 1, 0)
		require.NoError(t, d.Acquire(ctx, mem))
		copy(d.Kernel, []byte{5, 6, 7, 8})
		d.Count = 2
		require.NoError(t, d.Release(ctx, mem))
		assert.Equal(t, []byte{5, 6, 3, 4}, mem.regions[0x1000])
	})
}

func TestDescriptorFaults(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	mem.add(0x1000, []byte{1, 2, 3, 4})

	field := P64(0x1002)
	d := newDescriptor(&field, 4, 1, 0)
	err := d.Acquire(ctx, mem)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidPointer, finn.StatusOf(err))
	assert.ErrorIs(t, err, errFault)

	field = 0x1000
	mem.readOnly[0x1000] = true
	d = newDescriptor(&field, 4, 1, 0)
	require.NoError(t, d.Acquire(ctx, mem))
	err = d.Release(ctx, mem)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidPointer, finn.StatusOf(err))
	assert.Equal(t, P64(0x1000), field)
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "0", Flags(0).String())
	assert.Equal(t, "SkipCopyIn|ZeroBuffer", (SkipCopyIn | ZeroBuffer).String())
	assert.Equal(t, "SkipCopyOut|0x100", (SkipCopyOut | 0x100).String())
}

func TestCopyNoOp(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	user := mem.add(0x1000, make([]byte, 8))

	for _, call := range []*Call{
		{
			Cmd:          finn.CmdNv0080GpuGetClasslist,
			Params:       &Nv0080GpuGetClasslistParams{NumClasses: 2, ClassList: user},
			KernelOrigin: true,
		},
		{
			Cmd:        finn.CmdNv0080GpuGetClasslist,
			Params:     &Nv0080GpuGetClasslistParams{NumClasses: 2, ClassList: user},
			Serialized: true,
		},
		{
			// No embedded pointers.
			Cmd:    finn.CmdNvb06fSaveEngineCtxData,
			Params: struct{}{},
		},
		{
			// Unknown command.
			Cmd:    0xdeadbe01,
			Params: nil,
		},
	} {
		require.NoError(t, CopyIn(ctx, mem, call))
		assert.Nil(t, call.Buffer(0))
		require.NoError(t, CopyOut(ctx, mem, call))
	}
	assert.Equal(t, 0, mem.reads+mem.writes)
}

func TestCopyRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	handles := mem.add(0x1000, []byte{1, 0, 0, 0, 2, 0, 0, 0})
	channels := mem.add(0x2000, make([]byte, 8))

	p := &Nv0080FifoGetChannellistParams{
		NumChannels:        2,
		PChannelHandleList: handles,
		PChannelList:       channels,
	}
	call := &Call{Cmd: finn.CmdNv0080FifoGetChannellist, Params: p}
	require.NoError(t, CopyIn(ctx, mem, call))
	require.Len(t, call.Descriptors(), 2)
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, call.Buffer(0))

	// The control writes its results into the kernel buffers.
	copy(call.Buffer(1), []byte{7, 0, 0, 0, 8, 0, 0, 0})

	require.NoError(t, CopyOut(ctx, mem, call))
	assert.Equal(t, []byte{7, 0, 0, 0, 8, 0, 0, 0}, mem.regions[channels])
	assert.Equal(t, handles, p.PChannelHandleList)
	assert.Equal(t, channels, p.PChannelList)
	assert.Nil(t, call.Buffer(0))
}

func TestCopyDirections(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name         string
		call         func(user P64) *Call
		wantCopyIn   bool
		wantCopyOut  bool
		wantBuffered bool
	}{
		{
			name: "debug read",
			call: func(user P64) *Call {
				return &Call{
					Cmd:    finn.CmdNv83deDebugReadMemory,
					Params: &Nv83deDebugMemoryParams{Length: 4, Buffer: user},
				}
			},
			wantCopyOut:  true,
			wantBuffered: true,
		},
		{
			name: "debug write",
			call: func(user P64) *Call {
				return &Call{
					Cmd:    finn.CmdNv83deDebugWriteMemory,
					Params: &Nv83deDebugMemoryParams{Length: 4, Buffer: user},
				}
			},
			wantCopyIn:   true,
			wantBuffered: true,
		},
		{
			name: "i2c indexed write",
			call: func(user P64) *Call {
				return &Call{
					Cmd:    finn.CmdNv402cI2CIndexed,
					Params: &Nv402cI2CIndexedParams{MessageLength: 4, IsWrite: 1, Message: user},
				}
			},
			wantCopyIn:   true,
			wantBuffered: true,
		},
		{
			name: "i2c transaction block write",
			call: func(user P64) *Call {
				return &Call{
					Cmd: finn.CmdNv402cI2CTransaction,
					Params: &Nv402cI2CTransactionParams{
						TransType: finn.I2CTransactionI2CBlockRW,
						TransData: I2CTransactionBuffer{MessageLength: 4, Write: true, Message: user},
					},
				}
			},
			wantCopyIn:   true,
			wantBuffered: true,
		},
		{
			name: "i2c transaction buffer read",
			call: func(user P64) *Call {
				return &Call{
					Cmd: finn.CmdNv402cI2CTransaction,
					Params: &Nv402cI2CTransactionParams{
						TransType: finn.I2CTransactionI2CBufferRW,
						TransData: I2CTransactionBuffer{MessageLength: 4, Message: user},
					},
				}
			},
			wantCopyOut:  true,
			wantBuffered: true,
		},
		{
			name: "i2c transaction edid",
			call: func(user P64) *Call {
				return &Call{
					Cmd: finn.CmdNv402cI2CTransaction,
					Params: &Nv402cI2CTransactionParams{
						TransType: finn.I2CTransactionReadEdidDdc,
						TransData: I2CTransactionBuffer{MessageLength: 4, Write: true, Message: user},
					},
				}
			},
			wantCopyOut:  true,
			wantBuffered: true,
		},
		{
			name: "i2c transaction inline",
			call: func(user P64) *Call {
				return &Call{
					Cmd: finn.CmdNv402cI2CTransaction,
					Params: &Nv402cI2CTransactionParams{
						TransType: finn.I2CTransactionSmbusWordRW,
						TransData: I2CTransactionBuffer{MessageLength: 4, Message: user},
					},
				}
			},
		},
		{
			name: "gpumon samples",
			call: func(user P64) *Call {
				return &Call{
					Cmd:    finn.CmdNv2080PerfGetGpumonPerfmonUtilSamples,
					Params: &Nv2080GpumonSamples{BufSize: 4, Samples: user},
				}
			},
			wantCopyOut:  true,
			wantBuffered: true,
		},
		{
			name: "caps",
			call: func(user P64) *Call {
				return &Call{
					Cmd:    finn.CmdNv0080MsencGetCaps,
					Params: &CapsParams{CapsTblSize: 4, CapsTbl: user},
				}
			},
			wantCopyIn:   true,
			wantCopyOut:  true,
			wantBuffered: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mem := newFakeMemory()
			user := mem.add(0x1000, []byte{1, 2, 3, 4})
			call := tc.call(user)

			require.NoError(t, CopyIn(ctx, mem, call))
			buf := call.Buffer(0)
			if !tc.wantBuffered {
				assert.Nil(t, buf)
				require.NoError(t, CopyOut(ctx, mem, call))
				assert.Equal(t, 0, mem.reads+mem.writes)
				return
			}
			require.Len(t, buf, 4)
			if tc.wantCopyIn {
				assert.Equal(t, []byte{1, 2, 3, 4}, buf)
			} else {
				assert.Equal(t, []byte{0, 0, 0, 0}, buf)
			}

			copy(buf, []byte{9, 9, 9, 9})
			require.NoError(t, CopyOut(ctx, mem, call))
			if tc.wantCopyOut {
				assert.Equal(t, []byte{9, 9, 9, 9}, mem.regions[user])
			} else {
				assert.Equal(t, []byte{1, 2, 3, 4}, mem.regions[user])
			}
		})
	}
}

func TestCopyMaxSize(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	user := mem.add(0x1000, make([]byte, MaxParamsSize+1))

	call := &Call{
		Cmd:    finn.CmdNv2080I2CAccess,
		Params: &Nv2080I2CAccessParams{DataBuffSize: MaxParamsSize + 1, Data: user},
	}
	err := CopyIn(ctx, mem, call)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidArgument, finn.StatusOf(err))

	// Dumps may exceed the limit.
	call = &Call{
		Cmd:    finn.CmdNv2080NvdGetDump,
		Params: &Nv2080NvdGetDumpParams{Size: MaxParamsSize + 1, Buffer: user},
	}
	require.NoError(t, CopyIn(ctx, mem, call))
	assert.Len(t, call.Buffer(0), MaxParamsSize+1)
	require.NoError(t, CopyOut(ctx, mem, call))
}

func TestCopyInRollback(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	handles := mem.add(0x1000, []byte{1, 0, 0, 0})

	p := &Nv0080FifoGetChannellistParams{
		NumChannels:        1,
		PChannelHandleList: handles,
		PChannelList:       0x5000, // unmapped
	}
	call := &Call{Cmd: finn.CmdNv0080FifoGetChannellist, Params: p}
	err := CopyIn(ctx, mem, call)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidPointer, finn.StatusOf(err))

	// Nothing acquired survives, and nothing was written back.
	assert.Nil(t, call.Descriptors())
	assert.Equal(t, 0, mem.writes)
	assert.Equal(t, handles, p.PChannelHandleList)
	assert.Equal(t, P64(0x5000), p.PChannelList)
}

func TestCopyOutLastErrorWins(t *testing.T) {
	ctx := context.Background()
	mem := newFakeMemory()
	handles := mem.add(0x1000, []byte{1, 0, 0, 0})
	channels := mem.add(0x2000, []byte{2, 0, 0, 0})

	p := &Nv0080FifoGetChannellistParams{
		NumChannels:        1,
		PChannelHandleList: handles,
		PChannelList:       channels,
	}
	call := &Call{Cmd: finn.CmdNv0080FifoGetChannellist, Params: p}
	require.NoError(t, CopyIn(ctx, mem, call))

	mem.readOnly[handles] = true
	copy(call.Buffer(1), []byte{3, 0, 0, 0})
	err := CopyOut(ctx, mem, call)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidPointer, finn.StatusOf(err))
	assert.Contains(t, err.Error(), handles.String())

	// The second buffer was still copied out.
	assert.Equal(t, []byte{3, 0, 0, 0}, mem.regions[channels])
}

func TestCopyWrongParams(t *testing.T) {
	call := &Call{
		Cmd:    finn.CmdNv0080GpuGetClasslist,
		Params: &Nv2080GpuGetEnginesParams{},
	}
	err := CopyIn(context.Background(), newFakeMemory(), call)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidArgument, finn.StatusOf(err))

	call = &Call{
		Cmd:    finn.CmdNv402cI2CTransaction,
		Params: &Nv402cI2CTransactionParams{TransType: 99},
	}
	err = CopyIn(context.Background(), newFakeMemory(), call)
	require.Error(t, err)
	assert.Equal(t, finn.StatusInvalidArgument, finn.StatusOf(err))
}

func TestHasEmbeddedPointers(t *testing.T) {
	assert.True(t, HasEmbeddedPointers(finn.CmdNv0080FbGetCaps))
	assert.True(t, HasEmbeddedPointers(finn.CmdNv402cI2CTransaction))
	assert.False(t, HasEmbeddedPointers(finn.CmdNvb06fSaveEngineCtxData))
	assert.False(t, HasEmbeddedPointers(0))
}
