package paramcopy

import "github.com/danderson/finn"

// Legacy parameter blocks carry their variable length buffers as
// embedded pointers into the caller's address space. Layouts follow
// the driver ABI, with explicit padding.

type Nv0000NvdGetDumpParams struct {
	Component uint32
	Size      uint32
	Buffer    P64
}

type Nv0080DmaUpdatePde2PageTableParams struct {
	PhysAddr   uint64
	NumEntries uint32
	Aperture   uint32
}

type Nv0080DmaUpdatePde2Params struct {
	PdeIndex    uint32
	Flags       uint32
	HVASpace    finn.Handle
	SubDeviceID uint32
	PtParams    [finn.DmaUpdatePde2PtIdxSize]Nv0080DmaUpdatePde2PageTableParams
	PdeBuffer   P64
}

// CapsParams is the shape shared by the device level GET_CAPS
// controls.
type CapsParams struct {
	CapsTblSize uint32
	Pad         [4]byte
	CapsTbl     P64
}

type Nv0080FifoStartSelectedChannelsParams struct {
	FifoStartChannelListCount uint32
	ChannelHandle             [8]finn.Handle
	Pad                       [4]byte
	FifoStartChannelList      P64
}

type Nv0080FifoGetChannellistParams struct {
	NumChannels        uint32
	Pad                [4]byte
	PChannelHandleList P64
	PChannelList       P64
}

type Nv0080GpuGetClasslistParams struct {
	NumClasses uint32
	Pad        [4]byte
	ClassList  P64
}

type Nv2080CeGetCapsParams struct {
	CeEngineType uint32
	CapsTblSize  uint32
	CapsTbl      P64
}

type Nv2080GpuGetEnginesParams struct {
	EngineCount uint32
	Pad         [4]byte
	EngineList  P64
}

type Nv2080GpuGetEngineClasslistParams struct {
	EngineType uint32
	NumClasses uint32
	ClassList  P64
}

type Nv2080I2CAccessParams struct {
	Token        uint32
	Cmd          uint32
	Port         uint32
	Flags        uint32
	Data         P64
	Status       uint32
	DataBuffSize uint32
	Speed        uint32
	EncrClientID uint32
}

type Nv2080NvdGetDumpParams struct {
	Component uint32
	Size      uint32
	Buffer    P64
}

type Nv2080GpumonSamples struct {
	BufSize uint32
	Count   uint32
	Tracker uint32
	Type    uint8
	Pad     [3]byte
	Samples P64
}

type Nv2080RcReadVirtualMemParams struct {
	VirtAddress uint64
	HChannel    finn.Handle
	Pad0        [4]byte
	BufferPtr   P64
	BufferSize  uint32
	Pad1        [4]byte
}

type Nv402cI2CIndexedParams struct {
	Flags         uint32
	IndexLength   uint32
	MessageLength uint32
	Address       uint16
	PortID        uint8
	IsWrite       uint8
	Index         [finn.I2CIndexMax]byte
	Pad           [4]byte
	Message       P64
}

// I2CTransactionBuffer is the part of an I2C transaction's union that
// the buffer carrying variants have in common. Variants without a
// buffer leave it zero.
type I2CTransactionBuffer struct {
	WarFlags        uint32
	MessageLength   uint32
	Write           bool
	RegisterAddress uint8
	Pad             [6]byte
	Message         P64
}

type Nv402cI2CTransactionParams struct {
	Flags         uint32
	TransType     finn.I2CTransactionType
	DeviceAddress uint16
	PortID        uint8
	Pad           [5]byte
	TransData     I2CTransactionBuffer
}

// Nv83deDebugMemoryParams is the shape shared by the debugger
// READ_MEMORY and WRITE_MEMORY controls.
type Nv83deDebugMemoryParams struct {
	Offset  uint64
	HMemory finn.Handle
	Length  uint32
	Buffer  P64
}

type Nvb06fGetEngineCtxDataParams struct {
	EngineID      uint32
	Size          uint32
	EngineCtxBuff P64
}

type Nvb06fMigrateEngineCtxDataParams struct {
	Params Nvb06fGetEngineCtxDataParams
}
