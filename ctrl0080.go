package finn

// Capability table sizes for the device-level GetCaps controls.
const (
	FbCapsTblSize    = 3
	FifoCapsTblSize  = 2
	HostCapsTblSize  = 3
	MsencCapsTblSize = 4
	GrCapsTblSize    = 23
)

// DmaUpdatePde2PtIdxSize is the number of page tables described by a
// PDE update, one each for small and big pages.
const DmaUpdatePde2PtIdxSize = 2

// Nv0080DmaUpdatePde2PageTableParams describes one page table
// referenced by a page directory entry.
type Nv0080DmaUpdatePde2PageTableParams struct {
	PhysAddr   uint64
	NumEntries uint32
	Aperture   uint32
}

// Nv0080DmaUpdatePde2Params updates a page directory entry of a VA
// space.
type Nv0080DmaUpdatePde2Params struct {
	PdeIndex    uint32
	Flags       uint32
	HVASpace    Handle
	SubDeviceID uint32
	PtParams    [DmaUpdatePde2PtIdxSize]Nv0080DmaUpdatePde2PageTableParams
	// PdeBuffer optionally receives the raw PDE value.
	PdeBuffer []uint64 `finn:"count=1"`
}

// Nv0080FbGetCapsParams queries the framebuffer capability table.
type Nv0080FbGetCapsParams struct {
	CapsTblSize uint32 `finn:"max=3"`
	CapsTbl     []byte `finn:"count=CapsTblSize"`
}

// Nv0080FifoGetCapsParams queries the FIFO capability table.
type Nv0080FifoGetCapsParams struct {
	CapsTblSize uint32 `finn:"max=2"`
	CapsTbl     []byte `finn:"count=CapsTblSize"`
}

// Nv0080FifoChannel identifies a channel.
type Nv0080FifoChannel struct {
	HChannel Handle
}

// Nv0080FifoStartSelectedChannelsParams starts a set of channels.
//
// Channels are given either in the fixed ChannelHandle mask, or in
// the variable length FifoStartChannelList.
type Nv0080FifoStartSelectedChannelsParams struct {
	FifoStartChannelListCount uint32
	ChannelHandle             [8]Handle
	FifoStartChannelList      []Nv0080FifoChannel `finn:"count=FifoStartChannelListCount"`
}

// Nv0080FifoGetChannellistParams lists the channels of a device.
type Nv0080FifoGetChannellistParams struct {
	NumChannels       uint32
	ChannelHandleList []uint32 `finn:"count=NumChannels"`
	ChannelList       []uint32 `finn:"count=NumChannels"`
}

// Nv0080GpuGetClasslistParams lists the object classes supported by
// a device.
type Nv0080GpuGetClasslistParams struct {
	NumClasses uint32
	ClassList  []uint32 `finn:"count=NumClasses"`
}

// Nv0080GrGetCapsParams queries the graphics capability table.
type Nv0080GrGetCapsParams struct {
	CapsTblSize uint32
	CapsTbl     []byte `finn:"count=CapsTblSize"`
}

// Nv0080HostGetCapsParams queries the host capability table.
type Nv0080HostGetCapsParams struct {
	CapsTblSize uint32 `finn:"max=3"`
	CapsTbl     []byte `finn:"count=CapsTblSize"`
}

// Nv0080MsencGetCapsParams queries the video encoder capability
// table.
type Nv0080MsencGetCapsParams struct {
	CapsTblSize uint32 `finn:"max=4"`
	CapsTbl     []byte `finn:"count=CapsTblSize"`
}
