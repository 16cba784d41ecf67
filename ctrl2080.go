package finn

// Limits for subdevice controls.
const (
	CeCapsTblSize = 2
	I2CMaxEntries = 256
)

// Nv2080CeGetCapsParams queries the capability table of a copy
// engine.
type Nv2080CeGetCapsParams struct {
	CeEngineType uint32
	CapsTblSize  uint32 `finn:"max=2"`
	CapsTbl      []byte `finn:"count=CapsTblSize"`
}

// Nv2080GpuGetEnginesParams lists the engines of a subdevice.
type Nv2080GpuGetEnginesParams struct {
	EngineCount uint32
	EngineList  []uint32 `finn:"count=EngineCount"`
}

// Nv2080GpuGetEngineClasslistParams lists the object classes
// supported by one engine.
type Nv2080GpuGetEngineClasslistParams struct {
	EngineType uint32
	NumClasses uint32
	ClassList  []uint32 `finn:"count=NumClasses"`
}

// Nv2080GpumonSamples carries a buffer of GPU monitoring samples.
type Nv2080GpumonSamples struct {
	BufSize uint32
	Count   uint32
	Tracker uint32
	Type    uint8
	Samples []byte `finn:"count=BufSize"`
}

// Nv2080I2CAccessParams performs a raw access on an I2C port.
type Nv2080I2CAccessParams struct {
	Token        uint32
	Cmd          uint32
	Port         uint32
	Flags        uint32
	Status       uint32
	DataBuffSize uint32 `finn:"max=256"`
	Speed        uint32
	EncrClientID uint32
	Data         []byte `finn:"count=DataBuffSize"`
}

// Nv2080NvdGetDumpParams requests a dump of a per-GPU NVD component.
type Nv2080NvdGetDumpParams struct {
	Component uint32
	Size      uint32
	Buffer    []byte `finn:"count=Size"`
}

// Nv2080RcReadVirtualMemParams reads memory through a channel's
// virtual address space.
type Nv2080RcReadVirtualMemParams struct {
	VirtAddress uint64
	HChannel    Handle
	BufferSize  uint32
	Buffer      []byte `finn:"count=BufferSize"`
}
