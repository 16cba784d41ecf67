package finn

// NvdMaxDumpSize is the largest dump the root NVD interface will
// produce.
const NvdMaxDumpSize = 1000000

// Nv0000NvdGetDumpParams requests a dump of a system-wide NVD
// component.
type Nv0000NvdGetDumpParams struct {
	Component uint32
	Size      uint32 `finn:"max=1000000"`
	Buffer    []byte `finn:"count=Size"`
}
