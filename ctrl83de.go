package finn

// Nv83deDebugReadMemoryParams reads memory through a debugger
// object.
type Nv83deDebugReadMemoryParams struct {
	Offset  uint64
	HMemory Handle
	Length  uint32
	Buffer  []byte `finn:"count=Length"`
}

// Nv83deDebugWriteMemoryParams writes memory through a debugger
// object.
type Nv83deDebugWriteMemoryParams struct {
	Offset  uint64
	HMemory Handle
	Length  uint32
	Buffer  []byte `finn:"count=Length"`
}
