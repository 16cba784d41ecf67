package finn

// EngineCtxBuffSize is the size of the inline engine context buffer
// in [Nvb06fSaveEngineCtxDataParams].
const EngineCtxBuffSize = 4096

// Nvb06fGetEngineCtxDataParams reads the context of one engine of a
// channel.
type Nvb06fGetEngineCtxDataParams struct {
	EngineID      uint32
	Size          uint32
	EngineCtxBuff []byte `finn:"count=Size"`
}

// Nvb06fSaveEngineCtxDataParams holds a saved engine context inline.
type Nvb06fSaveEngineCtxDataParams struct {
	EngineID      uint32
	Size          uint32
	EngineCtxBuff [EngineCtxBuffSize]byte
}

// Nvb06fMigrateEngineCtxDataParams migrates an engine context
// between channels.
type Nvb06fMigrateEngineCtxDataParams struct {
	Params Nvb06fGetEngineCtxDataParams
}

// Nvb06fRestoreEngineCtxDataParams restores a previously saved
// engine context.
type Nvb06fRestoreEngineCtxDataParams struct {
	Params Nvb06fSaveEngineCtxDataParams
}
