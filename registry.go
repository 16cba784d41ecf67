package finn

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// Interface IDs. An interface groups the control messages of one
// object class and category.
const (
	InterfaceNv01RootNvd                 = 0x000006
	InterfaceNv01Device0Dma              = 0x008018
	InterfaceNv01Device0Fb               = 0x008013
	InterfaceNv01Device0Fifo             = 0x008017
	InterfaceNv01Device0Gpu              = 0x008002
	InterfaceNv01Device0Gr               = 0x008011
	InterfaceNv01Device0Host             = 0x008014
	InterfaceNv01Device0Msenc            = 0x00801b
	InterfaceNv20Subdevice0Ce            = 0x20802a
	InterfaceNv20Subdevice0Gpu           = 0x208001
	InterfaceNv20Subdevice0I2C           = 0x208006
	InterfaceNv20Subdevice0Nvd           = 0x208024
	InterfaceNv20Subdevice0Perf          = 0x208020
	InterfaceNv20Subdevice0Rc            = 0x208022
	InterfaceNv20SubdeviceDiagGpu        = 0x208f11
	InterfaceNv40I2CI2C                  = 0x402c01
	InterfaceGt200DebuggerDebug          = 0x83de03
	InterfaceMaxwellChannelGpfifoAGpfifo = 0xb06f01
)

// Control command numbers. A command number is the interface ID
// shifted left by 8, ORed with the message ID.
const (
	CmdNv0000NvdGetDump                      = InterfaceNv01RootNvd<<8 | 0x01
	CmdNv0080DmaUpdatePde2                   = InterfaceNv01Device0Dma<<8 | 0x15
	CmdNv0080FbGetCaps                       = InterfaceNv01Device0Fb<<8 | 0x01
	CmdNv0080FifoGetCaps                     = InterfaceNv01Device0Fifo<<8 | 0x01
	CmdNv0080FifoStartSelectedChannels       = InterfaceNv01Device0Fifo<<8 | 0x05
	CmdNv0080FifoGetChannellist              = InterfaceNv01Device0Fifo<<8 | 0x0d
	CmdNv0080GpuGetClasslist                 = InterfaceNv01Device0Gpu<<8 | 0x01
	CmdNv0080GrGetCaps                       = InterfaceNv01Device0Gr<<8 | 0x02
	CmdNv0080HostGetCaps                     = InterfaceNv01Device0Host<<8 | 0x01
	CmdNv0080MsencGetCaps                    = InterfaceNv01Device0Msenc<<8 | 0x01
	CmdNv2080CeGetCaps                       = InterfaceNv20Subdevice0Ce<<8 | 0x01
	CmdNv2080GpuGetEngines                   = InterfaceNv20Subdevice0Gpu<<8 | 0x23
	CmdNv2080GpuGetEngineClasslist           = InterfaceNv20Subdevice0Gpu<<8 | 0x24
	CmdNv2080I2CAccess                       = InterfaceNv20Subdevice0I2C<<8 | 0x10
	CmdNv2080NvdGetDump                      = InterfaceNv20Subdevice0Nvd<<8 | 0x02
	CmdNv2080PerfGetGpumonPerfmonUtilSamples = InterfaceNv20Subdevice0Perf<<8 | 0x83
	CmdNv2080RcReadVirtualMem                = InterfaceNv20Subdevice0Rc<<8 | 0x04
	CmdNv402cI2CIndexed                      = InterfaceNv40I2CI2C<<8 | 0x02
	CmdNv402cI2CTransaction                  = InterfaceNv40I2CI2C<<8 | 0x05
	CmdNv83deDebugReadMemory                 = InterfaceGt200DebuggerDebug<<8 | 0x15
	CmdNv83deDebugWriteMemory                = InterfaceGt200DebuggerDebug<<8 | 0x16
	CmdNvb06fGetEngineCtxData                = InterfaceMaxwellChannelGpfifoAGpfifo<<8 | 0x0c
	CmdNvb06fMigrateEngineCtxData            = InterfaceMaxwellChannelGpfifoAGpfifo<<8 | 0x0d
	CmdNvb06fSaveEngineCtxData               = InterfaceMaxwellChannelGpfifoAGpfifo<<8 | 0x0e
	CmdNvb06fRestoreEngineCtxData            = InterfaceMaxwellChannelGpfifoAGpfifo<<8 | 0x0f
)

// Command returns the control command number for a FINN interface
// and message.
func Command(iface, msg uint32) uint32 {
	return iface<<8 | msg&0xff
}

// SplitCommand returns the FINN interface and message IDs of a
// control command number.
func SplitCommand(cmd uint32) (iface, msg uint32) {
	return cmd >> 8, cmd & 0xff
}

// MessageInfo describes one registered parameter block.
type MessageInfo struct {
	// Interface is the FINN interface ID.
	Interface uint32
	// Message is the FINN message ID, within Interface.
	Message uint32
	// InterfaceName is the name of the interface.
	InterfaceName string
	// Name is the name of the control command.
	Name string
	// Type is the parameter block struct type.
	Type reflect.Type
}

// Command returns the control command number of the message.
func (m *MessageInfo) Command() uint32 {
	return Command(m.Interface, m.Message)
}

// New returns a pointer to a new zero parameter block of the
// message's type.
func (m *MessageInfo) New() any {
	return reflect.New(m.Type).Interface()
}

func (m *MessageInfo) String() string {
	return fmt.Sprintf("%s (0x%08x, %s)", m.Name, m.Command(), m.Type)
}

type interfaceInfo struct {
	name     string
	messages map[uint32]*MessageInfo
}

func entry[T any](cmd uint32, name string) *MessageInfo {
	iface, m := SplitCommand(cmd)
	return &MessageInfo{
		Interface: iface,
		Message:   m,
		Name:      name,
		Type:      reflect.TypeFor[T](),
	}
}

// registry is the closed set of parameter blocks the codec can
// route. It is built once at init and never modified.
var registry = buildRegistry(
	map[uint32]string{
		InterfaceNv01RootNvd:                 "NV01_ROOT_NVD",
		InterfaceNv01Device0Dma:              "NV01_DEVICE_0_DMA",
		InterfaceNv01Device0Fb:               "NV01_DEVICE_0_FB",
		InterfaceNv01Device0Fifo:             "NV01_DEVICE_0_FIFO",
		InterfaceNv01Device0Gpu:              "NV01_DEVICE_0_GPU",
		InterfaceNv01Device0Gr:               "NV01_DEVICE_0_GR",
		InterfaceNv01Device0Host:             "NV01_DEVICE_0_HOST",
		InterfaceNv01Device0Msenc:            "NV01_DEVICE_0_MSENC",
		InterfaceNv20Subdevice0Ce:            "NV20_SUBDEVICE_0_CE",
		InterfaceNv20Subdevice0Gpu:           "NV20_SUBDEVICE_0_GPU",
		InterfaceNv20Subdevice0I2C:           "NV20_SUBDEVICE_0_I2C",
		InterfaceNv20Subdevice0Nvd:           "NV20_SUBDEVICE_0_NVD",
		InterfaceNv20Subdevice0Perf:          "NV20_SUBDEVICE_0_PERF",
		InterfaceNv20Subdevice0Rc:            "NV20_SUBDEVICE_0_RC",
		InterfaceNv20SubdeviceDiagGpu:        "NV20_SUBDEVICE_DIAG_GPU",
		InterfaceNv40I2CI2C:                  "NV40_I2C_I2C",
		InterfaceGt200DebuggerDebug:          "GT200_DEBUGGER_DEBUG",
		InterfaceMaxwellChannelGpfifoAGpfifo: "MAXWELL_CHANNEL_GPFIFO_A_GPFIFO",
	},
	entry[Nv0000NvdGetDumpParams](CmdNv0000NvdGetDump, "NV0000_CTRL_CMD_NVD_GET_DUMP"),
	entry[Nv0080DmaUpdatePde2Params](CmdNv0080DmaUpdatePde2, "NV0080_CTRL_CMD_DMA_UPDATE_PDE_2"),
	entry[Nv0080FbGetCapsParams](CmdNv0080FbGetCaps, "NV0080_CTRL_CMD_FB_GET_CAPS"),
	entry[Nv0080FifoGetCapsParams](CmdNv0080FifoGetCaps, "NV0080_CTRL_CMD_FIFO_GET_CAPS"),
	entry[Nv0080FifoStartSelectedChannelsParams](CmdNv0080FifoStartSelectedChannels, "NV0080_CTRL_CMD_FIFO_START_SELECTED_CHANNELS"),
	entry[Nv0080FifoGetChannellistParams](CmdNv0080FifoGetChannellist, "NV0080_CTRL_CMD_FIFO_GET_CHANNELLIST"),
	entry[Nv0080GpuGetClasslistParams](CmdNv0080GpuGetClasslist, "NV0080_CTRL_CMD_GPU_GET_CLASSLIST"),
	entry[Nv0080GrGetCapsParams](CmdNv0080GrGetCaps, "NV0080_CTRL_CMD_GR_GET_CAPS"),
	entry[Nv0080HostGetCapsParams](CmdNv0080HostGetCaps, "NV0080_CTRL_CMD_HOST_GET_CAPS"),
	entry[Nv0080MsencGetCapsParams](CmdNv0080MsencGetCaps, "NV0080_CTRL_CMD_MSENC_GET_CAPS"),
	entry[Nv2080CeGetCapsParams](CmdNv2080CeGetCaps, "NV2080_CTRL_CMD_CE_GET_CAPS"),
	entry[Nv2080GpuGetEnginesParams](CmdNv2080GpuGetEngines, "NV2080_CTRL_CMD_GPU_GET_ENGINES"),
	entry[Nv2080GpuGetEngineClasslistParams](CmdNv2080GpuGetEngineClasslist, "NV2080_CTRL_CMD_GPU_GET_ENGINE_CLASSLIST"),
	entry[Nv2080I2CAccessParams](CmdNv2080I2CAccess, "NV2080_CTRL_CMD_I2C_ACCESS"),
	entry[Nv2080NvdGetDumpParams](CmdNv2080NvdGetDump, "NV2080_CTRL_CMD_NVD_GET_DUMP"),
	entry[Nv2080GpumonSamples](CmdNv2080PerfGetGpumonPerfmonUtilSamples, "NV2080_CTRL_CMD_PERF_GET_GPUMON_PERFMON_UTIL_SAMPLES"),
	entry[Nv2080RcReadVirtualMemParams](CmdNv2080RcReadVirtualMem, "NV2080_CTRL_CMD_RC_READ_VIRTUAL_MEM"),
	entry[Nv402cI2CIndexedParams](CmdNv402cI2CIndexed, "NV402C_CTRL_CMD_I2C_INDEXED"),
	entry[Nv402cI2CTransactionParams](CmdNv402cI2CTransaction, "NV402C_CTRL_CMD_I2C_TRANSACTION"),
	entry[Nv83deDebugReadMemoryParams](CmdNv83deDebugReadMemory, "NV83DE_CTRL_CMD_DEBUG_READ_MEMORY"),
	entry[Nv83deDebugWriteMemoryParams](CmdNv83deDebugWriteMemory, "NV83DE_CTRL_CMD_DEBUG_WRITE_MEMORY"),
	entry[Nvb06fGetEngineCtxDataParams](CmdNvb06fGetEngineCtxData, "NVB06F_CTRL_CMD_GET_ENGINE_CTX_DATA"),
	entry[Nvb06fMigrateEngineCtxDataParams](CmdNvb06fMigrateEngineCtxData, "NVB06F_CTRL_CMD_MIGRATE_ENGINE_CTX_DATA"),
	entry[Nvb06fSaveEngineCtxDataParams](CmdNvb06fSaveEngineCtxData, "NVB06F_CTRL_CMD_SAVE_ENGINE_CTX_DATA"),
	entry[Nvb06fRestoreEngineCtxDataParams](CmdNvb06fRestoreEngineCtxData, "NVB06F_CTRL_CMD_RESTORE_ENGINE_CTX_DATA"),
)

func buildRegistry(names map[uint32]string, msgs ...*MessageInfo) map[uint32]*interfaceInfo {
	ret := map[uint32]*interfaceInfo{}
	for id, name := range names {
		ret[id] = &interfaceInfo{
			name:     name,
			messages: map[uint32]*MessageInfo{},
		}
	}
	for _, m := range msgs {
		iface := ret[m.Interface]
		if iface == nil {
			panic(fmt.Sprintf("message %s has unknown interface 0x%06x", m.Name, m.Interface))
		}
		if prev := iface.messages[m.Message]; prev != nil {
			panic(fmt.Sprintf("messages %s and %s share ID 0x%08x", prev.Name, m.Name, m.Command()))
		}
		m.InterfaceName = iface.name
		iface.messages[m.Message] = m
	}
	return ret
}

// Lookup returns the registered parameter block for a FINN
// interface and message.
//
// Lookup fails with [StatusNotSupported] if either ID is unknown,
// including for known interfaces that have no messages.
func Lookup(iface, msg uint64) (*MessageInfo, error) {
	info := registry[uint32(iface)]
	if info == nil || iface > 0xffffff {
		return nil, statusErr(StatusNotSupported, "unknown interface 0x%x", iface)
	}
	m := info.messages[uint32(msg)]
	if m == nil || msg > 0xff {
		return nil, statusErr(StatusNotSupported, "unknown message 0x%x in interface %s", msg, info.name)
	}
	return m, nil
}

// LookupName returns the registered parameter block with the given
// command name. Matching is case insensitive, and the
// "_CTRL_CMD_" infix may be omitted.
func LookupName(name string) (*MessageInfo, error) {
	want := strings.ToUpper(name)
	for _, m := range Messages() {
		if m.Name == want || strings.Replace(m.Name, "_CTRL_CMD_", "_", 1) == want {
			return m, nil
		}
	}
	return nil, statusErr(StatusNotSupported, "unknown command %q", name)
}

// Messages returns all registered parameter blocks, ordered by
// command number.
func Messages() []*MessageInfo {
	var ret []*MessageInfo
	for _, iface := range registry {
		for _, m := range iface.messages {
			ret = append(ret, m)
		}
	}
	slices.SortFunc(ret, func(a, b *MessageInfo) int {
		return cmp.Compare(a.Command(), b.Command())
	})
	return ret
}

// New returns a pointer to a new zero parameter block for a FINN
// interface and message.
func New(iface, msg uint64) (any, error) {
	m, err := Lookup(iface, msg)
	if err != nil {
		return nil, err
	}
	return m.New(), nil
}
