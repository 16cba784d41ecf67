package finn

import (
	"fmt"
	"reflect"
)

// Limits for the I2C controls.
const (
	I2CIndexMax              = 4
	I2CBlockProcessProtoMax  = 32
	I2CMultibyteRegIndexMax  = 4
	i2cTransactionVariantNum = 11
)

// Nv402cI2CIndexedParams performs an indexed read or write on an I2C
// device.
type Nv402cI2CIndexedParams struct {
	Flags         uint32
	IndexLength   uint32 `finn:"max=4"`
	MessageLength uint32
	Address       uint16
	PortID        uint8
	IsWrite       uint8
	Index         [I2CIndexMax]byte
	Message       []byte `finn:"count=MessageLength"`
}

// I2CTransactionType selects the kind of bus transaction carried by
// [Nv402cI2CTransactionParams].
type I2CTransactionType uint32

const (
	I2CTransactionSmbusQuickRW I2CTransactionType = iota
	I2CTransactionI2CByteRW
	I2CTransactionI2CBlockRW
	I2CTransactionI2CBufferRW
	I2CTransactionSmbusByteRW
	I2CTransactionSmbusWordRW
	I2CTransactionSmbusBlockRW
	I2CTransactionSmbusProcessCall
	I2CTransactionSmbusBlockProcessCall
	I2CTransactionSmbusMultibyteRegisterBlockRW
	I2CTransactionReadEdidDdc
)

type i2cTransactionInfo struct {
	name    string
	wireID  uint32
	variant reflect.Type
}

// i2cTransactions maps transaction types to their wire IDs and
// variant types. Wire IDs start at 1, and are assigned in the order
// variants appear in the union. They must never be renumbered.
var i2cTransactions = map[I2CTransactionType]i2cTransactionInfo{
	I2CTransactionSmbusQuickRW:                  {"SMBUS_QUICK_RW", 1, reflect.TypeFor[I2CSmbusQuickRW]()},
	I2CTransactionI2CByteRW:                     {"I2C_BYTE_RW", 2, reflect.TypeFor[I2CByteRW]()},
	I2CTransactionI2CBlockRW:                    {"I2C_BLOCK_RW", 3, reflect.TypeFor[I2CBlockRW]()},
	I2CTransactionSmbusByteRW:                   {"SMBUS_BYTE_RW", 4, reflect.TypeFor[I2CSmbusByteRW]()},
	I2CTransactionSmbusWordRW:                   {"SMBUS_WORD_RW", 5, reflect.TypeFor[I2CSmbusWordRW]()},
	I2CTransactionI2CBufferRW:                   {"I2C_BUFFER_RW", 6, reflect.TypeFor[I2CBufferRW]()},
	I2CTransactionSmbusBlockRW:                  {"SMBUS_BLOCK_RW", 7, reflect.TypeFor[I2CSmbusBlockRW]()},
	I2CTransactionSmbusProcessCall:              {"SMBUS_PROCESS_CALL", 8, reflect.TypeFor[I2CSmbusProcessCall]()},
	I2CTransactionSmbusBlockProcessCall:         {"SMBUS_BLOCK_PROCESS_CALL", 9, reflect.TypeFor[I2CSmbusBlockProcessCall]()},
	I2CTransactionSmbusMultibyteRegisterBlockRW: {"SMBUS_MULTIBYTE_REGISTER_BLOCK_RW", 10, reflect.TypeFor[I2CSmbusMultibyteRegisterBlockRW]()},
	I2CTransactionReadEdidDdc:                   {"READ_EDID_DDC", 11, reflect.TypeFor[I2CReadEdidDdc]()},
}

// i2cTransactionsByWireID is the reverse of i2cTransactions.
var i2cTransactionsByWireID = func() map[uint32]I2CTransactionType {
	ret := make(map[uint32]I2CTransactionType, len(i2cTransactions))
	for t, info := range i2cTransactions {
		if _, dup := ret[info.wireID]; dup {
			panic(fmt.Sprintf("duplicate I2C transaction wire ID %d", info.wireID))
		}
		ret[info.wireID] = t
	}
	return ret
}()

func (t I2CTransactionType) String() string {
	if info, ok := i2cTransactions[t]; ok {
		return info.name
	}
	return fmt.Sprintf("I2CTransactionType(%d)", uint32(t))
}

// WireID implements [Enum].
func (t I2CTransactionType) WireID() (uint32, error) {
	info, ok := i2cTransactions[t]
	if !ok {
		return 0, fmt.Errorf("unknown I2C transaction type %d", uint32(t))
	}
	return info.wireID, nil
}

// SetWireID sets t to the transaction type with the given wire ID.
func (t *I2CTransactionType) SetWireID(id uint32) error {
	v, ok := i2cTransactionsByWireID[id]
	if !ok {
		return fmt.Errorf("unknown I2C transaction wire ID %d", id)
	}
	*t = v
	return nil
}

// Variant implements [UnionTag].
func (t I2CTransactionType) Variant() (reflect.Type, error) {
	info, ok := i2cTransactions[t]
	if !ok {
		return nil, fmt.Errorf("unknown I2C transaction type %d", uint32(t))
	}
	return info.variant, nil
}

// NumVariants implements [UnionTag].
func (t I2CTransactionType) NumVariants() int {
	return i2cTransactionVariantNum
}

// I2CTransactionData is the transaction specific part of
// [Nv402cI2CTransactionParams]. It is one of the I2C* variant
// structs in this package.
type I2CTransactionData interface {
	// TransactionType returns the transaction type that selects the
	// variant.
	TransactionType() I2CTransactionType
}

// I2CSmbusQuickRW is an SMBus quick command, which carries only the
// read/write bit.
type I2CSmbusQuickRW struct {
	WarFlags uint32
	Write    bool
}

// I2CByteRW reads or writes a single byte with no register address.
type I2CByteRW struct {
	Write   bool
	Message uint8
}

// I2CBlockRW reads or writes a raw block of bytes.
type I2CBlockRW struct {
	MessageLength uint32
	Write         bool
	Message       []byte `finn:"count=MessageLength"`
}

// I2CSmbusByteRW reads or writes one byte at a register address.
type I2CSmbusByteRW struct {
	Write           bool
	RegisterAddress uint8
	Message         uint8
}

// I2CSmbusWordRW reads or writes one 16-bit word at a register
// address.
type I2CSmbusWordRW struct {
	Message         uint16
	Write           bool
	RegisterAddress uint8
}

// I2CBufferRW reads or writes a buffer at a register address.
type I2CBufferRW struct {
	WarFlags        uint32
	MessageLength   uint32
	Write           bool
	RegisterAddress uint8
	Message         []byte `finn:"count=MessageLength"`
}

// I2CSmbusBlockRW is an SMBus block read or write, whose length
// travels on the bus.
type I2CSmbusBlockRW struct {
	MessageLength   uint32
	Write           bool
	RegisterAddress uint8
	Message         []byte `finn:"count=MessageLength"`
}

// I2CSmbusProcessCall writes a word and reads a word back in one
// transaction.
type I2CSmbusProcessCall struct {
	WriteMessage    uint16
	ReadMessage     uint16
	RegisterAddress uint8
}

// I2CSmbusBlockProcessCall writes a block and reads a block back in
// one transaction.
type I2CSmbusBlockProcessCall struct {
	WriteMessageLength uint32 `finn:"max=32"`
	ReadMessageLength  uint32 `finn:"max=32"`
	RegisterAddress    uint8
	WriteMessage       [I2CBlockProcessProtoMax]byte
	ReadMessage        [I2CBlockProcessProtoMax]byte
}

// I2CSmbusMultibyteRegisterBlockRW reads or writes a block at a
// register address wider than one byte.
type I2CSmbusMultibyteRegisterBlockRW struct {
	WarFlags      uint32
	IndexLength   uint32 `finn:"max=4"`
	MessageLength uint32
	Write         bool
	Index         [I2CMultibyteRegIndexMax]byte
	Message       []byte `finn:"count=MessageLength"`
}

// I2CReadEdidDdc reads a display's EDID over DDC.
type I2CReadEdidDdc struct {
	MessageLength   uint32
	SegmentNumber   uint8
	RegisterAddress uint8
	Message         []byte `finn:"count=MessageLength"`
}

func (I2CSmbusQuickRW) TransactionType() I2CTransactionType { return I2CTransactionSmbusQuickRW }
func (I2CByteRW) TransactionType() I2CTransactionType       { return I2CTransactionI2CByteRW }
func (I2CBlockRW) TransactionType() I2CTransactionType      { return I2CTransactionI2CBlockRW }
func (I2CSmbusByteRW) TransactionType() I2CTransactionType  { return I2CTransactionSmbusByteRW }
func (I2CSmbusWordRW) TransactionType() I2CTransactionType  { return I2CTransactionSmbusWordRW }
func (I2CBufferRW) TransactionType() I2CTransactionType     { return I2CTransactionI2CBufferRW }
func (I2CSmbusBlockRW) TransactionType() I2CTransactionType { return I2CTransactionSmbusBlockRW }
func (I2CSmbusProcessCall) TransactionType() I2CTransactionType {
	return I2CTransactionSmbusProcessCall
}
func (I2CSmbusBlockProcessCall) TransactionType() I2CTransactionType {
	return I2CTransactionSmbusBlockProcessCall
}
func (I2CSmbusMultibyteRegisterBlockRW) TransactionType() I2CTransactionType {
	return I2CTransactionSmbusMultibyteRegisterBlockRW
}
func (I2CReadEdidDdc) TransactionType() I2CTransactionType { return I2CTransactionReadEdidDdc }

// Nv402cI2CTransactionParams performs a typed transaction on an I2C
// bus. TransType selects which variant TransData holds.
type Nv402cI2CTransactionParams struct {
	Flags         uint32
	TransType     I2CTransactionType
	DeviceAddress uint16
	PortID        uint8
	TransData     I2CTransactionData `finn:"union=TransType"`
}
