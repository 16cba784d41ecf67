// Package finn implements the FINN wire format for RM control call
// parameter blocks.
//
// A FINN payload carries one parameter block across a trust
// boundary, for example between a client and a kernel driver or
// between a driver and its firmware. Each payload starts with a
// [Header] that names the parameter block by interface and message
// ID, followed by the block's fields.
//
// The set of parameter blocks is closed: every block the package can
// encode is registered at build time, and [Lookup] and [Messages]
// describe them. Payloads naming anything else are rejected with
// [StatusNotSupported].
//
// # Wire format
//
// All scalars are written in the host's native byte order, packed
// with no alignment. A struct body is padded to an 8-byte boundary,
// then carries a 64-bit field mask with one bit per field, then the
// fixed size fields in declaration order, then padding to an 8-byte
// boundary, then the variable length fields in declaration order.
//
// The field mask is a shape check. A payload whose mask differs from
// the receiver's struct definition fails with
// [StatusLibRMVersionMismatch], and is never coerced.
//
// A variable length buffer is a presence byte, then the buffer's
// elements if the buffer is present, then padding to an 8-byte
// boundary. A tagged union is a struct body whose mask has one bit
// per variant, wrapping the selected variant's own struct body.
//
// # Parameter block types
//
// Parameter blocks are Go structs. Field encodings follow from the
// field's type and `finn` struct tag:
//
//	type Example struct {
//	    // Scalars may have an inclusive upper bound.
//	    TblSize uint32 `finn:"max=3"`
//	    // Slices are variable length, sized by an earlier field.
//	    Tbl []byte `finn:"count=TblSize"`
//	    // Or by a constant.
//	    Single []uint64 `finn:"count=1"`
//	    // Interfaces are tagged unions, discriminated by an earlier
//	    // UnionTag field.
//	    Kind I2CTransactionType
//	    Data I2CTransactionData `finn:"union=Kind"`
//	}
//
// # Ownership
//
// Buffers in a parameter block change hands depending on the
// [Direction] of travel. Serializing in the [Up] direction releases
// the sender's slices. Deserializing in the [Down] direction aliases
// byte buffers into the payload, and deserializing [Up] copies into
// buffers the receiver already owns.
//
// # Errors
//
// Every failure carries an RM [Status], which [StatusOf] extracts.
// Failures are logged at debug level to the global zap logger.
package finn
