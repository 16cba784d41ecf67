// package fragments provides low-level encoding and decoding helpers
// to construct and parse FINN serialized parameter blocks.
//
// The provided encoder and decoder are very low level, and do not
// encode any FINN semantics beyond the wire primitives: packed
// scalars, zero padding to 8-byte boundaries, presence bytes and
// field masks. It is the caller's responsibility to produce valid
// FINN payloads using these tools.
//
// You should not need to use this package at all, unless you are
// writing your own union variant codecs, in which case your code
// will be handed a [fragments.Encoder]/[fragments.Decoder] and
// expected to produce correct FINN fragments with it.
package fragments
