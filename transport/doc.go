// Package transport carries serialized FINN payloads between
// processes over Unix domain sockets.
//
// Each payload is self-delimiting: its header declares its full size,
// so messages are written back to back with no extra framing.
package transport
