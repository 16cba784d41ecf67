// Package paramcopy moves the buffers that legacy control parameter
// blocks point to between the caller's address space and the kernel.
//
// A legacy parameter block is copied verbatim by the ioctl layer, but
// its variable length buffers live behind embedded pointers. Before
// the control runs, [CopyIn] copies each buffer into a kernel buffer
// the control can use. Afterwards, [CopyOut] copies results back and
// restores the caller's pointers.
//
// Calls that arrive in the FINN wire format carry their buffers
// inline, and need no copying.
package paramcopy
