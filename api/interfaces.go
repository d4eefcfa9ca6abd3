// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

// Stream is the byte-level duplex contract a Connection is driven
// against. It is consumed as an external collaborator: this library never
// dials, accepts, or configures timeouts on a socket, it only reads and
// writes bytes on one already connected.
//
// A Stream is exclusively owned by the Connection wrapping it. Read,
// ReadExactly and Write are the only operations that may suspend; a
// Connection never invokes them concurrently from two tasks.
type Stream interface {
	// Read performs a single non-blocking read attempt and returns
	// whatever is immediately available, which may be empty.
	Read(buf []byte) (n int, err error)

	// ReadExactly blocks until exactly n bytes have been read, or fails
	// with an error (including on EOF before n bytes arrive).
	ReadExactly(n int) ([]byte, error)

	// Write blocks until all of buf has been written.
	Write(buf []byte) error

	// Flush pushes any buffered output to the wire.
	Flush() error

	// Connected reports whether the stream still believes it is usable.
	Connected() bool

	// Close releases the underlying transport. Idempotent.
	Close() error
}
