// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT
//
// Package transport provides the one concrete api.Stream implementation
// this library ships: a thin wrapper over any net.Conn. Dialing,
// accepting, and deadline policy all remain the caller's responsibility
// — this adapter only turns net.Conn into the read/write primitives a
// Connection needs.

package transport

import (
	"io"
	"net"
	"sync/atomic"

	"github.com/momentics/wsproto/api"
)

// Conn adapts a net.Conn to api.Stream.
type Conn struct {
	conn   net.Conn
	closed atomic.Bool
}

// New wraps conn as an api.Stream. conn must already be connected.
func New(conn net.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read issues one net.Conn.Read and returns whatever came back. It is
// not non-blocking: net.Conn.Read waits until at least one byte or an
// error is available, so Read does not return immediately with zero
// bytes when nothing has arrived.
func (c *Conn) Read(buf []byte) (int, error) {
	n, err := c.conn.Read(buf)
	if err != nil {
		return n, err
	}
	return n, nil
}

// ReadExactly blocks until exactly n bytes have been read.
func (c *Conn) ReadExactly(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write blocks until all of buf has been written.
func (c *Conn) Write(buf []byte) error {
	_, err := c.conn.Write(buf)
	return err
}

// Flush is a no-op: net.Conn has no user-space write buffering to flush.
func (c *Conn) Flush() error {
	return nil
}

// Connected reports whether Close has been called. It does not probe the
// socket, since liveness is only discoverable via a failed Read/Write.
func (c *Conn) Connected() bool {
	return !c.closed.Load()
}

// Close closes the underlying net.Conn. Idempotent.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}

var _ api.Stream = (*Conn)(nil)
