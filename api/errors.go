// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared across protocol and backpressure.
// Each kind is a distinct Go type rather than a single code-carrying
// struct, so callers can use errors.As to recover the fields they need
// (e.g. ConnectionClosed.Code) instead of inspecting a generic context map.

package api

import "fmt"

// ProtocolError is a wire-format or invariant violation detected locally
// by the codec or the connection state machine. The codec never performs
// I/O, so it only ever raises ProtocolError, never StreamError.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("websocket protocol error: %s", e.Reason)
}

// NewProtocolError constructs a ProtocolError with the given reason.
func NewProtocolError(reason string) *ProtocolError {
	return &ProtocolError{Reason: reason}
}

// HandshakeError is an HTTP upgrade request/response validation failure.
// There are no retries inside the library.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket handshake error: %s", e.Reason)
}

// NewHandshakeError constructs a HandshakeError with the given reason.
func NewHandshakeError(reason string) *HandshakeError {
	return &HandshakeError{Reason: reason}
}

// ConnectionClosed means the connection is no longer usable. Code is
// CloseAbnormalClosure (synthetic 1006) when the stream died without a
// Close frame ever being observed.
type ConnectionClosed struct {
	Code   CloseCode
	Reason string
}

func (e *ConnectionClosed) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket connection closed: code=%s", e.Code)
	}
	return fmt.Sprintf("websocket connection closed: code=%s reason=%q", e.Code, e.Reason)
}

// NewConnectionClosed constructs a ConnectionClosed error.
func NewConnectionClosed(code CloseCode, reason string) *ConnectionClosed {
	return &ConnectionClosed{Code: code, Reason: reason}
}

// StreamError wraps an I/O failure surfaced by the underlying Stream.
// Callers that do not differentiate may treat it as
// ConnectionClosed(AbnormalClosure, "").
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("websocket stream error: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// NewStreamError wraps err as a StreamError. Returns nil if err is nil.
func NewStreamError(err error) *StreamError {
	if err == nil {
		return nil
	}
	return &StreamError{Err: err}
}

// ExtensionError means a negotiated extension transform refused or
// mangled a frame.
type ExtensionError struct {
	Reason string
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("websocket extension error: %s", e.Reason)
}

// NewExtensionError constructs an ExtensionError with the given reason.
func NewExtensionError(reason string) *ExtensionError {
	return &ExtensionError{Reason: reason}
}

// ClientError means URL parsing or client-side handshake orchestration
// failed.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("websocket client error: %s", e.Reason)
}

// NewClientError constructs a ClientError with the given reason.
func NewClientError(reason string) *ClientError {
	return &ClientError{Reason: reason}
}
