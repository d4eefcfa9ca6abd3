// File: protocol/frame.go
// Author: momentics <momentics@gmail.com>
//
// Frame is the smallest unit exchanged on the wire (RFC 6455 §5). This
// file holds the value type and the invariant checks shared by Encode
// and Decode; grounded on WSFrame's value-type shape but split so
// validation is one function both codec directions call.

package protocol

import "github.com/momentics/wsproto/api"

// Frame is a single WebSocket frame, as decoded from or about to be
// written to the wire. It is a short-lived value: Payload may alias a
// caller-owned buffer (see DecodeInPlace) and must not be retained past
// the next decode/encode call on that buffer.
type Frame struct {
	Fin     bool
	RSV1    bool
	RSV2    bool
	RSV3    bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

// rsvByte packs RSV1..3 into the header bit layout.
func (f *Frame) rsvByte() byte {
	var b byte
	if f.RSV1 {
		b |= rsv1Bit
	}
	if f.RSV2 {
		b |= rsv2Bit
	}
	if f.RSV3 {
		b |= rsv3Bit
	}
	return b
}

// validate enforces the frame-level decode error policy, shared by Encode
// and Decode so both directions reject the same malformed frames.
// allowedRSV is the bitmask (rsv1Bit|rsv2Bit|rsv3Bit) of RSV bits a
// negotiated extension has claimed; pass 0 when no extension is active.
func (f *Frame) validate(allowedRSV byte) error {
	if !f.Opcode.valid() {
		return api.NewProtocolError("reserved opcode")
	}
	if f.rsvByte()&^allowedRSV != 0 {
		return api.NewProtocolError("RSV bit set without a negotiated extension")
	}
	if f.Opcode.IsControl() {
		if !f.Fin {
			return api.NewProtocolError("control frame must not be fragmented")
		}
		if len(f.Payload) > maxControlPayload {
			return api.NewProtocolError("control frame payload exceeds 125 bytes")
		}
	}
	return nil
}
