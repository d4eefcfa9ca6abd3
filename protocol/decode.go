// File: protocol/decode.go
// Author: momentics <momentics@gmail.com>
//
// Streaming frame decoder. Grounded on
// DecodeFrameFromBytes (protocol/frame_codec.go), which already returns
// (frame, consumed, err) with a nil frame meaning "incomplete" — this
// extends that three-tuple with a minimum-additional-bytes hint callers
// use to size their next read.

package protocol

import (
	"encoding/binary"
	"math"

	"github.com/momentics/wsproto/api"
)

// Decode attempts to parse one frame from the front of buf.
//
//   - If buf holds a complete frame, it returns (frame, consumed, 0, nil)
//     where consumed is the number of bytes occupied by that frame.
//   - If buf is a valid but incomplete prefix, it returns
//     (nil, 0, needMore, nil) where needMore is the minimum number of
//     additional bytes required before decoding can make progress.
//   - If buf is malformed, it returns (nil, 0, 0, err) with a
//     *api.ProtocolError.
//
// requireMasked enforces the masking direction: true for a server
// decoding client frames, false for a client decoding server frames (in
// which case a masked frame is itself a protocol violation).
// allowedRSV is the bitmask of RSV bits a negotiated extension claims.
func Decode(buf []byte, requireMasked bool, allowedRSV byte) (frame *Frame, consumed int, needMore int, err error) {
	return decode(buf, requireMasked, allowedRSV, false)
}

// DecodeInPlace has the same contract as Decode, but when the frame is
// masked the payload is unmasked inside buf and the returned Frame's
// Payload aliases buf rather than a fresh allocation. This is the hot
// path used by the connection state machine: callers must not
// reuse buf's payload region until they are done with the returned
// Frame.
func DecodeInPlace(buf []byte, requireMasked bool, allowedRSV byte) (frame *Frame, consumed int, needMore int, err error) {
	return decode(buf, requireMasked, allowedRSV, true)
}

func decode(buf []byte, requireMasked bool, allowedRSV byte, inPlace bool) (*Frame, int, int, error) {
	if len(buf) < 2 {
		return nil, 0, 2 - len(buf), nil
	}

	b0, b1 := buf[0], buf[1]
	fin := b0&finBit != 0
	opcode := Opcode(b0 & 0x0F)
	masked := b1&maskBit != 0
	lenField := b1 &^ maskBit

	extLen := 0
	switch lenField {
	case 126:
		extLen = 2
	case 127:
		extLen = 8
	}

	headerLen := 2 + extLen
	if len(buf) < headerLen {
		return nil, 0, headerLen - len(buf), nil
	}

	var payloadLen uint64
	switch lenField {
	case 126:
		payloadLen = uint64(binary.BigEndian.Uint16(buf[2:4]))
	case 127:
		payloadLen = binary.BigEndian.Uint64(buf[2:10])
		if payloadLen&(1<<63) != 0 {
			return nil, 0, 0, api.NewProtocolError("64-bit length field has the most significant bit set")
		}
	default:
		payloadLen = uint64(lenField)
	}

	maskKeyLen := 0
	if masked {
		maskKeyLen = 4
	}
	prefixLen := headerLen + maskKeyLen

	if payloadLen > uint64(math.MaxInt-prefixLen) {
		return nil, 0, 0, api.NewProtocolError("frame payload length overflows addressable memory")
	}
	need := prefixLen + int(payloadLen)
	if len(buf) < need {
		return nil, 0, need - len(buf), nil
	}

	var maskKey [4]byte
	if masked {
		copy(maskKey[:], buf[headerLen:headerLen+4])
	}

	var payload []byte
	if inPlace {
		payload = buf[prefixLen:need]
		if masked {
			ApplyMask(payload, maskKey)
		}
	} else {
		payload = make([]byte, payloadLen)
		copy(payload, buf[prefixLen:need])
		if masked {
			ApplyMask(payload, maskKey)
		}
	}

	f := &Frame{
		Fin:     fin,
		RSV1:    b0&rsv1Bit != 0,
		RSV2:    b0&rsv2Bit != 0,
		RSV3:    b0&rsv3Bit != 0,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}

	if masked != requireMasked {
		if requireMasked {
			return nil, 0, 0, api.NewProtocolError("unmasked frame received where masking is required")
		}
		return nil, 0, 0, api.NewProtocolError("masked frame received where masking is forbidden")
	}

	if err := f.validate(allowedRSV); err != nil {
		return nil, 0, 0, err
	}

	return f, need, 0, nil
}
