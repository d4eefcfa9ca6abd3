// File: protocol/close.go
// Author: momentics <momentics@gmail.com>
//
// Close frame payload encoding/decoding: zero bytes, or a
// 2-byte big-endian code, or code + a UTF-8 reason, total at most 125
// bytes (the control-frame cap). Synthetic codes never reach the wire.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/wsproto/api"
)

// BuildClosePayload serializes a close code and reason for use as a
// Close frame's payload. A synthetic code (api.CloseCode.IsSynthetic)
// is served as "no payload" rather than placed on the wire. The
// reason is truncated, if necessary, so the total stays within the
// 125-byte control-frame limit.
func BuildClosePayload(code api.CloseCode, reason string) []byte {
	if code.IsSynthetic() {
		return nil
	}
	r := []byte(reason)
	if len(r) > maxControlPayload-2 {
		r = r[:maxControlPayload-2]
	}
	out := make([]byte, 2+len(r))
	binary.BigEndian.PutUint16(out, uint16(code))
	copy(out[2:], r)
	return out
}

// ParseClosePayload extracts the close code and reason from a Close
// frame's payload. An empty payload yields (CloseNoStatus, "", nil). A
// 1-byte payload is malformed (a code cannot be split across a single
// byte) and is rejected as a protocol error.
func ParseClosePayload(payload []byte) (api.CloseCode, string, error) {
	switch {
	case len(payload) == 0:
		return api.CloseNoStatus, "", nil
	case len(payload) == 1:
		return 0, "", api.NewProtocolError("close frame payload has a truncated status code")
	default:
		code := api.CloseCode(binary.BigEndian.Uint16(payload[:2]))
		reason := payload[2:]
		if !ValidUTF8(reason) {
			return 0, "", api.NewProtocolError("close frame reason is not valid UTF-8")
		}
		return code, string(reason), nil
	}
}
