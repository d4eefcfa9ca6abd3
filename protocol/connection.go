// File: protocol/connection.go
// Author: momentics <momentics@gmail.com>
//
// Connection state machine: message reassembly from fragments,
// interleaved control-frame handling, the close handshake, and UTF-8
// enforcement on finalized text messages. Grounded on WSConnection
// (protocol/connection.go) — recvLoop's per-frame dispatch,
// handleControl's ping/pong/close switch, and SendFrame's
// encode-then-write shape are kept, but rebuilt around the blocking
// api.Stream contract in place of a channel-driven transport, and
// extended with fragment reassembly, UTF-8 validation, and a bounded
// close-drain loop a single-frame handleControl never needed.

package protocol

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/momentics/wsproto/api"
)

// State is the connection's place in the close handshake lifecycle.
type State int

const (
	StateOpen State = iota
	StateClosingLocal
	StateClosingRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosingLocal:
		return "closing_local"
	case StateClosingRemote:
		return "closing_remote"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// closeDrainDeadline bounds Close's drain loop by wall clock in addition
// to the frame-count cap in ConnectionConfig.CloseDrainMax.
const closeDrainDeadline = 5 * time.Second

// Connection drives a single WebSocket session over an api.Stream. It is
// not safe for concurrent Send*/Receive calls from different goroutines;
// see the package-level concurrency contract.
type Connection struct {
	stream api.Stream
	cfg    *ConnectionConfig

	state State

	inFragment    bool
	pendingOpcode Opcode
	fragmentBuf   []byte

	awaitingPong bool
	lastPongTime time.Time

	closeSent     bool
	closingRemote bool
	closeCode     api.CloseCode
	closeReason   string

	framesReceived int64
	framesSent     int64
	bytesReceived  int64
	bytesSent      int64
}

// NewConnection builds a Connection over stream, governed by cfg.
func NewConnection(stream api.Stream, cfg *ConnectionConfig) *Connection {
	return &Connection{stream: stream, cfg: cfg, state: StateOpen}
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// Stats returns a snapshot of frame/byte counters for metrics reporting.
func (c *Connection) Stats() map[string]int64 {
	return map[string]int64{
		"frames_received": c.framesReceived,
		"frames_sent":     c.framesSent,
		"bytes_received":  c.bytesReceived,
		"bytes_sent":      c.bytesSent,
	}
}

func (c *Connection) allowedRSV() byte { return c.cfg.Extensions.AllowedRSV() }

// SendText sends s as one Text data frame with fin=true. There is no
// outbound fragmentation; each call to SendText/SendBinary produces
// exactly one frame.
func (c *Connection) SendText(s string) error {
	return c.sendData(OpcodeText, []byte(s))
}

// SendBinary sends b as one Binary data frame with fin=true.
func (c *Connection) SendBinary(b []byte) error {
	return c.sendData(OpcodeBinary, b)
}

func (c *Connection) sendData(opcode Opcode, payload []byte) error {
	if c.state != StateOpen {
		return api.NewConnectionClosed(c.closeCode, c.closeReason)
	}
	return c.sendFrame(&Frame{Fin: true, Opcode: opcode, Payload: payload})
}

// Ping sends a Ping control frame and marks awaiting_pong.
func (c *Connection) Ping(payload []byte) error {
	if len(payload) > maxControlPayload {
		return api.NewProtocolError("ping payload exceeds 125 bytes")
	}
	if c.state != StateOpen {
		return api.NewConnectionClosed(c.closeCode, c.closeReason)
	}
	if err := c.sendFrame(&Frame{Fin: true, Opcode: OpcodePing, Payload: payload}); err != nil {
		return err
	}
	c.awaitingPong = true
	return nil
}

// Pong sends an unsolicited Pong control frame.
func (c *Connection) Pong(payload []byte) error {
	if len(payload) > maxControlPayload {
		return api.NewProtocolError("pong payload exceeds 125 bytes")
	}
	if c.state != StateOpen {
		return api.NewConnectionClosed(c.closeCode, c.closeReason)
	}
	return c.sendFrame(&Frame{Fin: true, Opcode: OpcodePong, Payload: payload})
}

// Close is idempotent. The first call sends a Close frame and drains
// incoming frames until the peer's Close is observed or the bounded
// budget elapses, then closes the underlying stream. Close never
// returns an error to the caller; outcomes are observable via
// subsequent receive()/Connected() calls, per the propagation policy.
func (c *Connection) Close(code api.CloseCode, reason string) error {
	if c.state == StateClosed {
		return nil
	}
	if !c.closeSent {
		payload := BuildClosePayload(code, reason)
		_ = c.sendFrame(&Frame{Fin: true, Opcode: OpcodeClose, Payload: payload})
		c.closeSent = true
		if c.state == StateOpen {
			c.state = StateClosingLocal
		}
	}

	deadline := time.Now().Add(closeDrainDeadline)
	for i := 0; i < c.cfg.CloseDrainMax && c.state != StateClosed; i++ {
		if time.Now().After(deadline) {
			break
		}
		raw, err := c.readRawFrame()
		if err != nil {
			break
		}
		frame, _, _, err := DecodeInPlace(raw, c.requireMasked(), c.allowedRSV())
		if err != nil {
			continue
		}
		if frame.Opcode == OpcodeClose {
			parsedCode, parsedReason, _ := ParseClosePayload(frame.Payload)
			c.closingRemote = true
			c.closeCode = parsedCode
			c.closeReason = parsedReason
			break
		}
	}

	c.state = StateClosed
	if c.closeCode == 0 {
		// closeCode is still unset: the drain loop never observed a peer
		// Close frame, so the local code/reason passed to this call is
		// what's reported. Real close codes start at 1000, so 0 is a
		// safe "not yet set" sentinel.
		c.closeCode = code
		c.closeReason = reason
	}
	_ = c.stream.Close()
	return nil
}

// Connected reports whether the connection is still open for sending.
func (c *Connection) Connected() bool {
	return c.state == StateOpen && c.stream.Connected()
}

// Receive drives the state machine until it can return a data message,
// or returns a *api.ConnectionClosed error once the connection is no
// longer usable.
func (c *Connection) Receive() (api.Message, error) {
	for {
		if c.state == StateClosed {
			return api.Message{}, api.NewConnectionClosed(c.closeCode, c.closeReason)
		}

		raw, err := c.readRawFrame()
		if pe, ok := err.(*api.ProtocolError); ok {
			return api.Message{}, c.failProtocol(pe)
		}
		if err != nil {
			c.failAbnormal()
			return api.Message{}, api.NewConnectionClosed(api.CloseAbnormalClosure, "")
		}

		frame, _, _, err := DecodeInPlace(raw, c.requireMasked(), c.allowedRSV())
		if err != nil {
			return api.Message{}, c.failProtocol(err)
		}
		c.framesReceived++
		c.bytesReceived += int64(len(frame.Payload))

		if c.cfg.Extensions != nil {
			frame, err = c.cfg.Extensions.Incoming(frame)
			if err != nil {
				return api.Message{}, c.failProtocol(err)
			}
		}

		if frame.Opcode.IsControl() {
			msg, handled, err := c.handleControl(frame)
			if err != nil {
				return msg, err
			}
			if handled {
				continue
			}
			return msg, nil
		}

		msg, err := c.reassemble(frame)
		if err != nil {
			return api.Message{}, err
		}
		if msg == nil {
			continue
		}
		return *msg, nil
	}
}

// handleControl processes Ping/Pong/Close. It returns handled=true when
// the loop in Receive should continue without surfacing a message; a
// surfaced Ping (auto_reply_ping disabled) returns handled=false.
func (c *Connection) handleControl(frame *Frame) (api.Message, bool, error) {
	switch frame.Opcode {
	case OpcodePing:
		if c.cfg.AutoReplyPing {
			if err := c.sendFrame(&Frame{Fin: true, Opcode: OpcodePong, Payload: frame.Payload}); err != nil {
				c.failAbnormal()
				return api.Message{}, true, api.NewConnectionClosed(api.CloseAbnormalClosure, "")
			}
			return api.Message{}, true, nil
		}
		return api.Message{Type: api.MessagePing, Data: frame.Payload}, false, nil

	case OpcodePong:
		c.awaitingPong = false
		c.lastPongTime = time.Now()
		return api.Message{}, true, nil

	case OpcodeClose:
		code, reason, _ := ParseClosePayload(frame.Payload)
		c.closingRemote = true
		if !c.closeSent {
			_ = c.sendFrame(&Frame{Fin: true, Opcode: OpcodeClose, Payload: frame.Payload})
			c.closeSent = true
		}
		c.state = StateClosed
		c.closeCode = code
		c.closeReason = reason
		_ = c.stream.Close()
		return api.Message{}, true, api.NewConnectionClosed(code, reason)

	default:
		return api.Message{}, false, c.failProtocol(api.NewProtocolError("unexpected control opcode"))
	}
}

// reassemble folds a data frame into the in-progress fragment buffer
// and, once fin=true, finalizes and returns the assembled Message.
// Returns (nil, nil) when the message is not yet complete.
func (c *Connection) reassemble(frame *Frame) (*api.Message, error) {
	switch frame.Opcode {
	case OpcodeText, OpcodeBinary:
		if c.inFragment {
			return nil, c.failProtocol(api.NewProtocolError("unexpected new data frame mid-fragment"))
		}
		c.inFragment = true
		c.pendingOpcode = frame.Opcode
		c.fragmentBuf = append(c.fragmentBuf[:0], frame.Payload...)

	case OpcodeContinuation:
		if !c.inFragment {
			return nil, c.failProtocol(api.NewProtocolError("unexpected continuation"))
		}
		c.fragmentBuf = append(c.fragmentBuf, frame.Payload...)

	default:
		return nil, c.failProtocol(api.NewProtocolError("unexpected data opcode"))
	}

	if int64(len(c.fragmentBuf)) > c.cfg.MaxMessageSize {
		c.resetFragment()
		c.Close(api.CloseMessageTooBig, "message too big")
		return nil, api.NewConnectionClosed(api.CloseMessageTooBig, "message too big")
	}

	if !frame.Fin {
		return nil, nil
	}

	msgType := api.MessageBinary
	if c.pendingOpcode == OpcodeText {
		msgType = api.MessageText
	}

	if msgType == api.MessageText && !ValidUTF8(c.fragmentBuf) {
		c.resetFragment()
		c.Close(api.CloseInvalidPayload, "Invalid UTF-8")
		return nil, api.NewConnectionClosed(api.CloseInvalidPayload, "Invalid UTF-8")
	}

	data := append([]byte(nil), c.fragmentBuf...)
	c.resetFragment()
	return &api.Message{Type: msgType, Data: data}, nil
}

func (c *Connection) resetFragment() {
	c.inFragment = false
	c.fragmentBuf = c.fragmentBuf[:0]
}

// failProtocol issues a best-effort Close(1002) and returns the original
// error, per the receive-path protocol-error propagation policy.
func (c *Connection) failProtocol(err error) error {
	c.Close(api.CloseProtocolError, "")
	return err
}

func (c *Connection) failAbnormal() {
	c.state = StateClosed
	c.closeCode = api.CloseAbnormalClosure
	c.closeReason = ""
	_ = c.stream.Close()
}

func (c *Connection) requireMasked() bool {
	return c.cfg.Mode == api.ModeServer
}

// sendFrame runs f through the extension chain, masks it when this
// connection is a client, and writes it to the stream.
func (c *Connection) sendFrame(f *Frame) error {
	var err error
	if c.cfg.Extensions != nil {
		f, err = c.cfg.Extensions.Outgoing(f)
		if err != nil {
			return err
		}
	}
	if c.cfg.Mode == api.ModeClient {
		f.Masked = true
		f.MaskKey, err = GenerateMaskKey()
		if err != nil {
			return api.NewStreamError(err)
		}
	}
	buf, err := Encode(f, c.allowedRSV())
	if err != nil {
		return err
	}
	if err := c.stream.Write(buf); err != nil {
		return api.NewStreamError(err)
	}
	if err := c.stream.Flush(); err != nil {
		return api.NewStreamError(err)
	}
	c.framesSent++
	c.bytesSent += int64(len(f.Payload))
	return nil
}

// readRawFrame reads one frame's header, extended length, mask key (if
// present), and payload off the stream in sequence, then hands the
// fully assembled bytes to DecodeInPlace at the caller.
func (c *Connection) readRawFrame() ([]byte, error) {
	hdr, err := c.stream.ReadExactly(2)
	if err != nil {
		return nil, err
	}
	b1 := hdr[1]
	len7 := b1 &^ maskBit

	var extra []byte
	switch len7 {
	case 126:
		extra, err = c.stream.ReadExactly(2)
	case 127:
		extra, err = c.stream.ReadExactly(8)
	}
	if err != nil {
		return nil, err
	}

	var payloadLen int64
	switch len7 {
	case 126:
		payloadLen = int64(binary.BigEndian.Uint16(extra))
	case 127:
		v := binary.BigEndian.Uint64(extra)
		if v&(1<<63) != 0 {
			return nil, api.NewProtocolError("64-bit length MSB must be zero")
		}
		if v > uint64(math.MaxInt64) {
			return nil, api.NewProtocolError("frame length overflow")
		}
		payloadLen = int64(v)
	default:
		payloadLen = int64(len7)
	}

	if payloadLen > c.cfg.MaxFrameSize {
		return nil, api.NewProtocolError("frame exceeds max_frame_size")
	}

	var maskKey []byte
	if b1&maskBit != 0 {
		maskKey, err = c.stream.ReadExactly(4)
		if err != nil {
			return nil, err
		}
	}

	var payload []byte
	if payloadLen > 0 {
		payload, err = c.stream.ReadExactly(int(payloadLen))
		if err != nil {
			return nil, err
		}
	}

	raw := make([]byte, 0, 2+len(extra)+len(maskKey)+len(payload))
	raw = append(raw, hdr[0], hdr[1])
	raw = append(raw, extra...)
	raw = append(raw, maskKey...)
	raw = append(raw, payload...)
	return raw, nil
}
