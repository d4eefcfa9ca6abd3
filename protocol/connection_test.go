package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/transport"
)

func pipeConnections() (*Connection, *Connection) {
	clientRaw, serverRaw := net.Pipe()
	client := NewConnection(transport.New(clientRaw), NewConnectionConfig(api.ModeClient))
	server := NewConnection(transport.New(serverRaw), NewConnectionConfig(api.ModeServer))
	return client, server
}

func TestSmallTextFrameClientToServer(t *testing.T) {
	client, server := pipeConnections()

	done := make(chan error, 1)
	go func() { done <- client.SendText("Hi") }()

	msg, err := server.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendText() error: %v", err)
	}
	if msg.Type != api.MessageText || string(msg.Data) != "Hi" {
		t.Fatalf("Receive() = %+v, want Text \"Hi\"", msg)
	}
}

func TestFragmentedBinaryReassembly(t *testing.T) {
	client, server := pipeConnections()

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		first := &Frame{Fin: false, Opcode: OpcodeBinary, Payload: payload[:100]}
		second := &Frame{Fin: true, Opcode: OpcodeContinuation, Payload: payload[100:]}
		if err := server.sendFrame(first); err != nil {
			done <- err
			return
		}
		done <- server.sendFrame(second)
	}()

	msg, err := client.Receive()
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("send error: %v", err)
	}
	if msg.Type != api.MessageBinary || len(msg.Data) != 200 {
		t.Fatalf("Receive() = type=%v len=%d, want Binary len=200", msg.Type, len(msg.Data))
	}
	for i, b := range msg.Data {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

func TestAutoPongReplyNotSurfaced(t *testing.T) {
	client, server := pipeConnections()

	recvDone := make(chan struct{})
	go func() { server.Receive(); close(recvDone) }() // drives the server's auto-pong reply

	pingPayload := []byte{0xDE, 0xAD}
	errc := make(chan error, 1)
	go func() { errc <- client.Ping(pingPayload) }()

	pong, err := client.readPongForTest(t)
	_ = pong
	if err != nil {
		t.Fatalf("did not observe auto-pong: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	select {
	case <-recvDone:
		t.Fatal("server Receive() returned after the ping; it should keep waiting for data")
	case <-time.After(50 * time.Millisecond):
	}
}

// readPongForTest drains raw frames directly off the client's stream,
// bypassing Receive (which is driven by the peer in this test), to
// observe the server's auto-pong on the wire.
func (c *Connection) readPongForTest(t *testing.T) (*Frame, error) {
	t.Helper()
	raw, err := c.readRawFrame()
	if err != nil {
		return nil, err
	}
	frame, _, _, err := DecodeInPlace(raw, false, 0)
	if err != nil {
		return nil, err
	}
	if frame.Opcode != OpcodePong {
		t.Fatalf("expected Pong, got %v", frame.Opcode)
	}
	return frame, nil
}

func TestInvalidUTF8ClosesWithCode1007(t *testing.T) {
	client, server := pipeConnections()

	done := make(chan error, 1)
	go func() {
		err := server.sendFrame(&Frame{Fin: true, Opcode: OpcodeText, Payload: []byte{0xC0, 0x81}})
		server.stream.Close()
		done <- err
	}()

	_, err := client.Receive()
	if err := <-done; err != nil {
		t.Fatalf("send error: %v", err)
	}
	closedErr, ok := err.(*api.ConnectionClosed)
	if !ok {
		t.Fatalf("Receive() error type = %T, want *api.ConnectionClosed", err)
	}
	if closedErr.Code != api.CloseInvalidPayload {
		t.Fatalf("close code = %v, want %v", closedErr.Code, api.CloseInvalidPayload)
	}
}

func TestMessageSizeCapTriggersClose1009(t *testing.T) {
	client, server := pipeConnections()
	client.cfg.MaxMessageSize = 10

	done := make(chan error, 1)
	go func() {
		err := server.sendFrame(&Frame{Fin: true, Opcode: OpcodeBinary, Payload: make([]byte, 20)})
		server.stream.Close()
		done <- err
	}()

	_, err := client.Receive()
	<-done
	closedErr, ok := err.(*api.ConnectionClosed)
	if !ok {
		t.Fatalf("Receive() error type = %T, want *api.ConnectionClosed", err)
	}
	if closedErr.Code != api.CloseMessageTooBig {
		t.Fatalf("close code = %v, want %v", closedErr.Code, api.CloseMessageTooBig)
	}
}

func TestUnexpectedContinuationIsProtocolError(t *testing.T) {
	client, server := pipeConnections()

	done := make(chan error, 1)
	go func() {
		err := server.sendFrame(&Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("x")})
		server.stream.Close()
		done <- err
	}()

	_, err := client.Receive()
	<-done
	if _, ok := err.(*api.ProtocolError); !ok {
		t.Fatalf("Receive() error type = %T, want *api.ProtocolError", err)
	}
	if client.state != StateClosed {
		t.Fatalf("state = %v, want closed after best-effort 1002", client.state)
	}
}

func TestCloseIsIdempotentAndBounded(t *testing.T) {
	client, server := pipeConnections()

	serverDone := make(chan error, 1)
	go func() {
		_, err := server.Receive()
		serverDone <- err
	}()

	start := time.Now()
	if err := client.Close(api.CloseNormal, "bye"); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > closeDrainDeadline+time.Second {
		t.Fatalf("Close() took %v, want bounded by drain deadline", elapsed)
	}
	if err := client.Close(api.CloseNormal, "bye again"); err != nil {
		t.Fatalf("second Close() call returned error: %v", err)
	}
	if client.state != StateClosed {
		t.Fatalf("state = %v, want closed", client.state)
	}
	<-serverDone
}
