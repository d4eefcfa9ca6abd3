// File: protocol/handshake_client.go
// Author: momentics <momentics@gmail.com>
//
// Client-side opening handshake: nonce generation,
// request construction, and response validation. Grounded on the
// handshake-request assembly inlined in client/client.go, extracted
// here as pure functions over bytes so they can be tested without a
// socket.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/momentics/wsproto/api"
)

// GenerateClientKey returns a fresh, base64-encoded 16-byte nonce to use
// as Sec-WebSocket-Key.
func GenerateClientKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// ClientHandshakeRequest describes the request BuildClientRequest emits.
type ClientHandshakeRequest struct {
	Target       TargetURL
	Key          string
	Subprotocols []string
	ExtraHeaders http.Header
}

// BuildClientRequest serializes the opening HTTP request.
func BuildClientRequest(req ClientHandshakeRequest) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", req.Target.Path)
	fmt.Fprintf(&b, "Host: %s\r\n", req.Target.CanonicalHost())
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", req.Key)
	fmt.Fprintf(&b, "Sec-WebSocket-Version: %s\r\n", ProtocolVersion)
	if len(req.Subprotocols) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(req.Subprotocols, ", "))
	}
	for k, vs := range req.ExtraHeaders {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// ValidateServerResponse parses and validates the server's handshake
// response against the request that produced key and offeredProtocols.
// Returns the negotiated subprotocol (possibly "").
func ValidateServerResponse(raw []byte, key string, offeredProtocols []string) (string, error) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(raw)), nil)
	if err != nil {
		return "", api.NewHandshakeError("malformed response: " + err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return "", api.NewHandshakeError(fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}
	if !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Upgrade")), "websocket") {
		return "", api.NewHandshakeError("missing or invalid Upgrade header")
	}
	if !headerContainsToken(resp.Header, "Connection", "upgrade") {
		return "", api.NewHandshakeError("missing or invalid Connection header")
	}

	want := ComputeAccept(key)
	got := resp.Header.Get("Sec-WebSocket-Accept")
	if got != want {
		return "", api.NewHandshakeError("Sec-WebSocket-Accept mismatch")
	}

	selected := resp.Header.Get("Sec-WebSocket-Protocol")
	if selected != "" && !contains(offeredProtocols, selected) {
		return "", api.NewHandshakeError("server selected a subprotocol we did not offer")
	}
	return selected, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
