// File: protocol/handshake_server.go
// Author: momentics <momentics@gmail.com>
//
// Server-side opening handshake (RFC 6455 §4.2): request validation,
// Sec-WebSocket-Accept computation, subprotocol selection, and response
// construction. Consolidates three overlapping handshake variants
// (protocol/handshake.go, protocol/native_handshake.go,
// protocol/upgrader.go) into one path — between them none combined
// extension/subprotocol negotiation, the 400 response, and client-side
// validation in a single implementation.

package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// WebSocketGUID is the fixed magic constant from RFC 6455 §1.3.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ProtocolVersion is the only Sec-WebSocket-Version this library speaks.
const ProtocolVersion = "13"

// ComputeAccept computes Sec-WebSocket-Accept from a client's
// Sec-WebSocket-Key: Base64(SHA1(key + WebSocketGUID)). The key is used
// verbatim, never normalized.
func ComputeAccept(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(WebSocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// UpgradeRequest is the outcome of validating an incoming HTTP request
// for a WebSocket upgrade.
type UpgradeRequest struct {
	Valid               bool
	Error               string
	ClientKey           string
	OfferedSubprotocols []string
	OfferedExtensions   []string
}

// ValidateUpgrade validates r against the server-side upgrade rules.
// The zero-value UpgradeRequest.Error names are machine-checkable
// identifiers (method_not_allowed, missing_host, bad_upgrade,
// bad_connection, bad_key, unsupported_version), not full sentences.
func ValidateUpgrade(r *http.Request) UpgradeRequest {
	if r.Method != http.MethodGet {
		return UpgradeRequest{Error: "method_not_allowed"}
	}
	if r.Host == "" && r.Header.Get("Host") == "" {
		return UpgradeRequest{Error: "missing_host"}
	}
	if !strings.EqualFold(strings.TrimSpace(r.Header.Get("Upgrade")), "websocket") {
		return UpgradeRequest{Error: "bad_upgrade"}
	}
	if !headerContainsToken(r.Header, "Connection", "upgrade") {
		return UpgradeRequest{Error: "bad_connection"}
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if len(key) < 20 || len(key) > 30 {
		return UpgradeRequest{Error: "bad_key"}
	}
	if r.Header.Get("Sec-WebSocket-Version") != ProtocolVersion {
		return UpgradeRequest{Error: "unsupported_version"}
	}

	return UpgradeRequest{
		Valid:               true,
		ClientKey:           key,
		OfferedSubprotocols: splitCommaList(r.Header.Get("Sec-WebSocket-Protocol")),
		OfferedExtensions:   splitCommaList(r.Header.Get("Sec-WebSocket-Extensions")),
	}
}

// SelectSubprotocol returns the first entry in serverSupported that also
// appears in clientOffered, or "" if none match. Order is the server's
// preference.
func SelectSubprotocol(serverSupported, clientOffered []string) string {
	for _, want := range serverSupported {
		for _, have := range clientOffered {
			if want == have {
				return want
			}
		}
	}
	return ""
}

// BuildSwitchingProtocolsResponse constructs the success response bytes:
// status 101, Upgrade/Connection/Sec-WebSocket-Accept, and the optional
// selected subprotocol and joined extensions.
func BuildSwitchingProtocolsResponse(clientKey, selectedProtocol string, selectedExtensions []string) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", ComputeAccept(clientKey))
	if selectedProtocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", selectedProtocol)
	}
	if len(selectedExtensions) > 0 {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", strings.Join(selectedExtensions, ", "))
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// BuildBadRequestResponse constructs a 400 Bad Request response whose
// Content-Length matches the plain-text body exactly.
func BuildBadRequestResponse(reason string) []byte {
	body := reason + "\n"
	var b strings.Builder
	b.WriteString("HTTP/1.1 400 Bad Request\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func splitCommaList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func headerContainsToken(h http.Header, headerName, token string) bool {
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}
