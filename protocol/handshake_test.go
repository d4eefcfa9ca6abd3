package protocol

import (
	"bufio"
	"net/http"
	"strings"
	"testing"
)

func TestComputeAcceptRFCVector(t *testing.T) {
	got := ComputeAccept("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("ComputeAccept() = %q, want %q", got, want)
	}
}

func TestValidateUpgradeSuccess(t *testing.T) {
	raw := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadRequest error: %v", err)
	}

	result := ValidateUpgrade(req)
	if !result.Valid {
		t.Fatalf("expected valid, got error=%s", result.Error)
	}

	resp := BuildSwitchingProtocolsResponse(result.ClientKey, "", nil)
	if !strings.Contains(string(resp), "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=") {
		t.Fatalf("response missing expected accept header: %s", resp)
	}
	if !strings.HasPrefix(string(resp), "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Fatalf("response missing 101 status line: %s", resp)
	}
}

func TestValidateUpgradeRejections(t *testing.T) {
	base := map[string]string{
		"Host":                   "example.com",
		"Upgrade":                "websocket",
		"Connection":             "Upgrade",
		"Sec-WebSocket-Key":      "dGhlIHNhbXBsZSBub25jZQ==",
		"Sec-WebSocket-Version":  "13",
	}
	build := func(overrides map[string]string, method string) *http.Request {
		headers := map[string]string{}
		for k, v := range base {
			headers[k] = v
		}
		for k, v := range overrides {
			if v == "" {
				delete(headers, k)
			} else {
				headers[k] = v
			}
		}
		var b strings.Builder
		if method == "" {
			method = "GET"
		}
		b.WriteString(method + " /chat HTTP/1.1\r\n")
		for k, v := range headers {
			b.WriteString(k + ": " + v + "\r\n")
		}
		b.WriteString("\r\n")
		req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(b.String())))
		if err != nil {
			t.Fatalf("ReadRequest error: %v", err)
		}
		return req
	}

	cases := []struct {
		name      string
		overrides map[string]string
		method    string
		wantErr   string
	}{
		{"wrong method", nil, "POST", "method_not_allowed"},
		{"bad upgrade", map[string]string{"Upgrade": "h2c"}, "", "bad_upgrade"},
		{"bad connection", map[string]string{"Connection": "keep-alive"}, "", "bad_connection"},
		{"missing key", map[string]string{"Sec-WebSocket-Key": ""}, "", "bad_key"},
		{"short key", map[string]string{"Sec-WebSocket-Key": "dG9vc2hvcnQ="}, "", "bad_key"},
		{"bad version", map[string]string{"Sec-WebSocket-Version": "8"}, "", "unsupported_version"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := build(c.overrides, c.method)
			result := ValidateUpgrade(req)
			if result.Valid {
				t.Fatalf("expected invalid, got valid")
			}
			if result.Error != c.wantErr {
				t.Fatalf("error = %q, want %q", result.Error, c.wantErr)
			}
		})
	}
}

func TestSelectSubprotocolPreference(t *testing.T) {
	server := []string{"v2.chat", "v1.chat"}
	client := []string{"v1.chat", "v2.chat"}
	if got := SelectSubprotocol(server, client); got != "v2.chat" {
		t.Fatalf("SelectSubprotocol() = %q, want v2.chat (server preference order)", got)
	}
	if got := SelectSubprotocol(server, []string{"v3.chat"}); got != "" {
		t.Fatalf("SelectSubprotocol() = %q, want empty", got)
	}
}

func TestBadRequestResponseContentLength(t *testing.T) {
	resp := BuildBadRequestResponse("unsupported_version")
	body := "unsupported_version\n"
	want := "Content-Length: " + itoa(len(body))
	if !strings.Contains(string(resp), want) {
		t.Fatalf("response missing %q: %s", want, resp)
	}
	if !strings.HasSuffix(string(resp), body) {
		t.Fatalf("response body mismatch: %s", resp)
	}
	if !strings.Contains(string(resp), "Connection: close") {
		t.Fatalf("response missing Connection: close: %s", resp)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestClientServerHandshakeRoundTrip(t *testing.T) {
	key, err := GenerateClientKey()
	if err != nil {
		t.Fatalf("GenerateClientKey error: %v", err)
	}
	target, err := ParseURL("ws://example.com/chat")
	if err != nil {
		t.Fatalf("ParseURL error: %v", err)
	}
	reqBytes := BuildClientRequest(ClientHandshakeRequest{
		Target:       target,
		Key:          key,
		Subprotocols: []string{"v1.chat"},
	})

	req, err := http.ReadRequest(bufio.NewReader(strings.NewReader(string(reqBytes))))
	if err != nil {
		t.Fatalf("server failed to parse client request: %v", err)
	}
	result := ValidateUpgrade(req)
	if !result.Valid {
		t.Fatalf("server rejected client request: %s", result.Error)
	}
	selected := SelectSubprotocol([]string{"v1.chat"}, result.OfferedSubprotocols)

	respBytes := BuildSwitchingProtocolsResponse(result.ClientKey, selected, nil)
	gotProtocol, err := ValidateServerResponse(respBytes, key, []string{"v1.chat"})
	if err != nil {
		t.Fatalf("client rejected server response: %v", err)
	}
	if gotProtocol != "v1.chat" {
		t.Fatalf("negotiated protocol = %q, want v1.chat", gotProtocol)
	}
}
