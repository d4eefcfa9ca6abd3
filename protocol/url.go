// File: protocol/url.go
// Author: momentics <momentics@gmail.com>
//
// ws://host[:port]/path and wss://host[:port]/path parsing, grounded on
// the URL handling inlined in client/client.go but factored into a
// standalone function.

package protocol

import (
	"net/url"
	"strings"

	"github.com/momentics/wsproto/api"
)

// TargetURL is a parsed ws:// or wss:// target.
type TargetURL struct {
	Secure bool
	Host   string // hostname, without port
	Port   string // always set, defaulted per scheme
	Path   string // always set, defaults to "/"
}

// CanonicalHost returns the value to send as the HTTP Host header: the
// host with the port elided when it equals the scheme's default.
func (t TargetURL) CanonicalHost() string {
	if (t.Secure && t.Port == "443") || (!t.Secure && t.Port == "80") {
		return t.Host
	}
	return t.Host + ":" + t.Port
}

// ParseURL parses raw as a ws:// or wss:// URL.
func ParseURL(raw string) (TargetURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return TargetURL{}, api.NewClientError("invalid URL: " + err.Error())
	}

	var secure bool
	switch strings.ToLower(u.Scheme) {
	case "ws":
		secure = false
	case "wss":
		secure = true
	default:
		return TargetURL{}, api.NewClientError("unsupported scheme: " + u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return TargetURL{}, api.NewClientError("missing host")
	}

	port := u.Port()
	if port == "" {
		if secure {
			port = "443"
		} else {
			port = "80"
		}
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return TargetURL{Secure: secure, Host: host, Port: port, Path: path}, nil
}
