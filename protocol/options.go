// File: protocol/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for ConnectionConfig, in the style of
// server.ServerOption (server/options.go): small setter closures applied
// in order over a config pre-filled with defaults.

package protocol

import "github.com/momentics/wsproto/api"

// ConnectionConfig bounds a Connection's framing, message, and negotiation
// behavior. The zero value is not directly usable; build one with
// NewConnectionConfig.
type ConnectionConfig struct {
	Mode          api.Mode
	MaxFrameSize  int64
	MaxMessageSize int64
	AutoReplyPing bool
	Subprotocols  []string
	Extensions    *ExtensionChain
	CloseDrainMax int // bounded drain loop frame cap
}

const (
	defaultMaxFrameSize   = 64 << 10 // 64 KiB
	defaultMaxMessageSize = 16 << 20 // 16 MiB
	defaultCloseDrainMax  = 100
)

// ConnectionOption customizes a ConnectionConfig.
type ConnectionOption func(*ConnectionConfig)

// NewConnectionConfig builds a ConnectionConfig for mode with opts applied
// over sane defaults.
func NewConnectionConfig(mode api.Mode, opts ...ConnectionOption) *ConnectionConfig {
	cfg := &ConnectionConfig{
		Mode:           mode,
		MaxFrameSize:   defaultMaxFrameSize,
		MaxMessageSize: defaultMaxMessageSize,
		AutoReplyPing:  true,
		CloseDrainMax:  defaultCloseDrainMax,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithMaxFrameSize caps the size of a single frame's payload.
func WithMaxFrameSize(n int64) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.MaxFrameSize = n
	}
}

// WithMaxMessageSize caps the size of a reassembled message.
func WithMaxMessageSize(n int64) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.MaxMessageSize = n
	}
}

// WithAutoReplyPing controls whether an incoming Ping is answered
// automatically with a Pong carrying the identical payload.
func WithAutoReplyPing(enabled bool) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.AutoReplyPing = enabled
	}
}

// WithSubprotocols sets the offered (client) or supported (server) list.
func WithSubprotocols(protocols ...string) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.Subprotocols = protocols
	}
}

// WithExtensions installs the ordered extension chain.
func WithExtensions(chain *ExtensionChain) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.Extensions = chain
	}
}

// WithCloseDrainMax overrides the maximum number of frames read while
// draining towards a peer's Close during a locally initiated close.
func WithCloseDrainMax(n int) ConnectionOption {
	return func(c *ConnectionConfig) {
		c.CloseDrainMax = n
	}
}
