// File: protocol/extension.go
// Author: momentics <momentics@gmail.com>
//
// Extension hook chain: an ordered chain of transforms run before Encode
// and after Decode, each entitled to set/clear a declared subset of
// RSV1..3. No concrete extension ships here — permessage-deflate's
// negotiation syntax is out of scope — but the hook point and the
// RSV-relaxation it requires of the codec are fully wired. The tests
// exercise the RSV relaxation through the codec's allowedRSV parameter;
// no test installs an Extension.

package protocol

import "github.com/momentics/wsproto/api"

// Extension is one link in the connection's extension chain.
type Extension interface {
	// Name identifies the extension, e.g. for Sec-WebSocket-Extensions
	// negotiation bookkeeping done elsewhere.
	Name() string

	// ClaimedRSV returns the bitmask (rsv1Bit|rsv2Bit|rsv3Bit) of RSV
	// bits this extension is allowed to set.
	ClaimedRSV() byte

	// OnOutgoing runs before a frame is handed to Encode.
	OnOutgoing(f *Frame) (*Frame, error)

	// OnIncoming runs after a frame comes back from Decode/DecodeInPlace.
	OnIncoming(f *Frame) (*Frame, error)
}

// ExtensionChain runs an ordered list of Extensions and tracks the union
// of RSV bits they are collectively permitted to use.
type ExtensionChain struct {
	extensions []Extension
	allowedRSV byte
}

// NewExtensionChain builds a chain from exts, in the order they should
// run on outgoing frames (incoming frames run the same order reversed,
// matching the usual encode/decode layering of codec transforms).
func NewExtensionChain(exts ...Extension) *ExtensionChain {
	c := &ExtensionChain{extensions: exts}
	for _, e := range exts {
		c.allowedRSV |= e.ClaimedRSV()
	}
	return c
}

// AllowedRSV is the bitmask to pass as Encode/Decode's allowedRSV
// parameter while this chain is active.
func (c *ExtensionChain) AllowedRSV() byte {
	if c == nil {
		return 0
	}
	return c.allowedRSV
}

// Outgoing runs f through every extension's OnOutgoing, in chain order.
func (c *ExtensionChain) Outgoing(f *Frame) (*Frame, error) {
	if c == nil {
		return f, nil
	}
	var err error
	for _, e := range c.extensions {
		if f, err = e.OnOutgoing(f); err != nil {
			return nil, api.NewExtensionError(e.Name() + ": " + err.Error())
		}
	}
	return f, nil
}

// Incoming runs f through every extension's OnIncoming, in reverse
// chain order (the last transform applied on the wire is undone first).
func (c *ExtensionChain) Incoming(f *Frame) (*Frame, error) {
	if c == nil {
		return f, nil
	}
	var err error
	for i := len(c.extensions) - 1; i >= 0; i-- {
		e := c.extensions[i]
		if f, err = e.OnIncoming(f); err != nil {
			return nil, api.NewExtensionError(e.Name() + ": " + err.Error())
		}
	}
	return f, nil
}
