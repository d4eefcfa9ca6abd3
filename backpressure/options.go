// File: backpressure/options.go
// Author: momentics <momentics@gmail.com>
//
// Functional options for BackpressureConfig, following the same
// ServerOption idiom used in server/options.go.

package backpressure

import "time"

// SlowClientPolicy selects what happens when a client has been
// Paused/Critical continuously for longer than SlowClientTimeout.
type SlowClientPolicy int

const (
	// Disconnect closes the connection with code 1008, reason
	// "slow client".
	Disconnect SlowClientPolicy = iota
	// DropMessages clears the buffer, accounting every dropped item,
	// and re-evaluates state.
	DropMessages
	// LogOnly only fires OnSlowClient.
	LogOnly
	// Custom only fires OnSlowClient; the application decides.
	Custom
)

const (
	defaultMaxBytes          = 1 << 20 // 1 MiB
	defaultMaxMessages       = 1024
	defaultHighWaterFraction = 0.75
	defaultLowWaterFraction  = 0.25
	defaultSlowClientTimeout = 30 * time.Second
)

// BackpressureConfig bounds a Wrapper's SendBuffer and slow-client
// behavior. The zero value is not directly usable; build one with
// NewBackpressureConfig.
type BackpressureConfig struct {
	MaxBytes          int64
	MaxMessages       int
	HighWater         int64
	LowWater          int64
	Mode              OrderingMode
	SlowClientTimeout time.Duration
	SlowClientPolicy  SlowClientPolicy

	OnStateChange func(old, new FlowState)
	OnDrain       func()
	OnSlowClient  func()
}

// BackpressureOption customizes a BackpressureConfig.
type BackpressureOption func(*BackpressureConfig)

// NewBackpressureConfig builds a BackpressureConfig with opts applied
// over sane defaults derived from MaxBytes (high/low water marks at
// 75%/25% of capacity).
func NewBackpressureConfig(opts ...BackpressureOption) *BackpressureConfig {
	cfg := &BackpressureConfig{
		MaxBytes:          defaultMaxBytes,
		MaxMessages:       defaultMaxMessages,
		Mode:              OrderingPriority,
		SlowClientTimeout: defaultSlowClientTimeout,
		SlowClientPolicy:  Disconnect,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.HighWater == 0 && cfg.LowWater == 0 {
		cfg.HighWater = int64(float64(cfg.MaxBytes) * defaultHighWaterFraction)
		cfg.LowWater = int64(float64(cfg.MaxBytes) * defaultLowWaterFraction)
	}
	return cfg
}

// WithCapacity sets MaxBytes/MaxMessages.
func WithCapacity(maxBytes int64, maxMessages int) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.MaxBytes = maxBytes
		c.MaxMessages = maxMessages
	}
}

// WithWaterMarks overrides the high/low water marks directly.
func WithWaterMarks(high, low int64) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.HighWater = high
		c.LowWater = low
	}
}

// WithOrderingMode selects priority or FIFO dequeue ordering.
func WithOrderingMode(mode OrderingMode) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.Mode = mode
	}
}

// WithSlowClientTimeout sets how long a continuous Paused/Critical
// streak must persist before the client is marked slow.
func WithSlowClientTimeout(d time.Duration) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.SlowClientTimeout = d
	}
}

// WithSlowClientPolicy selects the dispatch policy on slow-client
// detection.
func WithSlowClientPolicy(p SlowClientPolicy) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.SlowClientPolicy = p
	}
}

// WithOnStateChange installs a hook fired exactly once per external
// FlowState transition.
func WithOnStateChange(fn func(old, new FlowState)) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.OnStateChange = fn
	}
}

// WithOnDrain installs a hook fired when the buffer transitions back to
// Flowing from Paused or Critical.
func WithOnDrain(fn func()) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.OnDrain = fn
	}
}

// WithOnSlowClient installs a hook fired once when a slow client is
// detected, regardless of SlowClientPolicy.
func WithOnSlowClient(fn func()) BackpressureOption {
	return func(c *BackpressureConfig) {
		c.OnSlowClient = fn
	}
}
