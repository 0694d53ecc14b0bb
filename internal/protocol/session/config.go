package session

import (
	"time"

	"github.com/danmuck/mocapctl/internal/protocol/frame"
)

// Config defines transport/session timing defaults.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout is how far each read pushes the watchdog deadline.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Limits       frame.Limits
	// StrictLengths fails the stream when a record declares a scalar count
	// other than the negotiated channel dimension.
	StrictLengths bool
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      time.Second,
		WriteTimeout:     5 * time.Second,
		Limits:           frame.DefaultLimits(),
	}
}

// WithDefaults fills zero fields from DefaultConfig. Frame limits are clamped
// to the wire maximum.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.Limits.MaxLen == 0 || c.Limits.MaxLen > def.Limits.MaxLen {
		c.Limits.MaxLen = def.Limits.MaxLen
	}
	if c.Limits.MinLen == 0 || c.Limits.MinLen > c.Limits.MaxLen {
		c.Limits.MinLen = def.Limits.MinLen
	}
	return c
}
