package session

import (
	"time"

	"github.com/pixil98/go-world/internal/protocol"
)

const (
	DefaultRevision       = 317
	DefaultInboundQueue   = 50
	DefaultOutboundQueue  = 256
	DefaultIdleTimeout    = 60 * time.Second
	DefaultLoginTimeout   = 15 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
	DefaultFlushTimeout   = 2 * time.Second
	DefaultReadBufferSize = 4096
)

// Config bounds the resources one session may hold.
type Config struct {
	Revision       uint32
	MaxFrameSize   int
	InboundQueue   int
	OutboundQueue  int
	IdleTimeout    time.Duration
	LoginTimeout   time.Duration
	WriteTimeout   time.Duration
	FlushTimeout   time.Duration
	ReadBufferSize int
}

func (c Config) withDefaults() Config {
	if c.Revision == 0 {
		c.Revision = DefaultRevision
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = protocol.DefaultMaxFrameSize
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = DefaultInboundQueue
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = DefaultOutboundQueue
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = DefaultLoginTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	return c
}
