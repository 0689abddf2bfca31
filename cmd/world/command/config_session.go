package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/session"
)

type ProtocolConfig struct {
	Revision     uint32 `json:"revision"`
	MaxFrameSize int    `json:"max_frame_size"`
}

func (c *ProtocolConfig) validate() error {
	if c.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must not be negative")
	}
	return nil
}

type SessionConfig struct {
	InboundQueue  int    `json:"inbound_queue"`
	OutboundQueue int    `json:"outbound_queue"`
	IdleTimeout   string `json:"idle_timeout"`
	LoginTimeout  string `json:"login_timeout"`
	WriteTimeout  string `json:"write_timeout"`
	FlushTimeout  string `json:"flush_timeout"`
}

func (c *SessionConfig) validate() error {
	el := errors.NewErrorList()

	if c.InboundQueue < 0 {
		el.Add(fmt.Errorf("inbound_queue must not be negative"))
	}
	if c.OutboundQueue < 0 {
		el.Add(fmt.Errorf("outbound_queue must not be negative"))
	}
	for name, v := range c.durations() {
		if _, err := optionalDuration(v); err != nil {
			el.Add(fmt.Errorf("parsing %s: %w", name, err))
		}
	}

	return el.Err()
}

func (c *SessionConfig) durations() map[string]string {
	return map[string]string{
		"idle_timeout":  c.IdleTimeout,
		"login_timeout": c.LoginTimeout,
		"write_timeout": c.WriteTimeout,
		"flush_timeout": c.FlushTimeout,
	}
}

// sessionConfig assumes validate has passed; unset values fall back to the
// session defaults.
func (c *SessionConfig) sessionConfig(p ProtocolConfig) session.Config {
	idle, _ := optionalDuration(c.IdleTimeout)
	login, _ := optionalDuration(c.LoginTimeout)
	write, _ := optionalDuration(c.WriteTimeout)
	flush, _ := optionalDuration(c.FlushTimeout)

	return session.Config{
		Revision:      p.Revision,
		MaxFrameSize:  p.MaxFrameSize,
		InboundQueue:  c.InboundQueue,
		OutboundQueue: c.OutboundQueue,
		IdleTimeout:   idle,
		LoginTimeout:  login,
		WriteTimeout:  write,
		FlushTimeout:  flush,
	}
}

func (c *SessionConfig) flushTimeout() time.Duration {
	d, _ := optionalDuration(c.FlushTimeout)
	if d == 0 {
		return session.DefaultFlushTimeout
	}
	return d
}
