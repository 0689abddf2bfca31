package command

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pixil98/go-errors"
	"golang.org/x/time/rate"

	"github.com/pixil98/go-world/internal/listener"
)

const DefaultPort = 43594

type ListenerConfig struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	MaxSessions int    `json:"max_sessions"`
	// RateLimit is the number of new connections per second accepted from
	// one host. Zero disables the limit.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`
}

func (c *ListenerConfig) validate() error {
	el := errors.NewErrorList()

	if c.Port < 0 || c.Port > 65535 {
		el.Add(fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MaxSessions < 0 {
		el.Add(fmt.Errorf("max_sessions must not be negative"))
	}
	if c.RateLimit < 0 {
		el.Add(fmt.Errorf("rate_limit must not be negative"))
	}
	if c.RateBurst < 0 {
		el.Add(fmt.Errorf("rate_burst must not be negative"))
	}

	return el.Err()
}

func (c *ListenerConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c *ListenerConfig) buildAcceptor(attacher listener.Attacher, obs listener.Observer) *listener.Acceptor {
	opts := []listener.AcceptorOpt{listener.WithObserver(obs)}
	if c.MaxSessions > 0 {
		opts = append(opts, listener.WithMaxSessions(c.MaxSessions))
	}
	if c.RateLimit > 0 {
		burst := c.RateBurst
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, listener.WithRateLimit(rate.Limit(c.RateLimit), burst))
	}
	return listener.NewAcceptor(c.addr(), attacher, opts...)
}
