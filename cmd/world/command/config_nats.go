package command

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/messaging"
)

const DefaultNatsPort = 4222

// NatsConfig runs an embedded broker in-process. When no lobby url is set the
// lobby client connects to it.
type NatsConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	StartTimeout string `json:"start_timeout"`
}

func (n *NatsConfig) validate() error {
	el := errors.NewErrorList()

	if n.StartTimeout != "" {
		d, err := time.ParseDuration(n.StartTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing start_timeout: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("start_timeout must be positive"))
		}
	}
	if n.Port < 0 || n.Port > 65535 {
		el.Add(fmt.Errorf("port %d out of range", n.Port))
	}

	return el.Err()
}

func (n *NatsConfig) host() string {
	if n.Host == "" {
		return "127.0.0.1"
	}
	return n.Host
}

func (n *NatsConfig) port() int {
	if n.Port == 0 {
		return DefaultNatsPort
	}
	return n.Port
}

// clientURL is where the embedded broker accepts connections, or "" when it
// is disabled.
func (n *NatsConfig) clientURL() string {
	if !n.Enabled {
		return ""
	}
	return "nats://" + net.JoinHostPort(n.host(), strconv.Itoa(n.port()))
}

func (n *NatsConfig) buildBroker() (*messaging.Broker, error) {
	opts := []messaging.BrokerOpt{
		messaging.WithHost(n.host()),
		messaging.WithPort(n.port()),
	}
	if n.StartTimeout != "" {
		d, err := time.ParseDuration(n.StartTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing start_timeout: %w", err)
		}
		opts = append(opts, messaging.WithStartTimeout(d))
	}

	s, err := messaging.NewBroker(opts...)
	if err != nil {
		return nil, err
	}

	return s, nil
}
