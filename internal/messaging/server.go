package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

const (
	DefaultBrokerHost   = "127.0.0.1"
	DefaultStartTimeout = 10 * time.Second
	RandomPort          = -1
)

var ErrInvalidOption = errors.New("invalid broker option")

// BrokerOpt adjusts the embedded broker before it is created.
type BrokerOpt func(*Broker) error

// WithStartTimeout bounds how long Start waits for the broker to accept
// connections.
func WithStartTimeout(d time.Duration) BrokerOpt {
	return func(b *Broker) error {
		if d <= 0 {
			return fmt.Errorf("%w: start timeout %s", ErrInvalidOption, d)
		}
		b.startTimeout = d
		return nil
	}
}

func WithHost(host string) BrokerOpt {
	return func(b *Broker) error {
		if host == "" {
			return fmt.Errorf("%w: empty host", ErrInvalidOption)
		}
		b.host = host
		return nil
	}
}

// WithPort sets the client port. RandomPort picks a free one, which is then
// only known through ClientURL once Ready is closed.
func WithPort(port int) BrokerOpt {
	return func(b *Broker) error {
		if port < RandomPort || port > 65535 {
			return fmt.Errorf("%w: port %d", ErrInvalidOption, port)
		}
		b.port = port
		return nil
	}
}

// Broker is an embedded NATS server the lobby client can use when no
// external broker is configured.
type Broker struct {
	ns    *server.Server
	ready chan struct{}

	startTimeout time.Duration
	host         string
	port         int
}

func NewBroker(opts ...BrokerOpt) (*Broker, error) {
	b := &Broker{
		ready:        make(chan struct{}),
		startTimeout: DefaultStartTimeout,
		host:         DefaultBrokerHost,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	ns, err := server.NewServer(&server.Options{
		Host:   b.host,
		Port:   b.port,
		NoSigs: true,
		NoLog:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating nats server: %w", err)
	}
	b.ns = ns

	return b, nil
}

// Start runs the broker until ctx is done.
func (b *Broker) Start(ctx context.Context) error {
	b.ns.Start()

	if !b.ns.ReadyForConnections(b.startTimeout) {
		b.ns.Shutdown()
		return fmt.Errorf("nats server not ready for connections after %s", b.startTimeout)
	}
	close(b.ready)

	slog.InfoContext(ctx, "nats server listening", "addr", b.ns.Addr())

	<-ctx.Done()
	b.ns.Shutdown()
	b.ns.WaitForShutdown()

	return nil
}

// Ready is closed once the broker accepts connections.
func (b *Broker) Ready() <-chan struct{} {
	return b.ready
}

func (b *Broker) ClientURL() string {
	return b.ns.ClientURL()
}
