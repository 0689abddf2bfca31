package lobby

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	DefaultPrefix  = "lobby"
	DefaultTimeout = 5 * time.Second
)

// WorldDescriptor is what a world announces about itself when it joins the
// lobby.
type WorldDescriptor struct {
	Number   int    `json:"number"`
	Address  string `json:"address"`
	Revision uint32 `json:"revision"`
	Capacity int    `json:"capacity"`
	Activity string `json:"activity,omitempty"`
}

// Presence is published whenever a player enters or leaves the world.
type Presence struct {
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

// Notifier links a world to the lobby.
type Notifier interface {
	// Register announces the world. done runs once with the lobby's answer;
	// false means the world continues with local logins only.
	Register(ctx context.Context, d WorldDescriptor, done func(ok bool))
	PlayerOnline(name string)
	PlayerOffline(name string)
	Close()
}

type ClientOpt func(*Client)

func WithPrefix(prefix string) ClientOpt {
	return func(c *Client) {
		c.prefix = prefix
	}
}

// WithTimeout bounds how long Register waits for the lobby to answer.
func WithTimeout(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithWorld sets the world number used in presence subjects.
func WithWorld(n int) ClientOpt {
	return func(c *Client) {
		c.world = n
	}
}

// Client talks to the lobby over NATS.
type Client struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	world   int

	wg sync.WaitGroup
}

// Connect dials the broker at url. The connection retries in the background
// when the broker is not up yet.
func Connect(url string, opts ...ClientOpt) (*Client, error) {
	c := &Client{
		prefix:  DefaultPrefix,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, err := nats.Connect(url,
		nats.Name(fmt.Sprintf("world-%d", c.world)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to lobby broker: %w", err)
	}
	c.conn = conn
	return c, nil
}

func (c *Client) registerSubject() string {
	return c.prefix + ".addworld"
}

func (c *Client) presenceSubject() string {
	return fmt.Sprintf("%s.world.%d.presence", c.prefix, c.world)
}

func (c *Client) Register(ctx context.Context, d WorldDescriptor, done func(ok bool)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ok, err := c.register(ctx, d)
		if err != nil {
			slog.WarnContext(ctx, "lobby registration", "world", d.Number, "error", err)
		}
		done(ok)
	}()
}

func (c *Client) register(ctx context.Context, d WorldDescriptor) (bool, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return false, fmt.Errorf("encoding world descriptor: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	msg, err := c.conn.RequestWithContext(ctx, c.registerSubject(), data)
	if err != nil {
		return false, fmt.Errorf("requesting %s: %w", c.registerSubject(), err)
	}

	var ok bool
	if err := json.Unmarshal(msg.Data, &ok); err != nil {
		return false, fmt.Errorf("decoding lobby reply: %w", err)
	}
	return ok, nil
}

func (c *Client) PlayerOnline(name string) {
	c.publish(Presence{Name: name, Online: true})
}

func (c *Client) PlayerOffline(name string) {
	c.publish(Presence{Name: name})
}

// publish never blocks; NATS buffers while disconnected.
func (c *Client) publish(p Presence) {
	data, err := json.Marshal(p)
	if err != nil {
		slog.Warn("encoding presence", "name", p.Name, "error", err)
		return
	}
	if err := c.conn.Publish(c.presenceSubject(), data); err != nil {
		slog.Debug("publishing presence", "name", p.Name, "error", err)
	}
}

// Close waits for pending registrations and drains the connection.
func (c *Client) Close() {
	c.wg.Wait()
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}

// Noop is the notifier used when no lobby is configured.
type Noop struct{}

func (Noop) Register(_ context.Context, _ WorldDescriptor, done func(bool)) { done(false) }
func (Noop) PlayerOnline(string)                                           {}
func (Noop) PlayerOffline(string)                                          {}
func (Noop) Close()                                                        {}
