package command

import (
	"fmt"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/lobby"
)

type LobbyConfig struct {
	// URL of the NATS broker the lobby listens on. Empty runs the world
	// without a lobby.
	URL     string `json:"url"`
	Prefix  string `json:"prefix"`
	Timeout string `json:"timeout"`
	// Address is advertised to the lobby instead of the listener address.
	Address string `json:"address"`
}

func (c *LobbyConfig) validate() error {
	el := errors.NewErrorList()

	if _, err := optionalDuration(c.Timeout); err != nil {
		el.Add(fmt.Errorf("parsing timeout: %w", err))
	}

	return el.Err()
}

// buildNotifier connects to the lobby broker when a URL is set, or falls
// back to url when embedded is non-empty.
func (c *LobbyConfig) buildNotifier(world int, embedded string) (lobby.Notifier, error) {
	url := c.URL
	if url == "" {
		url = embedded
	}
	if url == "" {
		return lobby.Noop{}, nil
	}

	opts := []lobby.ClientOpt{lobby.WithWorld(world)}
	if c.Prefix != "" {
		opts = append(opts, lobby.WithPrefix(c.Prefix))
	}
	if d, _ := optionalDuration(c.Timeout); d > 0 {
		opts = append(opts, lobby.WithTimeout(d))
	}

	client, err := lobby.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
