package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/world"
)

type Config struct {
	TickLength  string            `json:"tick_length"`
	World       WorldConfig       `json:"world"`
	Listener    ListenerConfig    `json:"listener"`
	Protocol    ProtocolConfig    `json:"protocol"`
	Session     SessionConfig     `json:"session"`
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Storage     StorageConfig     `json:"storage"`
	Lobby       LobbyConfig       `json:"lobby"`
	Web         WebConfig         `json:"web"`
	Nats        NatsConfig        `json:"nats"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	d, err := optionalDuration(c.TickLength)
	if err != nil {
		el.Add(fmt.Errorf("parsing tick_length: %w", err))
	} else if d != 0 && d < time.Millisecond {
		el.Add(fmt.Errorf("tick_length must be at least 1ms"))
	}

	el.Add(wrap("world", c.World.validate()))
	el.Add(wrap("listener", c.Listener.validate()))
	el.Add(wrap("protocol", c.Protocol.validate()))
	el.Add(wrap("session", c.Session.validate()))
	el.Add(wrap("scheduler", c.Scheduler.validate()))
	el.Add(wrap("maintenance", c.Maintenance.validate()))
	el.Add(wrap("storage", c.Storage.validate()))
	el.Add(wrap("lobby", c.Lobby.validate()))
	el.Add(wrap("web", c.Web.validate()))
	el.Add(wrap("nats", c.Nats.validate()))

	return el.Err()
}

func (c *Config) tickLength() time.Duration {
	d, _ := optionalDuration(c.TickLength)
	if d == 0 {
		return world.DefaultTickLength
	}
	return d
}

// optionalDuration parses s, treating an empty string as zero.
func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", s)
	}
	return d, nil
}

func wrap(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", section, err)
}
