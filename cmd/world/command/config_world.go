package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/world"
)

type WorldConfig struct {
	Number       int           `json:"number"`
	MaxPlayers   int           `json:"max_players"`
	SyncInterval uint64        `json:"sync_interval"`
	RegenTicks   uint64        `json:"regen_ticks"`
	RunDrain     uint8         `json:"run_drain"`
	Activity     string        `json:"activity"`
	Bounds       *BoundsConfig `json:"bounds"`
	Spawn        *PointConfig  `json:"spawn"`
}

type BoundsConfig struct {
	MinX uint16 `json:"min_x"`
	MinY uint16 `json:"min_y"`
	MaxX uint16 `json:"max_x"`
	MaxY uint16 `json:"max_y"`
}

type PointConfig struct {
	X uint16 `json:"x"`
	Y uint16 `json:"y"`
}

func (c *WorldConfig) validate() error {
	el := errors.NewErrorList()

	if c.Number < 1 {
		el.Add(fmt.Errorf("number must be at least 1"))
	}
	// Player indexes are 16 bit and 0 is reserved.
	if c.MaxPlayers < 0 || c.MaxPlayers > 65534 {
		el.Add(fmt.Errorf("max_players must be between 0 and 65534"))
	}

	bounds := c.bounds()
	if c.Bounds != nil && (c.Bounds.MinX > c.Bounds.MaxX || c.Bounds.MinY > c.Bounds.MaxY) {
		el.Add(fmt.Errorf("bounds minimum exceeds maximum"))
	}
	if c.Spawn != nil {
		p := *c.Spawn
		if p.X < bounds.MinX || p.X > bounds.MaxX || p.Y < bounds.MinY || p.Y > bounds.MaxY {
			el.Add(fmt.Errorf("spawn %d,%d is outside the world bounds", p.X, p.Y))
		}
	}

	return el.Err()
}

func (c *WorldConfig) bounds() world.Bounds {
	if c.Bounds == nil {
		return world.DefaultBounds
	}
	return world.Bounds{MinX: c.Bounds.MinX, MinY: c.Bounds.MinY, MaxX: c.Bounds.MaxX, MaxY: c.Bounds.MaxY}
}

// spawn returns where new accounts start, defaulting to the middle of the
// world bounds.
func (c *WorldConfig) spawn() (uint16, uint16) {
	if c.Spawn != nil {
		return c.Spawn.X, c.Spawn.Y
	}
	b := c.bounds()
	return b.MinX + (b.MaxX-b.MinX)/2, b.MinY + (b.MaxY-b.MinY)/2
}

func (c *WorldConfig) worldConfig(tick time.Duration) world.Config {
	return world.Config{
		Number:       c.Number,
		MaxPlayers:   c.MaxPlayers,
		TickLength:   tick,
		SyncInterval: c.SyncInterval,
		RegenTicks:   c.RegenTicks,
		RunDrain:     c.RunDrain,
		Bounds:       c.bounds(),
	}
}
