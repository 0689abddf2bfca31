package world

import "time"

const (
	DefaultMaxPlayers   = 2000
	DefaultSyncInterval = 10
	DefaultRegenTicks   = 5
	DefaultRunDrain     = 1
	DefaultTickLength   = 600 * time.Millisecond
)

// Bounds is the walkable area. Destinations outside it are clamped.
type Bounds struct {
	MinX, MinY uint16
	MaxX, MaxY uint16
}

// DefaultBounds covers the starting region around the default spawn.
var DefaultBounds = Bounds{MinX: 2944, MinY: 3136, MaxX: 3391, MaxY: 3519}

func (b Bounds) clamp(x, y uint16) (uint16, uint16) {
	return min(max(x, b.MinX), b.MaxX), min(max(y, b.MinY), b.MaxY)
}

func (b Bounds) valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

type Config struct {
	// Number identifies this world to the lobby and in status output.
	Number       int
	MaxPlayers   int
	TickLength   time.Duration
	SyncInterval uint64
	// RegenTicks is how often a resting player regains one point of run
	// energy.
	RegenTicks uint64
	RunDrain   uint8
	Bounds     Bounds
}

func (c Config) withDefaults() Config {
	if c.MaxPlayers <= 0 {
		c.MaxPlayers = DefaultMaxPlayers
	}
	if c.TickLength <= 0 {
		c.TickLength = DefaultTickLength
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.RegenTicks == 0 {
		c.RegenTicks = DefaultRegenTicks
	}
	if c.RunDrain == 0 {
		c.RunDrain = DefaultRunDrain
	}
	if c.Bounds == (Bounds{}) || !c.Bounds.valid() {
		c.Bounds = DefaultBounds
	}
	return c
}
