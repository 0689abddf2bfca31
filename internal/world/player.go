package world

import (
	"github.com/pixil98/go-world/internal/protocol"
	"github.com/pixil98/go-world/internal/storage"
)

// Client is the world's view of a connected session. Implementations must
// never block in Send.
type Client interface {
	ID() string
	Name() string
	Send(protocol.Frame) error
	Inbound() []protocol.Frame
	Closed() bool
	Close(reason error)
}

// Player holds the live state of one admitted client. It is only touched on
// the world lane.
type Player struct {
	client Client
	key    string
	index  uint16
	lobby  bool
	rec    *storage.PlayerRecord

	destX, destY uint16
	running      bool
	moving       bool

	dirty   bool
	started bool
	removed bool
	outbox  []protocol.Frame
}

func (p *Player) Name() string {
	return p.rec.Name
}

func (p *Player) Index() uint16 {
	return p.index
}

// Position returns the player's current tile and run energy.
func (p *Player) Position() (x, y uint16, energy uint8) {
	return p.rec.X, p.rec.Y, p.rec.RunEnergy
}

func (p *Player) queue(f protocol.Frame) {
	p.outbox = append(p.outbox, f)
}

// step moves the player one tile toward its destination on each axis and
// reports whether it moved.
func (p *Player) step() bool {
	moved := false
	if p.rec.X < p.destX {
		p.rec.X++
		moved = true
	} else if p.rec.X > p.destX {
		p.rec.X--
		moved = true
	}
	if p.rec.Y < p.destY {
		p.rec.Y++
		moved = true
	} else if p.rec.Y > p.destY {
		p.rec.Y--
		moved = true
	}
	return moved
}

func (p *Player) arrived() bool {
	return p.rec.X == p.destX && p.rec.Y == p.destY
}
