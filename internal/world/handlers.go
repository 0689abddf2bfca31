package world

import (
	"fmt"
	"strings"

	"github.com/pixil98/go-world/internal/protocol"
)

// handler applies one inbound frame to the world.
type handler func(w *World, p *Player, payload []byte) error

var handlers = map[protocol.Opcode]handler{
	protocol.OpWalk:    handleWalk,
	protocol.OpChat:    handleChat,
	protocol.OpCommand: handleCommand,
}

func handleWalk(w *World, p *Player, payload []byte) error {
	if p.lobby {
		return nil
	}
	walk, err := protocol.DecodeWalk(payload)
	if err != nil {
		return err
	}
	p.destX, p.destY = w.cfg.Bounds.clamp(walk.X, walk.Y)
	p.running = walk.Run
	return nil
}

// handleChat sends the text to every player in the same realm as the
// speaker, the speaker included. Lobby players only hear each other.
func handleChat(w *World, p *Player, payload []byte) error {
	text := strings.ReplaceAll(protocol.DecodeChat(payload), "\x00", "")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	f := protocol.Chat(p.rec.Name, text)
	w.each(func(q *Player) {
		if q.lobby == p.lobby {
			q.queue(f)
		}
	})
	return nil
}

type command func(w *World, p *Player, args []string) string

var commands = map[string]command{
	"players": cmdPlayers,
	"tick":    cmdTick,
	"pos":     cmdPos,
}

func handleCommand(w *World, p *Player, payload []byte) error {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return nil
	}

	name := strings.ToLower(fields[0])
	cmd, ok := commands[name]
	if !ok {
		p.queue(protocol.Message(fmt.Sprintf("Unknown command: %s", name)))
		return nil
	}
	p.queue(protocol.Message(cmd(w, p, fields[1:])))
	return nil
}

func cmdPlayers(w *World, _ *Player, _ []string) string {
	n := w.Online()
	if n == 1 {
		return "There is 1 player online."
	}
	return fmt.Sprintf("There are %d players online.", n)
}

func cmdTick(w *World, _ *Player, _ []string) string {
	return fmt.Sprintf("Tick %d.", w.CurrentTick())
}

func cmdPos(_ *World, p *Player, _ []string) string {
	x, y, energy := p.Position()
	return fmt.Sprintf("Position %d, %d. Run energy %d.", x, y, energy)
}
