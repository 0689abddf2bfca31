package world

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/auth"
	"github.com/pixil98/go-world/internal/protocol"
	"github.com/pixil98/go-world/internal/scheduler"
	"github.com/pixil98/go-world/internal/session"
	"github.com/pixil98/go-world/internal/storage"
)

// Submitter queues work on an executor without blocking.
type Submitter interface {
	Submit(name string, action scheduler.Action) error
}

// Presence is told when players enter and leave the world.
type Presence interface {
	PlayerOnline(name string)
	PlayerOffline(name string)
}

// Observer receives per-tick measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	TickCompleted(elapsed time.Duration, overrun bool)
	PlayersOnline(n int)
}

type Deps struct {
	Store storage.PlayerStore
	// Lane runs admissions. It must be the executor the tick runs on.
	Lane Submitter
	// Pool runs saves for players that have left.
	Pool     Submitter
	Presence Presence
	Observer Observer
}

// World is the single source of truth for player state. Every method
// except Admit, Number, CurrentTick, Online, Overruns and Reentries must run
// on the world lane.
type World struct {
	cfg  Config
	deps Deps

	players map[string]*Player
	slots   []*Player
	// order holds the active players in admission order.
	order   []*Player
	closed  atomic.Bool

	timers   []timer
	timerSeq uint64

	tick      atomic.Uint64
	online    atomic.Int32
	running   atomic.Bool
	reentries atomic.Uint64
	overruns  atomic.Uint64
}

func New(cfg Config, deps Deps) *World {
	cfg = cfg.withDefaults()
	return &World{
		cfg:     cfg,
		deps:    deps,
		players: make(map[string]*Player),
		slots:   make([]*Player, cfg.MaxPlayers+1),
	}
}

func (w *World) Number() int {
	return w.cfg.Number
}

func (w *World) CurrentTick() uint64 {
	return w.tick.Load()
}

func (w *World) Online() int {
	return int(w.online.Load())
}

// Overruns counts ticks that took longer than the tick length.
func (w *World) Overruns() uint64 {
	return w.overruns.Load()
}

// Reentries counts tick invocations refused because a tick was in progress.
func (w *World) Reentries() uint64 {
	return w.reentries.Load()
}

// Player returns the online player with the given display name.
func (w *World) Player(name string) *Player {
	key, err := auth.Key(name)
	if err != nil {
		return nil
	}
	return w.players[key]
}

// Admit queues an admission on the world lane. The answer is delivered
// through j.Reply from the lane.
func (w *World) Admit(j session.Join) error {
	if w.closed.Load() {
		return ErrWorldClosed
	}
	return w.deps.Lane.Submit("admit", func(ctx context.Context) error {
		return w.Join(ctx, j.Session, j.Record, j.Lobby, j.Reply)
	})
}

// Join places an authenticated client in the world and answers through
// reply before any world frame is queued for it.
func (w *World) Join(ctx context.Context, c Client, rec *storage.PlayerRecord, lobby bool, reply func(session.Admission)) error {
	answer := func(op protocol.Opcode) error {
		reply(session.Admission{Response: op})
		return nil
	}

	if w.closed.Load() || c.Closed() {
		return answer(protocol.OutServerBusy)
	}

	key, err := auth.Key(rec.Name)
	if err != nil {
		reply(session.Admission{Response: protocol.OutInvalidCredentials})
		return fmt.Errorf("admitting %q: %w", rec.Name, err)
	}

	if existing, ok := w.players[key]; ok {
		if !existing.client.Closed() {
			return answer(protocol.OutAlreadyOnline)
		}
		// The stored record predates whatever the old session did since the
		// last save.
		rec = existing.rec
		w.remove(ctx, existing)
	}

	index := w.freeSlot()
	if index == 0 {
		return answer(protocol.OutWorldFull)
	}

	rec.X, rec.Y = w.cfg.Bounds.clamp(rec.X, rec.Y)
	p := &Player{
		client: c,
		key:    key,
		index:  index,
		lobby:  lobby,
		rec:    rec,
		destX:  rec.X,
		destY:  rec.Y,
		dirty:  true,
	}
	w.players[key] = p
	w.slots[index] = p
	w.order = append(w.order, p)
	w.online.Add(1)

	reply(session.Admission{Response: protocol.OutLoginOK, Rights: rec.Rights, Index: index})

	if !lobby {
		w.armRegen(p)
	}
	if w.deps.Presence != nil {
		w.deps.Presence.PlayerOnline(rec.Name)
	}

	slog.InfoContext(ctx, "player joined", "name", rec.Name, "index", index, "lobby", lobby, "online", w.Online())
	return nil
}

func (w *World) freeSlot() uint16 {
	for i := 1; i < len(w.slots); i++ {
		if w.slots[i] == nil {
			return uint16(i)
		}
	}
	return 0
}

// Tick advances the world by one tick. A tick never overlaps another; a call
// made while one is running returns immediately.
func (w *World) Tick(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		w.reentries.Add(1)
		slog.WarnContext(ctx, "tick already in progress")
		return nil
	}
	defer w.running.Store(false)

	start := time.Now()
	tick := w.tick.Add(1)

	w.reap(ctx)
	w.input(ctx)
	w.simulate()
	w.output(ctx, tick)

	elapsed := time.Since(start)
	overrun := elapsed > w.cfg.TickLength
	if overrun {
		w.overruns.Add(1)
		slog.WarnContext(ctx, "tick overrun", "tick", tick, "elapsed", elapsed, "limit", w.cfg.TickLength)
	}
	if w.deps.Observer != nil {
		w.deps.Observer.TickCompleted(elapsed, overrun)
		w.deps.Observer.PlayersOnline(w.Online())
	}
	return nil
}

// each visits players in the order they were admitted.
func (w *World) each(fn func(*Player)) {
	for _, p := range w.order {
		fn(p)
	}
}

func (w *World) reap(ctx context.Context) {
	var gone []*Player
	w.each(func(p *Player) {
		if p.client.Closed() {
			gone = append(gone, p)
		}
	})
	for _, p := range gone {
		w.remove(ctx, p)
	}
}

// remove takes p out of the world and saves a snapshot of its record off
// the lane.
func (w *World) remove(ctx context.Context, p *Player) {
	delete(w.players, p.key)
	w.slots[p.index] = nil
	w.order = slices.DeleteFunc(w.order, func(q *Player) bool { return q == p })
	p.removed = true
	w.online.Add(-1)

	if w.deps.Presence != nil {
		w.deps.Presence.PlayerOffline(p.rec.Name)
	}
	slog.InfoContext(ctx, "player left", "name", p.rec.Name, "index", p.index, "online", w.Online())

	if !p.started || w.deps.Store == nil {
		return
	}

	key, rec := p.key, p.rec.Clone()
	save := func(context.Context) error {
		if err := w.deps.Store.Save(key, rec); err != nil {
			return fmt.Errorf("saving %s: %w", key, err)
		}
		return nil
	}

	if w.deps.Pool != nil {
		err := w.deps.Pool.Submit("save "+key, save)
		if err == nil {
			return
		}
		slog.WarnContext(ctx, "saving departed player inline", "name", rec.Name, "error", err)
	}
	if err := save(ctx); err != nil {
		slog.ErrorContext(ctx, "saving departed player", "name", rec.Name, "error", err)
	}
}

// input drains every client's frames in arrival order. A failing client is
// closed without affecting the rest.
func (w *World) input(ctx context.Context) {
	w.each(func(p *Player) {
		frames := p.client.Inbound()
		if len(frames) == 0 {
			return
		}
		if err := w.handleFrames(ctx, p, frames); err != nil {
			slog.WarnContext(ctx, "closing client", "name", p.rec.Name, "error", err)
			p.client.Close(err)
		}
	})
}

func (w *World) handleFrames(ctx context.Context, p *Player, frames []protocol.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", session.ErrHandlerPanic, r)
		}
	}()

	for _, f := range frames {
		h, ok := handlers[f.Opcode]
		if !ok {
			slog.DebugContext(ctx, "unhandled frame", "name", p.rec.Name, "frame", f)
			continue
		}
		if err := h(w, p, f.Payload); err != nil {
			return fmt.Errorf("handling %s: %w", f, err)
		}
	}
	return nil
}

func (w *World) simulate() {
	w.each(func(p *Player) {
		if p.lobby || p.arrived() {
			p.moving = false
			return
		}

		steps := 1
		if p.running && p.rec.RunEnergy > 0 {
			steps = 2
			p.rec.RunEnergy -= min(w.cfg.RunDrain, p.rec.RunEnergy)
		}
		for range steps {
			if p.step() {
				p.dirty = true
			}
		}
		p.moving = !p.arrived()
	})

	w.runTimers()
}

// armRegen restores one point of run energy every RegenTicks while the
// player is not moving.
func (w *World) armRegen(p *Player) {
	w.After(w.cfg.RegenTicks, func() {
		if p.removed {
			return
		}
		if !p.moving && p.rec.RunEnergy < storage.MaxRunEnergy {
			p.rec.RunEnergy++
			p.dirty = true
		}
		w.armRegen(p)
	})
}

func (w *World) output(ctx context.Context, tick uint64) {
	syncDue := tick%w.cfg.SyncInterval == 0

	w.each(func(p *Player) {
		frames := p.outbox
		p.outbox = p.outbox[:0]

		if p.dirty && !p.lobby {
			x, y, energy := p.Position()
			frames = append(frames, protocol.Position(x, y, energy))
		}
		p.dirty = false
		if syncDue {
			frames = append(frames, protocol.TickSync(uint32(tick)))
		}

		for _, f := range frames {
			if err := p.client.Send(f); err != nil {
				slog.DebugContext(ctx, "dropping output", "name", p.rec.Name, "error", err)
				break
			}
		}
		p.started = true
	})
}

// SaveAll writes every started player to storage.
func (w *World) SaveAll(ctx context.Context) error {
	if w.deps.Store == nil {
		return nil
	}

	el := errors.NewErrorList()
	saved := 0
	w.each(func(p *Player) {
		if !p.started {
			return
		}
		if err := ctx.Err(); err != nil {
			return
		}
		if err := w.deps.Store.Save(p.key, p.rec.Clone()); err != nil {
			el.Add(fmt.Errorf("saving %s: %w", p.key, err))
			return
		}
		saved++
	})
	el.Add(ctx.Err())

	slog.InfoContext(ctx, "saved players", "count", saved)
	return el.Err()
}

// Compact releases memory held by buffers sized for past peaks.
func (w *World) Compact(ctx context.Context) error {
	w.timers = slices.Clip(w.timers)
	w.order = slices.Clip(w.order)
	w.each(func(p *Player) {
		if cap(p.outbox) > 0 && len(p.outbox) == 0 {
			p.outbox = nil
		}
	})
	slog.DebugContext(ctx, "compacted world", "timers", len(w.timers))
	return nil
}

// Teardown removes every player and refuses further admissions. Callers
// save first.
func (w *World) Teardown(ctx context.Context) error {
	w.closed.Store(true)

	w.each(func(p *Player) {
		_ = p.client.Send(protocol.Logout())
		p.client.Close(session.ErrServerShutdown)

		p.removed = true
		if w.deps.Presence != nil {
			w.deps.Presence.PlayerOffline(p.rec.Name)
		}
	})
	clear(w.slots)
	clear(w.players)
	w.order = nil
	w.online.Store(0)
	w.timers = nil

	slog.InfoContext(ctx, "world torn down", "tick", w.CurrentTick())
	return nil
}

// Names returns the display names of online players in admission order.
func (w *World) Names() []string {
	var names []string
	w.each(func(p *Player) {
		names = append(names, p.rec.Name)
	})
	return names
}
