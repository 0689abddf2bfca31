package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/pixil98/go-world/internal/listener"
	"github.com/pixil98/go-world/internal/lobby"
	"github.com/pixil98/go-world/internal/maintenance"
	"github.com/pixil98/go-world/internal/scheduler"
	"github.com/pixil98/go-world/internal/webapi"
	"github.com/pixil98/go-world/internal/world"
)

const (
	DefaultFlushTimeout  = 2 * time.Second
	DefaultShutdownGrace = 10 * time.Second
)

type Config struct {
	FlushTimeout  time.Duration
	ShutdownGrace time.Duration
	Maintenance   maintenance.Config
	Descriptor    lobby.WorldDescriptor
}

type Deps struct {
	Scheduler *scheduler.Scheduler
	Acceptor  *listener.Acceptor
	World     *world.World
	Cache     maintenance.Evicter
	Lobby     lobby.Notifier
	// Store is closed after the final save, when set.
	Store     io.Closer
}

// Server owns the clock, the acceptor and the world for one process and
// stops them in order.
type Server struct {
	cfg   Config
	sched *scheduler.Scheduler
	acc   *listener.Acceptor
	world *world.World
	cache maintenance.Evicter
	lobby lobby.Notifier
	store io.Closer

	started time.Time
	lobbyOK atomic.Bool
}

func New(cfg Config, deps Deps) *Server {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	notifier := deps.Lobby
	if notifier == nil {
		notifier = lobby.Noop{}
	}
	return &Server{
		cfg:     cfg,
		sched:   deps.Scheduler,
		acc:     deps.Acceptor,
		world:   deps.World,
		cache:   deps.Cache,
		lobby:   notifier,
		store:   deps.Store,
		started: time.Now(),
	}
}

// Start binds the listener, schedules the tick and maintenance, and serves
// until ctx is done or the listener fails. A bind failure is returned before
// anything else starts.
func (s *Server) Start(ctx context.Context) error {
	if err := s.acc.Listen(); err != nil {
		return fmt.Errorf("binding listener: %w", err)
	}

	if _, err := s.sched.Schedule("world tick", s.world.Tick, 1, 1, scheduler.OnSerial()); err != nil {
		s.acc.Shutdown(0)
		return fmt.Errorf("scheduling world tick: %w", err)
	}
	if _, err := maintenance.Register(s.sched, s.cfg.Maintenance, s.world, s.cache); err != nil {
		s.acc.Shutdown(0)
		return fmt.Errorf("scheduling maintenance: %w", err)
	}

	clockCtx, stopClock := context.WithCancel(context.Background())
	defer stopClock()
	go func() {
		_ = s.sched.Start(clockCtx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.acc.Serve(ctx)
	}()

	s.lobby.Register(ctx, s.descriptor(), func(ok bool) {
		s.lobbyOK.Store(ok)
		if !ok {
			slog.WarnContext(ctx, "lobby registration failed, local login only", "world", s.world.Number())
			return
		}
		slog.InfoContext(ctx, "registered with lobby", "world", s.world.Number())
	})

	slog.InfoContext(ctx, "world online", "world", s.world.Number(), "addr", s.acc.Addr(), "tick", s.sched.TickLength())

	el := errors.NewErrorList()
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.ErrorContext(ctx, "listener failed", "error", err)
			el.Add(err)
		}
	}

	el.Add(s.shutdown(stopClock))
	return el.Err()
}

func (s *Server) descriptor() lobby.WorldDescriptor {
	d := s.cfg.Descriptor
	d.Number = s.world.Number()
	if d.Address == "" && s.acc.Addr() != nil {
		d.Address = s.acc.Addr().String()
	}
	return d
}

// shutdown stops new sessions, lets live sessions flush, stops periodic work,
// saves and tears down the world on the lane, then drains both executors.
func (s *Server) shutdown(stopClock context.CancelFunc) error {
	ctx := context.Background()
	slog.InfoContext(ctx, "shutting down", "world", s.world.Number())

	s.acc.Shutdown(s.cfg.FlushTimeout)
	s.sched.CancelAll()

	el := errors.NewErrorList()

	finalCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()
	err := s.sched.RunSerial(finalCtx, "final save", func(ctx context.Context) error {
		saveErr := s.world.SaveAll(ctx)
		if err := s.world.Teardown(ctx); err != nil {
			return fmt.Errorf("tearing down world: %w", err)
		}
		return saveErr
	})
	if err != nil {
		slog.ErrorContext(ctx, "final save", "error", err)
		el.Add(fmt.Errorf("final save: %w", err))
	}

	stopClock()
	el.Add(s.sched.Shutdown(s.cfg.ShutdownGrace))
	s.lobby.Close()
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			el.Add(fmt.Errorf("closing store: %w", err))
		}
	}

	slog.InfoContext(ctx, "shutdown complete", "world", s.world.Number())
	return el.Err()
}

// Status satisfies webapi.StatusSource.
func (s *Server) Status() webapi.Status {
	return webapi.Status{
		World:    s.world.Number(),
		Tick:     s.world.CurrentTick(),
		Players:  s.world.Online(),
		Sessions: s.acc.Count(),
		Lobby:    s.lobbyOK.Load(),
		Uptime:   time.Since(s.started).Seconds(),
	}
}
