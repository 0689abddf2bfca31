package command

import (
	"cmp"
	"fmt"

	"github.com/pixil98/go-service"

	"github.com/pixil98/go-world/internal/lobby"
	"github.com/pixil98/go-world/internal/metrics"
	"github.com/pixil98/go-world/internal/server"
	"github.com/pixil98/go-world/internal/session"
	"github.com/pixil98/go-world/internal/webapi"
	"github.com/pixil98/go-world/internal/world"
)

func BuildWorkers(config interface{}) (service.WorkerList, error) {
	cfg, ok := config.(*Config)
	if !ok {
		return nil, fmt.Errorf("unable to cast config")
	}

	workers := service.WorkerList{}

	// Embedded broker goes first so the lobby client can reach it.
	if cfg.Nats.Enabled {
		ns, err := cfg.Nats.buildBroker()
		if err != nil {
			return nil, fmt.Errorf("creating nats server: %w", err)
		}
		workers["nats"] = ns
	}

	cache, closer, err := cfg.Storage.buildStore()
	if err != nil {
		return nil, fmt.Errorf("creating player store: %w", err)
	}

	spawnX, spawnY := cfg.World.spawn()
	authn := cfg.Storage.buildAuthenticator(cache, spawnX, spawnY)

	m := metrics.New()
	tick := cfg.tickLength()
	sched := cfg.Scheduler.buildScheduler(tick, m)

	notifier, err := cfg.Lobby.buildNotifier(cfg.World.Number, cfg.Nats.clientURL())
	if err != nil {
		return nil, fmt.Errorf("creating lobby client: %w", err)
	}

	wcfg := cfg.World.worldConfig(tick)
	w := world.New(wcfg, world.Deps{
		Store:    cache,
		Lane:     sched.Serial(),
		Pool:     sched.Pool(),
		Presence: notifier,
		Observer: m,
	})

	pipeline := session.NewPipeline(cfg.Session.sessionConfig(cfg.Protocol), authn, w, sched.Pool(), m)
	acceptor := cfg.Listener.buildAcceptor(pipeline, m)

	srv := server.New(server.Config{
		FlushTimeout:  cfg.Session.flushTimeout(),
		ShutdownGrace: cfg.Scheduler.shutdownGrace(),
		Maintenance:   cfg.Maintenance.maintenanceConfig(),
		Descriptor: lobby.WorldDescriptor{
			Address:  cfg.Lobby.Address,
			Revision: cmp.Or(cfg.Protocol.Revision, session.DefaultRevision),
			Capacity: cmp.Or(wcfg.MaxPlayers, world.DefaultMaxPlayers),
			Activity: cfg.World.Activity,
		},
	}, server.Deps{
		Scheduler: sched,
		Acceptor:  acceptor,
		World:     w,
		Cache:     cache,
		Lobby:     notifier,
		Store:     closer,
	})
	workers["server"] = srv

	if cfg.Web.Addr != "" {
		workers["web"] = webapi.New(cfg.Web.Addr, srv, m.Handler())
	}

	return workers, nil
}
