// Package bootstrap assembles the matching runtime from configuration. Both
// the API server and the maintenance worker build on it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/config"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/cleanup"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/matching"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/compatibility"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/profile"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/queue"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/domain/shared"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/messaging"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/memory"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/postgres"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/persistence/redis"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/infrastructure/service"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/logger"
	"github.com/ronak-kumar-sing/skillsync-platform-sub002/pkg/timeutil"
)

// EventBus is the bus plus its counters and shutdown hook.
type EventBus interface {
	shared.EventBus
	Stats() messaging.BusStats
	Close() error
}

// sessionStore is what the engine, the scorer and the seed loader need from
// the session store.
type sessionStore interface {
	matching.SessionCreator
	profile.HistoryLookup
	profile.SessionRater
}

type profileStore interface {
	profile.Repository
	profile.Writer
}

// Runtime holds the assembled collaborators.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger

	DB    *postgres.Connection
	Redis *redis.Client

	Profiles profileStore
	Sessions sessionStore
	History  *service.GuardedHistory
	Store    *queue.Store
	Bus      EventBus
	Engine   *matching.Engine
	Cleanup  *cleanup.Service

	closers []func() error
}

// Build connects to the configured stores and wires the engine. On error
// everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.Nop()
	}
	rt := &Runtime{Config: cfg, Log: log}
	if err := rt.assemble(ctx); err != nil {
		if cerr := rt.Close(); cerr != nil {
			log.Warn("closing partial runtime failed", logger.Err(cerr))
		}
		return nil, err
	}

	log.Info("runtime assembled",
		logger.String("queue_backend", cfg.Queue.Backend),
		logger.Bool("postgres", rt.DB != nil),
		logger.Bool("session_history", rt.History != nil),
	)
	return rt, nil
}

func (rt *Runtime) assemble(ctx context.Context) error {
	cfg, log := rt.Config, rt.Log
	if err := rt.openDatabase(ctx); err != nil {
		return err
	}
	if err := rt.openRedis(ctx); err != nil {
		return err
	}
	if err := rt.openBus(); err != nil {
		return err
	}
	if cfg.Matching.SeedFile != "" {
		n, err := LoadSeed(ctx, cfg.Matching.SeedFile, rt.Profiles, rt.Sessions)
		if err != nil {
			return err
		}
		log.Info("seed data loaded",
			logger.String("file", cfg.Matching.SeedFile),
			logger.Int("profiles", n.Profiles),
			logger.Int("sessions", n.Sessions),
		)
	}

	qp, err := cfg.Policy.QueuePolicy()
	if err != nil {
		return err
	}
	var backend queue.Backend
	if cfg.Queue.Backend == "redis" {
		backend = redis.NewQueueBackend(rt.Redis, timeutil.SystemClock{})
	} else {
		backend = memory.NewQueueBackend(timeutil.SystemClock{})
	}
	rt.Store = queue.NewStore(backend, qp, queue.WithLogger(log))

	scorerOpts := []compatibility.Option{compatibility.WithLogger(log)}
	if cfg.Features.On(config.FeatureSessionHistory) {
		rt.History = service.NewGuardedHistory(rt.Sessions, nil, cfg.Matching.HistoryTimeout, log)
		scorerOpts = append(scorerOpts,
			compatibility.WithHistory(rt.History),
			compatibility.WithHistoryLookback(cfg.Matching.HistoryLookback),
			compatibility.WithHistoryTimeout(cfg.Matching.HistoryTimeout),
		)
	}
	scorer := compatibility.NewScorer(cfg.Policy.Weights, scorerOpts...)

	rt.Engine = matching.NewEngine(rt.Store, rt.Profiles, rt.Sessions, scorer, rt.Bus, cfg.EngineConfig(),
		matching.WithLogger(log),
		matching.WithTracer(otel.Tracer("skillsync/matching")),
	)
	rt.Cleanup = cleanup.NewService(rt.Engine, rt.Bus,
		cleanup.WithLogger(log),
		cleanup.WithFailureLimit(cfg.Queue.FailureLimit),
	)
	return nil
}

func (rt *Runtime) openDatabase(ctx context.Context) error {
	cfg := rt.Config
	if cfg.Database.URL == "" {
		rt.Log.Warn("DATABASE_URL not set, using in-memory profiles and sessions")
		rt.Profiles = memory.NewProfileRepository()
		rt.Sessions = memory.NewSessionStore()
		return nil
	}

	pg := postgres.DefaultConfig()
	pg.URL = cfg.Database.URL
	pg.MaxConns = cfg.Database.MaxConns
	pg.MinConns = cfg.Database.MinConns
	pg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	conn, err := postgres.NewConnection(ctx, pg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	rt.DB = conn
	rt.closers = append(rt.closers, func() error { conn.Close(); return nil })

	if cfg.Database.AutoMigrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		rt.Log.Info("database schema is up to date", logger.Int("applied", n))
	}

	rt.Profiles = postgres.NewProfileRepository(conn)
	rt.Sessions = postgres.NewSessionRepository(conn)
	return nil
}

func (rt *Runtime) openRedis(context.Context) error {
	cfg := rt.Config
	needed := cfg.Queue.Backend == "redis" || cfg.Features.On(config.FeatureDistributedEvents)
	if !needed {
		return nil
	}

	host, port, err := cfg.Redis.HostPort()
	if err != nil {
		return err
	}
	rc := redis.DefaultConfig()
	rc.Host = host
	rc.Port = port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.KeyPrefix = strings.TrimSuffix(cfg.Redis.KeyPrefix, ":")
	if cfg.Redis.PoolSize > 0 {
		rc.PoolSize = cfg.Redis.PoolSize
	}
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout

	client, err := redis.NewClient(rc)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	rt.Redis = client
	rt.closers = append(rt.closers, client.Close)
	return nil
}

func (rt *Runtime) openBus() error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = rt.Log

	if rt.Redis == nil || !rt.Config.Features.On(config.FeatureDistributedEvents) {
		rt.Bus = messaging.NewInMemoryEventBus(local)
		rt.closers = append(rt.closers, rt.Bus.Close)
		return nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(rt.Redis),
		ChannelName:    rt.Config.Redis.EventChannel,
		LocalBusConfig: local,
		Logger:         rt.Log,
	})
	if err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	rt.Bus = bus
	rt.closers = append(rt.closers, bus.Close)
	return nil
}

// Close releases everything in reverse order of opening.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
