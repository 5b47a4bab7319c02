// Command trackerd runs the tracking coordinator behind an HTTP control and
// ingest API. Providers are simulated; platform callbacks arrive through the
// /ingest endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/comalice/trackcoord/internal/config"
	"github.com/comalice/trackcoord/internal/core"
	"github.com/comalice/trackcoord/internal/extensibility"
	"github.com/comalice/trackcoord/internal/logging"
	"github.com/comalice/trackcoord/internal/primitives"
	"github.com/comalice/trackcoord/internal/production"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("setup logging")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("trackerd exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log := logging.Component("trackerd")

	store, rdb, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	ring := production.NewRingSink(cfg.Sink.RingSize)
	sinks := production.MultiSink{production.NewLogSink(logging.Component("events")), ring}
	events := eventLister(func(_ context.Context, limit int) ([]primitives.LogEntry, error) {
		return ring.Recent(limit), nil
	})
	if cfg.Sink.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Sink.PostgresDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := production.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		pg := production.NewPostgresSink(pool, cfg.Sink.Buffer, logging.Component("postgres"))
		defer pg.Close()
		sinks = append(sinks, pg)
		events = func(ctx context.Context, limit int) ([]primitives.LogEntry, error) {
			return production.Recent(ctx, pool, limit)
		}
	}

	motion := extensibility.NewChannelMotionSource(64)
	position := extensibility.NewReplayPositionSource(nil, nil)
	perimeter := extensibility.NewSoftPerimeterSource(logging.Component("perimeter"))
	host := extensibility.NewSimulatedHost(true)

	opts, err := cfg.Coordinator.Options()
	if err != nil {
		return err
	}
	var runner core.CommandRunner = extensibility.NewLoggingCommandRunner(nil, logging.Component("commands"))
	if cfg.Coordinator.CommandsPerSecond > 0 {
		runner = extensibility.NewThrottledCommandRunner(runner, cfg.Coordinator.CommandsPerSecond, 4)
	}
	opts = append(opts,
		core.WithLogger(logging.Component("coordinator")),
		core.WithCommandRunner(runner),
		core.WithGuard(extensibility.IgnoreActivityGuard{Kinds: []primitives.ActivityKind{primitives.ActivityTilting}}),
		core.WithEventSource(motion),
		core.WithEventSource(position),
		core.WithEventSource(perimeter),
	)
	if cfg.Coordinator.MaxAccuracyMeters > 0 {
		opts = append(opts, core.WithGuard(extensibility.AccuracyGuard{MaxMeters: cfg.Coordinator.MaxAccuracyMeters}))
	}
	if rdb != nil {
		opts = append(opts, core.WithPublisher(production.NewRedisPublisher(rdb, production.DefaultTransitionChannel)))
	}

	c, err := core.NewCoordinator(core.Ports{
		Motion:    motion,
		Position:  position,
		Perimeter: perimeter,
		Host:      host,
		Sink:      sinks,
		Store:     store,
	}, opts...)
	if err != nil {
		return err
	}
	if err := c.Start(); err != nil {
		return err
	}
	defer c.Close()

	resumed, err := core.Boot(ctx, c)
	if err != nil {
		log.WithError(err).Warn("resume after boot")
	}
	log.WithField("resumed", resumed).Info("coordinator started")

	s := &server{
		c:         c,
		motion:    motion,
		position:  position,
		perimeter: perimeter,
		events:    events,
		viz:       &production.DefaultVisualizer{},
		log:       logging.Component("http"),
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}()

	log.WithField("addr", cfg.Server.Addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("shutting down")
	return nil
}

// openStore builds the configured StateStore. The redis client is returned
// so the publisher can share it; it is nil for other drivers.
func openStore(cfg config.StoreConfig) (core.StateStore, *redis.Client, error) {
	switch cfg.Driver {
	case "file":
		store, err := production.NewFileStore(cfg.Path)
		return store, nil, err
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return production.NewRedisStore(rdb, cfg.RedisPrefix), rdb, nil
	default:
		return production.NewMemoryStore(), nil, nil
	}
}
