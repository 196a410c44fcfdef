package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/estatehub/sentinel/internal/aggregator"
	"github.com/estatehub/sentinel/internal/alert"
	"github.com/estatehub/sentinel/internal/classifier"
	"github.com/estatehub/sentinel/internal/config"
	"github.com/estatehub/sentinel/internal/handlers"
	"github.com/estatehub/sentinel/internal/identity"
	"github.com/estatehub/sentinel/internal/logging"
	"github.com/estatehub/sentinel/internal/messaging"
	"github.com/estatehub/sentinel/internal/messaging/kafka"
	"github.com/estatehub/sentinel/internal/messaging/nats"
	"github.com/estatehub/sentinel/internal/objectstore"
	"github.com/estatehub/sentinel/internal/remediation"
	"github.com/estatehub/sentinel/internal/repository"
	"github.com/estatehub/sentinel/internal/state"
)

var migrationsSource = "file://migrations"

// app owns the connections shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *logging.Logger

	store repository.EventStore
	pool  *pgxpool.Pool

	closers []func() error
}

// newApp opens the configured event store. Postgres is migrated first.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		connString := cfg.Database.Postgres.ConnString()
		if err := runMigrations(connString, logger); err != nil {
			return nil, err
		}
		pg, err := repository.NewPostgresStore(ctx, connString)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.store, a.pool = pg, pg.Pool()
	case config.BackendOpenSearch:
		search, err := repository.NewOpenSearchStore(ctx, cfg.OpenSearch)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to OpenSearch: %w", err)
		}
		a.store = search
	default:
		logger.Warn("Using in-memory event store; events are lost on exit")
		a.store = repository.NewInMemoryStore()
	}
	a.closers = append(a.closers, a.store.Close)

	logger.Info("Event store ready", "backend", cfg.Store.Backend)
	return a, nil
}

func runMigrations(connString string, logger *logging.Logger) error {
	logger.Info("Running database migrations...")
	m, err := migrate.New(migrationsSource, connString)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database migrations completed")
	return nil
}

func (a *app) identity() (identity.Directory, error) {
	switch a.cfg.Identity.Backend {
	case config.BackendHTTP:
		return identity.NewHTTPClient(a.cfg.Identity.URL, a.cfg.Identity.Token, a.cfg.Identity.Timeout), nil
	case config.BackendPostgres:
		if a.pool == nil {
			return nil, errors.New("postgres identity backend needs the postgres store")
		}
		return identity.NewPostgresDirectory(a.pool, a.cfg.Identity.Timeout), nil
	default:
		a.logger.Warn("Using in-memory identity directory; actors are not really disabled")
		return identity.NewInMemoryDirectory(), nil
	}
}

// claims connects to Redis for burst claims. An unreachable Redis is logged
// and claims fail open.
func (a *app) claims(ctx context.Context) *state.BlockClaims {
	if !a.cfg.Redis.Enabled {
		return state.NewBlockClaims(nil, false)
	}

	opts, err := redis.ParseURL(a.cfg.Redis.URL)
	if err != nil {
		a.logger.Warn("Invalid redis URL, burst claims disabled", logging.Error(err))
		return state.NewBlockClaims(nil, false)
	}
	opts.MaxRetries = a.cfg.Redis.MaxRetries
	opts.PoolSize = a.cfg.Redis.PoolSize

	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	claims := state.NewBlockClaims(client, true)
	if err := claims.Ping(ctx); err != nil {
		a.logger.Warn("Redis unreachable, burst claims will fail open", logging.Error(err))
	}
	return claims
}

// engine assembles the detection pipeline.
func (a *app) engine(ctx context.Context) (*remediation.Engine, *state.BlockClaims, error) {
	dir, err := a.identity()
	if err != nil {
		return nil, nil, err
	}
	cls := classifier.New(a.cfg.Sentinel.SelfID)
	claims := a.claims(ctx)

	eng := remediation.NewEngine(a.cfg.Sentinel, remediation.Deps{
		Classifier: cls,
		Counter:    aggregator.New(a.store, cls, a.cfg.Sentinel.QueryTimeout),
		Identity:   dir,
		Recorder:   a.store,
		Alerts:     alert.NewDispatcher(a.cfg.Alert, a.logger),
		Claims:     claims,
		Logger:     a.logger,
	})
	return eng, claims, nil
}

// feed connects to the configured change feed. Both returned values are nil
// for the "none" source.
func (a *app) feed(ctx context.Context) (messaging.Consumer, messaging.Publisher, handlers.Pinger, error) {
	switch a.cfg.Feed.Source {
	case config.FeedNATS:
		ncfg := a.cfg.NATS
		ncfg.Workers = a.cfg.Feed.Workers
		js, err := nats.NewJetStreamClient(ncfg, a.logger)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, js.Drain)
		if err := js.Setup(ctx, ncfg.Workers*4); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to set up JetStream: %w", err)
		}
		return js, js, handlers.PingFunc(js.CheckHealth), nil
	case config.FeedKafka:
		consumer, err := kafka.NewConsumer(a.cfg.Kafka, a.logger)
		if err != nil {
			return nil, nil, nil, err
		}
		producer := kafka.NewProducer(a.cfg.Kafka)
		a.closers = append(a.closers, producer.Close)
		return consumer, producer, nil, nil
	default:
		return nil, nil, nil, nil
	}
}

// feedSubject is the subject (or topic) appended events are published on.
func (a *app) feedSubject() string {
	if a.cfg.Feed.Source == config.FeedKafka {
		return a.cfg.Kafka.Topic
	}
	return a.cfg.NATS.Subject
}

// objects returns the export destination, or nil when no bucket is set.
func (a *app) objects(ctx context.Context) (objectstore.Store, error) {
	if a.cfg.Export.S3.Bucket == "" {
		return nil, nil
	}
	s3, err := objectstore.NewS3Store(ctx, a.cfg.Export.S3)
	if err != nil {
		return nil, err
	}
	return s3, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Error during shutdown", logging.Error(err))
		}
	}
}
