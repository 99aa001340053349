package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/internal/repositories/batch"
	"github.com/Ramsey-B/fern/internal/repositories/matchresult"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/internal/repositories/template"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depKafka    = "kafka"
	depGraph    = "graph"
)

// app holds the connections a command needs. Connections are opened by the
// startup graph so a slow dependency is retried before the command gives up.
type app struct {
	cfg     config.Config
	logger  ectologger.Logger
	startup *startup.Startup
	catalog *catalog.Catalog

	db       database.DB
	sqlDB    *sqlx.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client

	templates *template.Repository
	batches   *batch.Repository
	persons   *person.Repository
	results   *matchresult.Repository
}

func newApp() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.New(logger, cfg.StartupMaxAttempts),
		catalog: cat,
	}, nil
}

func newLogger(cfg config.Config) (ectologger.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

func (a *app) withTracing() *app {
	if !a.cfg.OTLPEnabled {
		return a
	}

	var shutdown func(context.Context) error
	a.startup.AddDependency(startup.Func{
		Name: depTracing,
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Setup(ctx, a.cfg.OTLP())
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	})
	return a
}

// withDatabase opens Postgres and builds the repositories. migrate applies
// pending migrations once connected.
func (a *app) withDatabase(migrate bool) *app {
	a.startup.AddDependency(startup.Func{
		Name: depDatabase,
		OnStart: func(ctx context.Context) error {
			db, sqlDB, err := database.Open(ctx, a.cfg.Database(), a.logger)
			if err != nil {
				return err
			}
			if migrate {
				if err := database.NewMigrationService(a.logger, a.cfg.Migration()).MigratePostgres(a.cfg.DatabaseName, sqlDB.DB); err != nil {
					_ = sqlDB.Close()
					return err
				}
			}

			a.db, a.sqlDB = db, sqlDB
			a.templates = template.NewRepository(db, a.logger)
			a.batches = batch.NewRepository(db, a.logger)
			a.persons = person.NewRepository(db, a.logger)
			a.results = matchresult.NewRepository(db, a.logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.sqlDB == nil {
				return nil
			}
			return a.sqlDB.Close()
		},
	})
	return a
}

func (a *app) withRedis() *app {
	if !a.cfg.RedisEnabled {
		return a
	}

	a.startup.AddDependency(startup.Func{
		Name: depRedis,
		OnStart: func(ctx context.Context) error {
			client, err := redis.NewClient(ctx, a.cfg.Redis(), a.logger)
			if err != nil {
				return err
			}
			a.redis = client
			return nil
		},
		OnStop: func(context.Context) error {
			if a.redis == nil {
				return nil
			}
			return a.redis.Close()
		},
	})
	return a
}

func (a *app) withProducer() *app {
	if !a.cfg.KafkaEnabled {
		return a
	}

	a.startup.AddDependency(startup.Func{
		Name: depKafka,
		OnStart: func(context.Context) error {
			a.producer = kafka.NewProducer(a.cfg.Producer(), a.logger)
			return nil
		},
		OnStop: func(context.Context) error {
			if a.producer == nil {
				return nil
			}
			return a.producer.Close()
		},
	})
	return a
}

func (a *app) withGraph() *app {
	if !a.cfg.GraphEnabled {
		return a
	}

	a.startup.AddDependency(startup.Func{
		Name: depGraph,
		OnStart: func(ctx context.Context) error {
			client, err := graph.NewClient(a.cfg.Graph(), a.logger)
			if err != nil {
				return err
			}
			if err := client.VerifyConnectivity(ctx); err != nil {
				_ = client.Close(ctx)
				return err
			}
			a.graph = client
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if a.graph == nil {
				return nil
			}
			return a.graph.Close(ctx)
		},
	})
	return a
}

// withPipeline adds every dependency the import pipeline can use
func (a *app) withPipeline() *app {
	return a.withTracing().withDatabase(false).withRedis().withProducer().withGraph()
}

func (a *app) start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to stop dependencies")
	}
}

func (a *app) locker() importer.Locker {
	if a.redis == nil {
		return importer.NewKeyedMutex()
	}
	return importer.NewRedisLocker(redis.NewLocker(a.redis, a.cfg.LockKeyPrefix), a.cfg.LockTTL, a.cfg.LockWait, a.logger)
}

func (a *app) lineage() *graph.Lineage {
	if a.graph == nil {
		return nil
	}
	return graph.NewLineage(a.graph, a.logger)
}

// importer wires the pipeline against whatever dependencies were started
func (a *app) importer() *importer.Service {
	opts := []importer.Option{importer.WithLocker(a.locker())}
	if a.producer != nil {
		opts = append(opts, importer.WithPublisher(events.NewEmitter(a.producer, a.logger)))
	}
	if lineage := a.lineage(); lineage != nil {
		opts = append(opts, importer.WithLineage(lineage))
	}

	return importer.NewService(
		importer.Config{
			SampleRows: a.cfg.ValueSampleRows,
			Scope:      importer.ParseScope(a.cfg.MatchCandidateScope),
		},
		a.catalog,
		matching.NewDefaultEngine(),
		repositories.NewRecordStore(a.persons, a.results),
		a.batches,
		database.NewTransactor(a.db),
		a.logger,
		opts...,
	)
}
