// Package bootstrap builds the process-wide infrastructure shared by the
// worker binary and the infrastructure-backed CLI commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/config"
	pgconn "github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres"
	pgrepo "github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres/repositories"
	redisclient "github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/redis"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/storage/minio"
)

// Options selects the optional parts of the infrastructure.
type Options struct {
	// Publish creates a Kafka producer for outcome events. Without it the
	// service drops them.
	Publish bool
	// Metrics registers the Prometheus collector.
	Metrics bool
	// Archive connects the payload archive when archive.enabled is set.
	Archive bool
}

// Infrastructure holds every long-lived client of one process.
type Infrastructure struct {
	Config *config.Config
	Logger logging.Logger

	Pool      *pgxpool.Pool
	Redis     *redisclient.Client
	Producer  *kafka.Producer
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.EngineMetrics
	Storage   *minio.Client
	Archive   *minio.Archive

	Engine  *appForeclosure.EngineHolder
	Service appForeclosure.CaseMonitorService
}

// New connects to PostgreSQL and Redis, optionally Kafka and Prometheus,
// and assembles the case monitor service. Partially built clients are
// closed on error.
func New(cfg *config.Config, logger logging.Logger, opts Options) (*Infrastructure, error) {
	infra := &Infrastructure{Config: cfg, Logger: logger}

	engine, err := appForeclosure.NewEngine(cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	infra.Engine = appForeclosure.NewEngineHolder(engine)

	loc, err := cfg.Sweep.Location()
	if err != nil {
		return nil, fmt.Errorf("sweep timezone: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := pgconn.RunMigrations(pgconn.ConnString(cfg.Database)); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	pool, err := pgconn.NewConnectionPool(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	infra.Pool = pool

	rdb, err := redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	infra.Redis = rdb

	var publisher appForeclosure.Publisher = appForeclosure.NopPublisher{}
	if opts.Publish {
		producer, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		infra.Producer = producer
		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.Topics, logger)
	}

	var metrics appForeclosure.Metrics = appForeclosure.NopMetrics{}
	if opts.Metrics && cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(cfg.Metrics), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.Collector = collector
		infra.Metrics = prometheus.NewEngineMetrics(collector)
		metrics = infra.Metrics
	}

	if opts.Archive && cfg.Archive.Enabled {
		storage, err := minio.NewClient(cfg.Archive, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		infra.Storage = storage
		infra.Archive = minio.NewArchive(storage)
	}

	svc, err := appForeclosure.NewCaseMonitorService(appForeclosure.Dependencies{
		Cases:         pgrepo.NewCaseRepository(pool, logger),
		Events:        pgrepo.NewEventRepository(pool, logger),
		Bids:          pgrepo.NewBidObservationRepository(pool),
		Discrepancies: pgrepo.NewDiscrepancyRepository(pool),
		Locker:        redisclient.NewCaseLocker(rdb, cfg.Redis.LockTTL, logger),
		Publisher:     publisher,
		Metrics:       metrics,
		Engine:        infra.Engine,
		Logger:        logger,
	}, appForeclosure.ServiceConfig{
		SweepConcurrency: cfg.Sweep.Concurrency,
		SweepBatchSize:   cfg.Sweep.BatchSize,
		Location:         loc,
	})
	if err != nil {
		infra.Close()
		return nil, err
	}
	infra.Service = svc

	logger.Info("Infrastructure initialized",
		logging.Bool("publish", opts.Publish),
		logging.Bool("metrics", infra.Collector != nil),
		logging.Bool("archive", infra.Archive != nil))
	return infra, nil
}

// PingDatabase is the PostgreSQL readiness probe.
func (i *Infrastructure) PingDatabase(ctx context.Context) error {
	return pgconn.HealthCheck(ctx, i.Pool)
}

// PingRedis is the Redis readiness probe.
func (i *Infrastructure) PingRedis(ctx context.Context) error {
	return i.Redis.Ping(ctx)
}

// PingArchive is the object storage readiness probe.
func (i *Infrastructure) PingArchive(ctx context.Context) error {
	return i.Storage.Ping(ctx)
}

// Close releases clients in reverse order of creation.
func (i *Infrastructure) Close() {
	if i.Storage != nil {
		_ = i.Storage.Close()
	}
	if i.Producer != nil {
		if err := i.Producer.Close(); err != nil {
			i.Logger.Warn("Kafka producer close failed", logging.Err(err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.Logger.Warn("Redis close failed", logging.Err(err))
		}
	}
	pgconn.Close(i.Pool)
}
