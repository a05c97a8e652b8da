// Command worker consumes scraped dockets and document extractions from
// Kafka, keeps case classifications and bid ledgers current, runs the
// periodic staleness sweep and serves the ops endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/turtacn/ForeclosureWatch/internal/bootstrap"
	"github.com/turtacn/ForeclosureWatch/internal/config"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/internal/interfaces/cli"
	httpserver "github.com/turtacn/ForeclosureWatch/internal/interfaces/http"
	"github.com/turtacn/ForeclosureWatch/internal/interfaces/http/handlers"
	"github.com/turtacn/ForeclosureWatch/internal/interfaces/worker"
)

const (
	defaultWorkerConfigPath = "configs/config.yaml"
	topicSetupTimeout       = 30 * time.Second
	shutdownTimeout         = 30 * time.Second
)

func main() {
	configPath := flag.String("config", defaultWorkerConfigPath, "path to configuration file (empty: environment only)")
	noSweep := flag.Bool("no-sweep", false, "do not run the periodic staleness sweep")
	flag.Parse()

	if *configPath != "" {
		if _, err := os.Stat(*configPath); err != nil {
			*configPath = ""
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, !*noSweep, logger); err != nil {
		logger.Error("Worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, sweep bool, logger logging.Logger) error {
	logger.Info("Starting ForeclosureWatch worker",
		logging.String("version", cli.Version),
		logging.Strings("brokers", cfg.Kafka.Brokers),
		logging.String("group", cfg.Kafka.GroupID))

	infra, err := bootstrap.New(cfg, logger, bootstrap.Options{Publish: true, Metrics: true, Archive: true})
	if err != nil {
		return fmt.Errorf("infrastructure: %w", err)
	}
	defer infra.Close()

	ensureTopics(cfg, logger)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		return fmt.Errorf("kafka consumer: %w", err)
	}

	opts := worker.HandlerOptions{Timeout: cfg.Worker.HandlerTimeout, Logger: logger}
	if infra.Metrics != nil {
		opts.Recorder = infra.Metrics
	}
	if infra.Archive != nil {
		opts.Archive = infra.Archive
	}
	if err := worker.Register(consumer,
		worker.NewCaseEventsHandler(cfg.Kafka.Topics.Events, infra.Service, opts),
		worker.NewExtractionHandler(cfg.Kafka.Topics.Extractions, infra.Service, opts),
	); err != nil {
		_ = consumer.Close()
		return fmt.Errorf("subscribe: %w", err)
	}

	if configPath != "" {
		watchErr := config.Watch(configPath, func(next *config.Config) {
			if err := infra.Engine.Reload(next.Engine); err != nil {
				logger.Error("Engine rules reload rejected", logging.Err(err))
				return
			}
			logger.Info("Engine rules reloaded", logging.String("path", configPath))
		}, func(err error) {
			logger.Error("Configuration reload failed", logging.Err(err))
		})
		if watchErr != nil {
			logger.Warn("Configuration watch disabled", logging.Err(watchErr))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if sweep {
		sweeper := worker.NewSweeper(infra.Service, cfg.Sweep.Interval, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Run(ctx)
		}()
	}

	srv := newOpsServer(cfg, infra, logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	if err := consumer.Start(ctx); err != nil {
		cancel()
		_ = consumer.Close()
		return fmt.Errorf("kafka consumer start: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", logging.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("Ops server failed", logging.Err(err))
		}
	}

	cancel()
	if err := consumer.Close(); err != nil {
		logger.Warn("Kafka consumer close failed", logging.Err(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("Ops server shutdown failed", logging.Err(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("Sweep did not finish before shutdown deadline")
	}

	logger.Info("ForeclosureWatch worker stopped")
	return nil
}

// ensureTopics creates missing topics. Clusters that forbid topic creation
// are expected to have them provisioned already.
func ensureTopics(cfg *config.Config, logger logging.Logger) {
	tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Warn("Topic manager unavailable; assuming topics exist", logging.Err(err))
		return
	}
	defer tm.Close()

	replication := len(cfg.Kafka.Brokers)
	if replication > 3 {
		replication = 3
	}
	ctx, cancel := context.WithTimeout(context.Background(), topicSetupTimeout)
	defer cancel()
	if err := tm.EnsureTopics(ctx, kafka.TopicSpecs(cfg.Kafka.Topics, replication)); err != nil {
		logger.Warn("Topic setup incomplete", logging.Err(err))
	}
}

func newOpsServer(cfg *config.Config, infra *bootstrap.Infrastructure, logger logging.Logger) *httpserver.Server {
	var gauge handlers.HealthGauge
	rc := httpserver.RouterConfig{Mode: cfg.Server.Mode, Logger: logger}
	if infra.Metrics != nil {
		gauge = infra.Metrics
		rc.HTTPMetrics = infra.Metrics
	}
	if infra.Collector != nil {
		rc.MetricsHandler = infra.Collector.Handler()
	}
	checks := []handlers.HealthChecker{
		handlers.CheckFunc{Component: "postgres", Fn: infra.PingDatabase},
		handlers.CheckFunc{Component: "redis", Fn: infra.PingRedis},
	}
	if infra.Storage != nil {
		checks = append(checks, handlers.CheckFunc{Component: "archive", Fn: infra.PingArchive})
	}
	rc.Health = handlers.NewHealthHandler(cli.Version, gauge, checks...)
	return httpserver.NewServer(cfg.Server, httpserver.NewRouter(rc), logger)
}
