package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBUser     = "fwatch"
	DefaultDBName     = "fwatch"
	DefaultDBMaxConns = 10

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "fwatch:"
	DefaultLockTTL        = 30 * time.Second

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "fwatch-worker"

	TopicCaseEvents      = "foreclosure.case.events"
	TopicCaseExtractions = "foreclosure.case.extractions"
	TopicCaseClassified  = "foreclosure.case.classified"
	TopicCaseLedger      = "foreclosure.case.ledger"
	TopicDiscrepancies   = "foreclosure.case.discrepancies"
	TopicDeadLetter      = "foreclosure.case.dlq"

	DefaultMetricsNamespace = "fwatch"

	DefaultHandlerTimeout = 30 * time.Second

	DefaultSweepInterval    = time.Hour
	DefaultSweepConcurrency = 8
	DefaultSweepBatchSize   = 500
	DefaultSweepTimezone    = "America/New_York"

	DefaultArchiveBucket = "fwatch-payloads"
	DefaultArchiveRegion = "us-east-1"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDiscrepancyTolerance = "0.01"
)

// ApplyDefaults fills every zero-value field in cfg with the default.
// Explicitly set fields are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultLockTTL
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}
	applyTopicDefaults(&cfg.Kafka.Topics)

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// ── Worker / Sweep ────────────────────────────────────────────────────────
	if cfg.Worker.HandlerTimeout == 0 {
		cfg.Worker.HandlerTimeout = DefaultHandlerTimeout
	}
	if cfg.Sweep.Interval == 0 {
		cfg.Sweep.Interval = DefaultSweepInterval
	}
	if cfg.Sweep.Concurrency == 0 {
		cfg.Sweep.Concurrency = DefaultSweepConcurrency
	}
	if cfg.Sweep.BatchSize == 0 {
		cfg.Sweep.BatchSize = DefaultSweepBatchSize
	}
	if cfg.Sweep.Timezone == "" {
		cfg.Sweep.Timezone = DefaultSweepTimezone
	}

	// ── Archive ───────────────────────────────────────────────────────────────
	if cfg.Archive.Bucket == "" {
		cfg.Archive.Bucket = DefaultArchiveBucket
	}
	if cfg.Archive.Region == "" {
		cfg.Archive.Region = DefaultArchiveRegion
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	// Empty indicator lists are filled in by foreclosure.NewRuleSet.
	if cfg.Engine.UpsetBidWindowDays == 0 {
		cfg.Engine.UpsetBidWindowDays = calendar.DefaultUpsetBidWindowDays
	}
	if cfg.Engine.DiscrepancyTolerance == "" {
		cfg.Engine.DiscrepancyTolerance = DefaultDiscrepancyTolerance
	}
}

func applyTopicDefaults(t *TopicConfig) {
	set := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	set(&t.Events, TopicCaseEvents)
	set(&t.Extractions, TopicCaseExtractions)
	set(&t.Classified, TopicCaseClassified)
	set(&t.Ledger, TopicCaseLedger)
	set(&t.Discrepancies, TopicDiscrepancies)
	set(&t.DeadLetter, TopicDeadLetter)
}

// registerKeys makes every scalar key known to viper so that FWATCH_*
// variables resolve even when no config file mentions the key.
func registerKeys(v *viper.Viper) {
	var d Config
	ApplyDefaults(&d)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.mode", d.Server.Mode)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", d.Database.DBName)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", d.Redis.KeyPrefix)
	v.SetDefault("redis.lock_ttl", d.Redis.LockTTL)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.group_id", d.Kafka.GroupID)
	v.SetDefault("kafka.auto_offset_reset", d.Kafka.AutoOffsetReset)
	v.SetDefault("kafka.topics.events", d.Kafka.Topics.Events)
	v.SetDefault("kafka.topics.extractions", d.Kafka.Topics.Extractions)
	v.SetDefault("kafka.topics.classified", d.Kafka.Topics.Classified)
	v.SetDefault("kafka.topics.ledger", d.Kafka.Topics.Ledger)
	v.SetDefault("kafka.topics.discrepancies", d.Kafka.Topics.Discrepancies)
	v.SetDefault("kafka.topics.dead_letter", d.Kafka.Topics.DeadLetter)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)

	v.SetDefault("worker.handler_timeout", d.Worker.HandlerTimeout)
	v.SetDefault("sweep.interval", d.Sweep.Interval)
	v.SetDefault("sweep.concurrency", d.Sweep.Concurrency)
	v.SetDefault("sweep.timezone", d.Sweep.Timezone)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
	v.SetDefault("archive.use_ssl", false)
	v.SetDefault("archive.region", d.Archive.Region)
	v.SetDefault("archive.bucket", d.Archive.Bucket)
	v.SetDefault("archive.retention_days", 0)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("engine.upset_bid_window_days", d.Engine.UpsetBidWindowDays)
	v.SetDefault("engine.discrepancy_tolerance", d.Engine.DiscrepancyTolerance)
	v.SetDefault("engine.rules.bid_increase_multiplier", "")
}
