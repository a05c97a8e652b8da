// Package config defines the configuration structures for ForeclosureWatch.
// No I/O lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds the operations HTTP listener (health and metrics).
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection parameters. Redis backs the per-case
// processing lock.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// TopicConfig names the Kafka topics.
type TopicConfig struct {
	Events        string `mapstructure:"events"`
	Extractions   string `mapstructure:"extractions"`
	Classified    string `mapstructure:"classified"`
	Ledger        string `mapstructure:"ledger"`
	Discrepancies string `mapstructure:"discrepancies"`
	DeadLetter    string `mapstructure:"dead_letter"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	BatchSize       int           `mapstructure:"batch_size"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	Topics          TopicConfig   `mapstructure:"topics"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// WorkerConfig holds background-worker execution parameters.
// Messages are handled one at a time per consumer so a case's dockets
// apply in partition order.
type WorkerConfig struct {
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
}

// SweepConfig controls the periodic staleness sweep.
type SweepConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	BatchSize   int           `mapstructure:"batch_size"`
	Timezone    string        `mapstructure:"timezone"`
}

// Location resolves Timezone. An empty value means UTC.
func (s SweepConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ArchiveConfig controls the raw payload archive in S3-compatible object
// storage. Disabled by default.
type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	// RetentionDays expires archived objects; zero keeps them forever.
	RetentionDays int `mapstructure:"retention_days"`
}

// EngineConfig holds the classification and ledger rules plus the
// reconciliation tolerance. It is turned into immutable snapshots at load
// time and on every hot reload.
type EngineConfig struct {
	Rules                foreclosure.RuleConfig `mapstructure:"rules"`
	UpsetBidWindowDays   int                    `mapstructure:"upset_bid_window_days"`
	DiscrepancyTolerance string                 `mapstructure:"discrepancy_tolerance"`
}

// Tolerance parses DiscrepancyTolerance.
func (e EngineConfig) Tolerance() (decimal.Decimal, error) {
	return decimal.NewFromString(e.DiscrepancyTolerance)
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Worker   WorkerConfig      `mapstructure:"worker"`
	Sweep    SweepConfig       `mapstructure:"sweep"`
	Archive  ArchiveConfig     `mapstructure:"archive"`
	Log      logging.LogConfig `mapstructure:"log"`
	Engine   EngineConfig      `mapstructure:"engine"`
}

// Validate performs semantic validation of the fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return invalid("database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return invalid("database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return invalid("database.user is required")
	}
	if c.Database.DBName == "" {
		return invalid("database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return invalid("database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Addr == "" {
		return invalid("redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return invalid("redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.Redis.LockTTL <= 0 {
		return invalid("redis.lock_ttl must be positive")
	}

	if len(c.Kafka.Brokers) == 0 {
		return invalid("kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return invalid("kafka.group_id is required")
	}
	switch c.Kafka.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return invalid("kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
	}

	if c.Worker.HandlerTimeout < 0 {
		return invalid("worker.handler_timeout must not be negative")
	}
	if c.Sweep.Concurrency < 1 {
		return invalid("sweep.concurrency must be >= 1, got %d", c.Sweep.Concurrency)
	}
	if c.Sweep.Interval <= 0 {
		return invalid("sweep.interval must be positive")
	}
	if _, err := c.Sweep.Location(); err != nil {
		return invalid("sweep.timezone %q: %v", c.Sweep.Timezone, err)
	}

	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return invalid("archive.endpoint is required when the archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return invalid("archive.bucket is required when the archive is enabled")
		}
	}
	if c.Archive.RetentionDays < 0 {
		return invalid("archive.retention_days must be >= 0, got %d", c.Archive.RetentionDays)
	}

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return c.Engine.Validate()
}

// Validate checks that the engine section builds a usable rule snapshot.
func (e EngineConfig) Validate() error {
	if e.UpsetBidWindowDays < 1 {
		return invalid("engine.upset_bid_window_days must be >= 1, got %d", e.UpsetBidWindowDays)
	}
	tol, err := e.Tolerance()
	if err != nil {
		return invalid("engine.discrepancy_tolerance %q is not a number", e.DiscrepancyTolerance)
	}
	if tol.IsNegative() {
		return invalid("engine.discrepancy_tolerance must not be negative")
	}
	if _, err := foreclosure.NewRuleSet(e.Rules); err != nil {
		return invalid("engine.rules: %v", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
