package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 9090
  mode: test
database:
  host: pg.internal
  user: fwatch
  db_name: foreclosures
redis:
  addr: redis.internal:6379
  lock_ttl: 45s
kafka:
  brokers: ["k1:9092", "k2:9092"]
  group_id: fwatch-test
sweep:
  interval: 15m
  timezone: America/New_York
log:
  level: debug
engine:
  upset_bid_window_days: 10
  rules:
    sale_indicators: ["Report of Sale"]
    bid_increase_multiplier: "1.05"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "pg.internal", cfg.Database.Host)
	assert.Equal(t, 45*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, []string{"Report of Sale"}, cfg.Engine.Rules.SaleIndicators)
	assert.Equal(t, "1.05", cfg.Engine.Rules.BidIncreaseMultiplier)
	assert.Equal(t, TopicCaseClassified, cfg.Kafka.Topics.Classified)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	path := createTempConfigFile(t, "server: [")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrConfigParseError)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	path := createTempConfigFile(t, "engine:\n  rules:\n    bid_increase_multiplier: \"0.5\"\n")
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("FWATCH_DATABASE_HOST", "pg.override")
	t.Setenv("FWATCH_SWEEP_CONCURRENCY", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pg.override", cfg.Database.Host)
	assert.Equal(t, 3, cfg.Sweep.Concurrency)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FWATCH_REDIS_ADDR", "cache:6380")
	t.Setenv("FWATCH_ENGINE_UPSET_BID_WINDOW_DAYS", "12")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, 12, cfg.Engine.UpsetBidWindowDays)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
}

func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.UpsetBidWindowDays)
	assert.Equal(t, "1.05", cfg.Engine.Rules.BidIncreaseMultiplier)
	assert.Len(t, cfg.Engine.Rules.ComplicationIndicators, 6)
	assert.False(t, cfg.Archive.Enabled)
	assert.Equal(t, DefaultArchiveBucket, cfg.Archive.Bucket)
	assert.Equal(t, TopicDeadLetter, cfg.Kafka.Topics.DeadLetter)
}

func TestMustLoad_Panics(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	var window atomic.Int64
	var failures atomic.Int64
	err := Watch(path,
		func(cfg *Config) { window.Store(int64(cfg.Engine.UpsetBidWindowDays)) },
		func(error) { failures.Add(1) },
	)
	require.NoError(t, err)

	updated := validConfigYAML + "\n" + "# reload\n"
	updated = strings.Replace(updated, "upset_bid_window_days: 10", "upset_bid_window_days: 11", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool { return window.Load() == 11 }, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, failures.Load())
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "missing.yaml"), func(*Config) {}, nil)
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}
