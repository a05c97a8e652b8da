package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

var (
	ErrLockNotAcquired = errors.New(errors.ErrCodeLockNotAcquired, "failed to acquire lock")
	ErrLockNotHeld     = errors.New(errors.ErrCodeLockNotAcquired, "lock not held by this owner")
)

// LockOption configures a Mutex.
type LockOption func(*lockConfig)

// WithLockTTL sets how long the key lives without renewal.
func WithLockTTL(ttl time.Duration) LockOption {
	return func(c *lockConfig) { c.ttl = ttl }
}

// WithRetryDelay sets the wait between acquisition attempts.
func WithRetryDelay(delay time.Duration) LockOption {
	return func(c *lockConfig) { c.retryDelay = delay }
}

// WithRetryCount sets the number of acquisition attempts made by Lock.
func WithRetryCount(count int) LockOption {
	return func(c *lockConfig) { c.retryCount = count }
}

// WithWatchdog keeps the key alive while the lock is held.
func WithWatchdog(enabled bool) LockOption {
	return func(c *lockConfig) { c.watchdogEnabled = enabled }
}

type lockConfig struct {
	ttl              time.Duration
	retryDelay       time.Duration
	retryCount       int
	watchdogEnabled  bool
	watchdogInterval time.Duration
}

func defaultLockConfig() lockConfig {
	return lockConfig{
		ttl:        30 * time.Second,
		retryDelay: 100 * time.Millisecond,
		retryCount: 30,
	}
}

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Mutex is a single-owner lock on one Redis key. A Mutex value must not be
// shared between goroutines; create one per critical section.
type Mutex struct {
	rdb            redis.UniversalClient
	key            string
	value          string
	config         lockConfig
	logger         logging.Logger
	watchdogCancel context.CancelFunc
	watchdogDone   chan struct{}
}

// NewMutex builds a mutex on key with a random owner token.
func NewMutex(client *Client, key string, log logging.Logger, opts ...LockOption) *Mutex {
	cfg := defaultLockConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.watchdogEnabled && cfg.watchdogInterval == 0 {
		cfg.watchdogInterval = cfg.ttl / 3
	}
	return &Mutex{
		rdb:    client.GetUnderlyingClient(),
		key:    key,
		value:  uuid.NewString(),
		config: cfg,
		logger: log,
	}
}

// Key returns the Redis key guarded by m.
func (m *Mutex) Key() string { return m.key }

// Lock retries TryLock until it succeeds, the retry budget runs out
// (ErrLockNotAcquired) or ctx ends.
func (m *Mutex) Lock(ctx context.Context) error {
	for i := 0; i < m.config.retryCount; i++ {
		ok, err := m.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.retryDelay):
		}
	}
	return ErrLockNotAcquired.WithDetail("key=" + m.key)
}

// TryLock makes a single attempt.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	ok, err := m.rdb.SetNX(ctx, m.key, m.value, m.config.ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if ok && m.config.watchdogEnabled {
		m.startWatchdog()
	}
	return ok, nil
}

// Unlock deletes the key if this mutex still owns it.
func (m *Mutex) Unlock(ctx context.Context) error {
	m.stopWatchdog()
	res, err := unlockScript.Run(ctx, m.rdb, []string{m.key}, m.value).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld.WithDetail("key=" + m.key)
	}
	return nil
}

// Extend resets the TTL if this mutex still owns the key.
func (m *Mutex) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	res, err := extendScript.Run(ctx, m.rdb, []string{m.key}, m.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to extend lock")
	}
	return res == 1, nil
}

// TTL reports the remaining lifetime of the key.
func (m *Mutex) TTL(ctx context.Context) (time.Duration, error) {
	return m.rdb.PTTL(ctx, m.key).Result()
}

func (m *Mutex) startWatchdog() {
	ctx, cancel := context.WithCancel(context.Background())
	m.watchdogCancel = cancel
	m.watchdogDone = make(chan struct{})
	go runWatchdog(ctx, m.Extend, m.config.watchdogInterval, m.config.ttl, m.logger.With(logging.String("lock", m.key)), m.watchdogDone)
}

func (m *Mutex) stopWatchdog() {
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		<-m.watchdogDone
		m.watchdogCancel = nil
	}
}

func runWatchdog(ctx context.Context, extendFn func(context.Context, time.Duration) (bool, error), interval, ttl time.Duration, log logging.Logger, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := extendFn(ctx, ttl)
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Watchdog failed to extend lock", logging.Err(err))
				}
				return
			}
			if !ok {
				log.Warn("Watchdog lost lock")
				return
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// CaseLocker
// ─────────────────────────────────────────────────────────────────────────────

// CaseLocker hands out per-case mutexes keyed "<prefix>lock:case:<id>".
// All work that reads and writes a case's engine state runs under it.
type CaseLocker struct {
	client *Client
	opts   []LockOption
	logger logging.Logger
}

// NewCaseLocker builds a CaseLocker whose locks live for ttl and are kept
// alive by a watchdog while held.
func NewCaseLocker(client *Client, ttl time.Duration, log logging.Logger, opts ...LockOption) *CaseLocker {
	all := append([]LockOption{WithLockTTL(ttl), WithWatchdog(true)}, opts...)
	return &CaseLocker{client: client, opts: all, logger: log}
}

// Key returns the lock key for caseID.
func (l *CaseLocker) Key(caseID string) string {
	return l.client.Key("lock", "case", caseID)
}

// Lock waits for the case lock and returns its release function.
func (l *CaseLocker) Lock(ctx context.Context, caseID string) (func(context.Context) error, error) {
	m := NewMutex(l.client, l.Key(caseID), l.logger, l.opts...)
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	return m.Unlock, nil
}

// TryLock makes one attempt. ok is false when another worker holds the lock.
func (l *CaseLocker) TryLock(ctx context.Context, caseID string) (release func(context.Context) error, ok bool, err error) {
	m := NewMutex(l.client, l.Key(caseID), l.logger, l.opts...)
	ok, err = m.TryLock(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	return m.Unlock, true, nil
}
