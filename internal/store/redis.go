package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/traintrack/gatekeeper/internal/config"
	"github.com/traintrack/gatekeeper/internal/models"
)

// Key prefixes for the attempt tracker. Counter keys expire with their
// window (or with the lock they triggered); lock keys store the lock
// expiry as unix milliseconds and expire at exactly that instant, so a
// passed lock reads as a fresh zero count with no sweeper involved.
const (
	accountAttemptPrefix = "attempts:acct:"
	ipAttemptPrefix      = "attempts:ip:"
	ipEmailSetPrefix     = "attempts:ipset:"
	accountLockPrefix    = "lock:acct:"
	ipLockPrefix         = "lock:ip:"
	ipEmailLockPrefix    = "lock:ipmail:"
)

// extendLockScript sets a lock expiry only when it moves forward. A lock
// is never shortened by a concurrent failed attempt. When the lock wins,
// the companion counter key inherits the lock's lifetime so the count
// survives until the lock clears and then resets lazily.
var extendLockScript = redis.NewScript(`
	local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
	local new = tonumber(ARGV[1])
	if new > cur then
		redis.call('SET', KEYS[1], new, 'PXAT', new)
		if KEYS[2] ~= '' then
			redis.call('PEXPIREAT', KEYS[2], new)
		end
		return new
	end
	return cur
`)

// Counts is a snapshot of every tracker dimension for one login context
type Counts struct {
	AccountCount      int64
	IPCount           int64
	IPDistinctEmails  int64
	AccountLockExpiry time.Time // zero when not locked
	IPLockExpiry      time.Time
	IPEmailLockExpiry time.Time
}

// RedisCounterStore backs the attempt tracker with atomic Redis
// primitives: INCR for counters, SADD/SCARD for the distinct-email set,
// a Lua script for monotonic lock extension. Concurrent failures for the
// same key never lose updates.
type RedisCounterStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisCounterStore connects to Redis and verifies the connection
func NewRedisCounterStore(cfg *config.RedisConfig, logger *slog.Logger) (*RedisCounterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}

	logger.Info("counter store connection established", slog.String("addr", cfg.Addr))

	return &RedisCounterStore{client: client, logger: logger}, nil
}

func (s *RedisCounterStore) Close() error {
	return s.client.Close()
}

func (s *RedisCounterStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("counter store health check failed: %w", err)
	}
	return nil
}

// incrWithWindow atomically increments a counter, starting its fixed
// window on first increment. EXPIRE NX leaves an already-running window
// (or a lock-extended lifetime) untouched.
func (s *RedisCounterStore) incrWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	return incr.Val(), nil
}

// IncrAccountFailures bumps the per-account failure counter
func (s *RedisCounterStore) IncrAccountFailures(ctx context.Context, account string, window time.Duration) (int64, error) {
	return s.incrWithWindow(ctx, accountAttemptPrefix+account, window)
}

// IncrIPFailures bumps the aggregate per-IP failure counter
func (s *RedisCounterStore) IncrIPFailures(ctx context.Context, ip string, window time.Duration) (int64, error) {
	return s.incrWithWindow(ctx, ipAttemptPrefix+ip, window)
}

// AddIPEmail records the account identifier into the IP's distinct-email
// set and returns the set cardinality
func (s *RedisCounterStore) AddIPEmail(ctx context.Context, ip, account string, window time.Duration) (int64, error) {
	key := ipEmailSetPrefix + ip

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, account)
	pipe.ExpireNX(ctx, key, window)
	card := pipe.SCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to record distinct email for %s: %w", ip, err)
	}

	return card.Val(), nil
}

func lockKey(dimension, id string) (string, string) {
	switch dimension {
	case models.LockoutTypeAccount:
		return accountLockPrefix + id, accountAttemptPrefix + id
	case models.LockoutTypeIP:
		return ipLockPrefix + id, ipAttemptPrefix + id
	default: // models.LockoutTypeIPEmail
		return ipEmailLockPrefix + id, ipEmailSetPrefix + id
	}
}

// ExtendLock moves a dimension's lock expiry forward to until, never
// backward
func (s *RedisCounterStore) ExtendLock(ctx context.Context, dimension, id string, until time.Time) error {
	lk, ck := lockKey(dimension, id)
	if err := extendLockScript.Run(ctx, s.client, []string{lk, ck}, until.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to extend %s lock for %s: %w", dimension, id, err)
	}
	return nil
}

// ClearAccount drops the account counter and lock. IP-scoped state is
// left alone: abuse from an IP persists across successful logins.
func (s *RedisCounterStore) ClearAccount(ctx context.Context, account string) error {
	keys := []string{accountAttemptPrefix + account, accountLockPrefix + account}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear account counters for %s: %w", account, err)
	}
	return nil
}

// GetCounts reads every dimension in one round trip
func (s *RedisCounterStore) GetCounts(ctx context.Context, account, ip string) (*Counts, error) {
	pipe := s.client.Pipeline()

	var acctCount, acctLock *redis.StringCmd
	if account != "" {
		acctCount = pipe.Get(ctx, accountAttemptPrefix+account)
		acctLock = pipe.Get(ctx, accountLockPrefix+account)
	}
	ipCount := pipe.Get(ctx, ipAttemptPrefix+ip)
	ipSet := pipe.SCard(ctx, ipEmailSetPrefix+ip)
	ipLock := pipe.Get(ctx, ipLockPrefix+ip)
	ipEmailLock := pipe.Get(ctx, ipEmailLockPrefix+ip)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	counts := &Counts{IPDistinctEmails: ipSet.Val()}
	counts.IPCount = parseCount(ipCount)
	counts.IPLockExpiry = parseLockExpiry(ipLock)
	counts.IPEmailLockExpiry = parseLockExpiry(ipEmailLock)
	if account != "" {
		counts.AccountCount = parseCount(acctCount)
		counts.AccountLockExpiry = parseLockExpiry(acctLock)
	}

	return counts, nil
}

func parseCount(cmd *redis.StringCmd) int64 {
	if cmd == nil || cmd.Err() != nil {
		return 0
	}
	n, err := cmd.Int64()
	if err != nil {
		return 0
	}
	return n
}

func parseLockExpiry(cmd *redis.StringCmd) time.Time {
	if cmd == nil || cmd.Err() != nil {
		return time.Time{}
	}
	ms, err := cmd.Int64()
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
