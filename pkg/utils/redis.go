package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the shared client. Zero values take the defaults below.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns < 0 {
		c.MinIdleConns = 0
	}
	if c.PoolTimeout <= 0 {
		c.PoolTimeout = 4 * time.Second
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     c.DialTimeout,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		PoolTimeout:     c.PoolTimeout,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// OpenRedis builds a client and pings it once.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(cfg.options())
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// slotAcquireScript keeps one sorted-set member per holder, scored by its
// expiry in unix milliseconds. Expired holders are dropped before counting.
// Re-acquiring with a held member refreshes its expiry and admits.
var slotAcquireScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local expires = tonumber(ARGV[1]) + tonumber(ARGV[4])
if redis.call('ZSCORE', KEYS[1], ARGV[2]) then
  redis.call('ZADD', KEYS[1], expires, ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return 1
end
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('ZADD', KEYS[1], expires, ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

var (
	errNilRedis  = errors.New("redis client is nil")
	errEmptySlot = errors.New("slot key and holder are required")
)

// AcquireSlot takes one of limit slots under key for holder. It reports false
// when all slots are taken. A slot not released within ttl of now expires on
// its own and no longer counts against the limit.
func AcquireSlot(ctx context.Context, rdb *redis.Client, key, holder string, limit int, ttl time.Duration, now time.Time) (bool, error) {
	if rdb == nil {
		return false, errNilRedis
	}
	if key == "" || holder == "" {
		return false, errEmptySlot
	}
	if limit <= 0 {
		return false, fmt.Errorf("slot limit must be > 0, got %d", limit)
	}
	if ttl <= 0 {
		return false, fmt.Errorf("slot ttl must be > 0, got %s", ttl)
	}

	res, err := slotAcquireScript.Run(ctx, rdb, []string{key}, now.UnixMilli(), holder, limit, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire slot %s: %w", key, err)
	}
	return res == 1, nil
}

// ReleaseSlot frees holder's slot under key. Releasing a slot that expired
// or was never taken is a no-op and never touches other holders.
func ReleaseSlot(ctx context.Context, rdb *redis.Client, key, holder string) error {
	if rdb == nil {
		return errNilRedis
	}
	if key == "" || holder == "" {
		return errEmptySlot
	}
	if err := rdb.ZRem(ctx, key, holder).Err(); err != nil {
		return fmt.Errorf("release slot %s: %w", key, err)
	}
	return nil
}
