package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "callrep:flow:"

// RedisStore shares flow sessions across API instances.
// A zero TTL stores keys without expiry; terminal cleanup deletes them.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(callID string) string { return redisKeyPrefix + callID }

func (r *RedisStore) Put(ctx context.Context, callID string, s Session) error {
	if r.rdb == nil {
		return errors.New("session: redis client is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return r.rdb.Set(ctx, redisKey(callID), b, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, callID string) (Session, bool, error) {
	if r.rdb == nil {
		return Session{}, false, errors.New("session: redis client is nil")
	}
	b, err := r.rdb.Get(ctx, redisKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, false, fmt.Errorf("session: decode %s: %w", callID, err)
	}
	return s, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, callID string) error {
	if r.rdb == nil {
		return errors.New("session: redis client is nil")
	}
	return r.rdb.Del(ctx, redisKey(callID)).Err()
}
