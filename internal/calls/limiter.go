package calls

import (
	"context"
	"time"

	"callrep/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent non-terminal calls per representative. Each slot
// belongs to one call. Release must be safe to call for a call that holds no slot.
type Limiter interface {
	Acquire(ctx context.Context, representativeID, callID string) (bool, error)
	Release(ctx context.Context, representativeID, callID string) error
}

// RedisLimiter shares slots across API instances. A slot whose call never
// reaches a terminal status expires after ttl without affecting other calls.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	clock func() time.Time
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl, clock: time.Now}
}

func limiterKey(representativeID string) string {
	return "callrep:cap:rep:" + representativeID
}

func (l *RedisLimiter) Acquire(ctx context.Context, representativeID, callID string) (bool, error) {
	return utils.AcquireSlot(ctx, l.rdb, limiterKey(representativeID), callID, l.limit, l.ttl, l.clock())
}

func (l *RedisLimiter) Release(ctx context.Context, representativeID, callID string) error {
	return utils.ReleaseSlot(ctx, l.rdb, limiterKey(representativeID), callID)
}

// NoLimit admits every call.
type NoLimit struct{}

func (NoLimit) Acquire(context.Context, string, string) (bool, error) { return true, nil }
func (NoLimit) Release(context.Context, string, string) error         { return nil }
