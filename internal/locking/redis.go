package locking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements the per-actor critical section across multiple
// engine instances with a SET NX PX lock per actor.
type RedisLocker struct {
	rdb     *redis.Client
	prefix  string
	ttl     time.Duration
	retries int
	backoff time.Duration
}

var redisReleaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = "actorlock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		rdb:     rdb,
		prefix:  prefix,
		ttl:     ttl,
		retries: 3,
		backoff: 50 * time.Millisecond,
	}
}

// Acquire attempts the lock a few times with a short backoff, then gives up
// with ErrLockHeld so the commit is rejected as a conflict instead of
// queueing behind an unknown number of competitors.
func (l *RedisLocker) Acquire(ctx context.Context, actorID string) (func(), error) {
	key := l.prefix + ":" + actorID
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if attempt >= l.retries {
			return nil, ErrLockHeld
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.backoff << attempt):
		}
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = redisReleaseScript.Run(ctx, l.rdb, []string{key}, token).Result()
	}
	return release, nil
}
