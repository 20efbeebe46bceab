package lock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces lock keys so they cannot collide with the
// waiting queue or rate limiter entries sharing the same Redis database.
const redisKeyPrefix = "lock:"

// releaseScript deletes the lock only when the caller still owns it.  A
// holder whose lease expired (and whose key was possibly re-acquired by
// someone else) must not delete the new holder's lock, so the owner check
// and the delete have to be one atomic step.
var releaseScript = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RedisCoordinator implements Coordinator with a single compare-and-set
// style acquisition: SET key owner NX PX lease.  The PX expiry is the
// lease; once it elapses the key vanishes and the next SET NX succeeds, so
// a crashed holder is force-expired without any cooperation.
type RedisCoordinator struct {
	rdb *redis.Client
}

// NewRedis returns a coordinator backed by the given client.
func NewRedis(rdb *redis.Client) *RedisCoordinator {
	return &RedisCoordinator{rdb: rdb}
}

// Acquire retries SET NX with jittered backoff until wait elapses.  The
// backoff keeps contenders from busy-spinning against Redis while staying
// responsive at the tens-of-milliseconds scale arbitration runs at.
func (c *RedisCoordinator) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Token, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(wait)
	backoff := 5 * time.Millisecond

	for {
		ok, err := c.rdb.SetNX(ctx, redisKeyPrefix+key, owner, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("lock backend: %w", err)
		}
		if ok {
			return &Token{Key: key, Owner: owner, ExpiresAt: time.Now().Add(lease)}, nil
		}
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff)))
		if time.Now().Add(sleep).After(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		if backoff < 80*time.Millisecond {
			backoff *= 2
		}
	}
}

// Release removes the lock if the token still owns it.  A zero result from
// the script means the lease already expired or the key was stolen; both
// are fine, the lease mechanism is the backstop.
func (c *RedisCoordinator) Release(ctx context.Context, tok *Token) error {
	if tok == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, c.rdb, []string{redisKeyPrefix + tok.Key}, tok.Owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock backend: %w", err)
	}
	return nil
}
