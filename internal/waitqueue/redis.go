package waitqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

const (
	// queueKeyPrefix namespaces the per-window sorted sets.
	queueKeyPrefix = "wait:"
	// indexKey is a sorted set of queue keys scored by the blocking
	// window's end time.  Purging reads only the range at or before the
	// cutoff, so live queues are never touched.
	indexKey = "wait:index"
)

// RedisQueue implements Queue on Redis sorted sets.  The score of a
// waiting entry is its enrollment time in Unix milliseconds, which gives
// FIFO order; sub-millisecond ties fall back on the sorted set's
// lexicographic member order, which is stable.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedis returns a queue backed by the given client.
func NewRedis(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func queueKey(key model.Window) string { return queueKeyPrefix + key.Key() }

// Enqueue adds the entry with ZADD NX so an identical re-enqueue keeps the
// original enrollment score.  The queue key is registered in the purge
// index in the same pipeline.  For a fresh entry the reported rank is the
// queue cardinality read in the same MULTI/EXEC as the add, which is
// unique per enqueue; a sorted-set rank read here could hand two callers
// the same number when an entry with an older enrollment score lands after
// a newer one.
func (q *RedisQueue) Enqueue(ctx context.Context, key model.Window, e model.WaitingEntry) (int, error) {
	member := encodeMember(e)
	qk := queueKey(key)
	pipe := q.rdb.TxPipeline()
	added := pipe.ZAddNX(ctx, qk, redis.Z{Score: float64(e.EnrolledAt.UTC().UnixMilli()), Member: member})
	length := pipe.ZCard(ctx, qk)
	pipe.ZAddNX(ctx, indexKey, redis.Z{Score: float64(key.End.UTC().Unix()), Member: key.Key()})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("waiting queue: %w", err)
	}
	if added.Val() == 1 {
		return int(length.Val()), nil
	}
	// Identical re-enqueue: the entry kept its position, report it.
	rank, err := q.rdb.ZRank(ctx, qk, member).Result()
	if err != nil {
		return 0, fmt.Errorf("waiting queue: %w", err)
	}
	return int(rank) + 1, nil
}

// Length returns the cardinality of the key's queue.
func (q *RedisQueue) Length(ctx context.Context, key model.Window) (int, error) {
	n, err := q.rdb.ZCard(ctx, queueKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("waiting queue: %w", err)
	}
	return int(n), nil
}

// PromoteNext pops the lowest-scored member.  When the pop empties the
// queue its key is dropped from the purge index.
func (q *RedisQueue) PromoteNext(ctx context.Context, key model.Window) (*model.WaitingEntry, error) {
	qk := queueKey(key)
	zs, err := q.rdb.ZPopMin(ctx, qk, 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("waiting queue: %w", err)
	}
	if len(zs) == 0 {
		return nil, nil
	}
	member, _ := zs[0].Member.(string)
	e, err := decodeMember(member, int64(zs[0].Score))
	if err != nil {
		return nil, err
	}
	if n, err := q.rdb.ZCard(ctx, qk).Result(); err == nil && n == 0 {
		_ = q.rdb.ZRem(ctx, indexKey, key.Key()).Err()
	}
	return &e, nil
}

// zoneQueueKeys lists the queue keys currently registered for a zone.
func (q *RedisQueue) zoneQueueKeys(ctx context.Context, zoneID uint64) ([]string, error) {
	members, err := q.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("waiting queue: %w", err)
	}
	prefix := model.ZoneKeyPrefix(zoneID)
	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	return keys, nil
}

// RankForUser scans the zone's queues for the user's entry.  Queues stay
// short (they drain on every cancellation), so the scan is cheap.
func (q *RedisQueue) RankForUser(ctx context.Context, zoneID, userID uint64) (int, *model.Window, error) {
	keys, err := q.zoneQueueKeys(ctx, zoneID)
	if err != nil {
		return 0, nil, err
	}
	userPrefix := fmt.Sprintf("%d|", userID)
	for _, k := range keys {
		members, err := q.rdb.ZRange(ctx, queueKeyPrefix+k, 0, -1).Result()
		if err != nil {
			return 0, nil, fmt.Errorf("waiting queue: %w", err)
		}
		for i, m := range members {
			if strings.HasPrefix(m, userPrefix) {
				w, err := model.ParseWindowKey(k)
				if err != nil {
					return 0, nil, err
				}
				return i + 1, &w, nil
			}
		}
	}
	return 0, nil, nil
}

// WithdrawUser removes the user's entries from every queue of the zone.
func (q *RedisQueue) WithdrawUser(ctx context.Context, zoneID, userID uint64) (bool, error) {
	keys, err := q.zoneQueueKeys(ctx, zoneID)
	if err != nil {
		return false, err
	}
	userPrefix := fmt.Sprintf("%d|", userID)
	removed := false
	for _, k := range keys {
		members, err := q.rdb.ZRange(ctx, queueKeyPrefix+k, 0, -1).Result()
		if err != nil {
			return removed, fmt.Errorf("waiting queue: %w", err)
		}
		for _, m := range members {
			if !strings.HasPrefix(m, userPrefix) {
				continue
			}
			n, err := q.rdb.ZRem(ctx, queueKeyPrefix+k, m).Result()
			if err != nil {
				return removed, fmt.Errorf("waiting queue: %w", err)
			}
			removed = removed || n > 0
		}
	}
	return removed, nil
}

// PurgeExpired deletes every queue whose blocking window ended at or
// before the cutoff, using the index range so nothing newer is visited.
func (q *RedisQueue) PurgeExpired(ctx context.Context, before time.Time) error {
	expired, err := q.rdb.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", before.UTC().Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("waiting queue: %w", err)
	}
	if len(expired) == 0 {
		return nil
	}
	pipe := q.rdb.TxPipeline()
	for _, k := range expired {
		pipe.Del(ctx, queueKeyPrefix+k)
		pipe.ZRem(ctx, indexKey, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("waiting queue: %w", err)
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)
