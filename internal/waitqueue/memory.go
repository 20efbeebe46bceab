package waitqueue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

type memQueue struct {
	window  model.Window
	entries []model.WaitingEntry // FIFO by EnrolledAt, then insertion order
}

// MemoryQueue implements Queue in process memory.  It is the fallback when
// no Redis client could be established and the implementation the tests
// run against.  A single mutex guards all queues; enqueue, promote and
// purge are therefore safe to call concurrently.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string]*memQueue
}

// NewMemory returns an empty in-process queue.
func NewMemory() *MemoryQueue {
	return &MemoryQueue{queues: make(map[string]*memQueue)}
}

// Enqueue appends the entry and re-sorts by enrollment time.  The sort is
// stable, so entries enrolled at the same instant keep insertion order.
// The reported rank is the queue length right after the insert, not the
// entry's sorted position: a caller whose enrollment predates an already
// ranked entry (possible after a long lock wait) must not be told a rank
// someone else was already given.
func (q *MemoryQueue) Enqueue(_ context.Context, key model.Window, e model.WaitingEntry) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	k := key.Key()
	mq, ok := q.queues[k]
	if !ok {
		mq = &memQueue{window: key}
		q.queues[k] = mq
	}
	member := encodeMember(e)
	for i, existing := range mq.entries {
		if encodeMember(existing) == member {
			return i + 1, nil
		}
	}
	mq.entries = append(mq.entries, e)
	sort.SliceStable(mq.entries, func(i, j int) bool {
		return mq.entries[i].EnrolledAt.Before(mq.entries[j].EnrolledAt)
	})
	return len(mq.entries), nil
}

// Length returns the number of entries waiting under the key.
func (q *MemoryQueue) Length(_ context.Context, key model.Window) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if mq, ok := q.queues[key.Key()]; ok {
		return len(mq.entries), nil
	}
	return 0, nil
}

// PromoteNext pops the head of the key's queue.
func (q *MemoryQueue) PromoteNext(_ context.Context, key model.Window) (*model.WaitingEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	mq, ok := q.queues[key.Key()]
	if !ok || len(mq.entries) == 0 {
		return nil, nil
	}
	head := mq.entries[0]
	mq.entries = mq.entries[1:]
	if len(mq.entries) == 0 {
		delete(q.queues, key.Key())
	}
	return &head, nil
}

// RankForUser scans the zone's queues for the user's entry.  Queues are
// visited in ascending window-end order, the same order the Redis backend
// reads its purge index in, so both backends answer identically when a
// user waits in more than one queue of the zone.
func (q *MemoryQueue) RankForUser(_ context.Context, zoneID, userID uint64) (int, *model.Window, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]string, 0, len(q.queues))
	for k, mq := range q.queues {
		if mq.window.ZoneID == zoneID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := q.queues[keys[i]].window, q.queues[keys[j]].window
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		mq := q.queues[k]
		for i, e := range mq.entries {
			if e.UserID == userID {
				w := mq.window
				return i + 1, &w, nil
			}
		}
	}
	return 0, nil, nil
}

// WithdrawUser removes the user's entries from every queue of the zone.
func (q *MemoryQueue) WithdrawUser(_ context.Context, zoneID, userID uint64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := false
	for k, mq := range q.queues {
		if mq.window.ZoneID != zoneID {
			continue
		}
		kept := mq.entries[:0]
		for _, e := range mq.entries {
			if e.UserID == userID {
				removed = true
				continue
			}
			kept = append(kept, e)
		}
		mq.entries = kept
		if len(mq.entries) == 0 {
			delete(q.queues, k)
		}
	}
	return removed, nil
}

// PurgeExpired drops every queue whose blocking window has already ended.
func (q *MemoryQueue) PurgeExpired(_ context.Context, before time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for k, mq := range q.queues {
		if !mq.window.End.After(before) {
			delete(q.queues, k)
		}
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
