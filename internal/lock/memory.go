package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryPollInterval bounds how often a waiting acquirer rechecks a
// contested key.
const memoryPollInterval = 2 * time.Millisecond

type memHolder struct {
	owner     string
	expiresAt time.Time
}

// MemoryCoordinator implements Coordinator inside a single process.  It is
// the fallback when no Redis client could be established and the strategy
// used throughout the tests.  Lease expiry works the same way as in the
// distributed strategy: an expired holder is simply overwritten by the
// next acquirer.
type MemoryCoordinator struct {
	mu   sync.Mutex
	held map[string]memHolder
}

// NewMemory returns an empty in-process coordinator.
func NewMemory() *MemoryCoordinator {
	return &MemoryCoordinator{held: make(map[string]memHolder)}
}

// Acquire polls the key until it is free (or its current lease has
// expired) or until wait elapses.
func (c *MemoryCoordinator) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Token, error) {
	owner := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		now := time.Now()
		c.mu.Lock()
		h, taken := c.held[key]
		if !taken || now.After(h.expiresAt) {
			exp := now.Add(lease)
			c.held[key] = memHolder{owner: owner, expiresAt: exp}
			c.mu.Unlock()
			return &Token{Key: key, Owner: owner, ExpiresAt: exp}, nil
		}
		c.mu.Unlock()

		if now.Add(memoryPollInterval).After(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(memoryPollInterval):
		}
	}
}

// Release frees the key when the token still owns it; otherwise the lease
// expired and someone else may have taken over, which is not an error.
func (c *MemoryCoordinator) Release(_ context.Context, tok *Token) error {
	if tok == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.held[tok.Key]; ok && h.owner == tok.Owner {
		delete(c.held, tok.Key)
	}
	return nil
}

// compile-time interface checks for all three strategies
var (
	_ Coordinator = (*RedisCoordinator)(nil)
	_ Coordinator = (*DBCoordinator)(nil)
	_ Coordinator = (*MemoryCoordinator)(nil)
)
