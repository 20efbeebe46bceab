// Package lock provides mutual exclusion over slot keys across arbitration
// attempts.  Three interchangeable strategies implement the same contract:
// a Redis-based distributed lock for multi-process deployments, a database
// named lock for single-database deployments and an in-process lock for
// single-node runs and tests.  For a fixed key there is at most one holder
// at any instant; acquisition is bounded by a wait timeout and every lease
// self-expires so a crashed holder cannot block a key forever.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrAcquireTimeout is returned when the bounded wait elapses before the
// lock could be taken.  Callers treat this as a contention signal, not a
// fault: the arbitrator routes the request to the waiting queue.
var ErrAcquireTimeout = errors.New("lock acquire timeout")

// Token is the opaque handle representing exclusive possession of a key.
// It is owned by one arbitration attempt, never persisted, and becomes
// worthless once its lease expires even if Release is never called.
type Token struct {
	Key       string    // key the token guards
	Owner     string    // unique holder identity
	ExpiresAt time.Time // lease deadline; the lock may be stolen after this

	conn  *sql.Conn   // session holding a database named lock, when applicable
	timer *time.Timer // lease enforcement for strategies without server-side TTL
}

// Coordinator acquires and releases key-scoped locks.
//
// Acquire blocks for at most wait; it returns ErrAcquireTimeout when the
// key stayed contested, and any other error only for infrastructure
// failures.  Release is idempotent: releasing a token whose lease already
// expired or was stolen is a no-op, which is expected behavior under lease
// expiry rather than a bug.
type Coordinator interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Token, error)
	Release(ctx context.Context, tok *Token) error
}
