package lock

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DBCoordinator implements Coordinator with MySQL named locks
// (GET_LOCK/RELEASE_LOCK) held on a dedicated pooled connection.  This is
// the pessimistic single-database strategy: the database itself serializes
// holders of a key, the in-database wait is bounded by the GET_LOCK
// timeout, and a holder that dies releases the lock implicitly when its
// connection drops.  Lease enforcement for a stuck-but-alive holder is a
// timer that releases the named lock when the lease elapses.
type DBCoordinator struct {
	db *sql.DB
}

// NewDB returns a coordinator backed by the given database handle.
func NewDB(db *sql.DB) *DBCoordinator {
	return &DBCoordinator{db: db}
}

// Acquire pins a connection and runs GET_LOCK with the wait timeout.  A
// result of 1 means acquired, 0 means the wait elapsed while another
// session held the key.
func (c *DBCoordinator) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Token, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock backend: %w", err)
	}
	var got sql.NullInt64
	err = conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, ?)`, key, wait.Seconds()).Scan(&got)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("lock backend: %w", err)
	}
	if !got.Valid || got.Int64 != 1 {
		_ = conn.Close()
		return nil, ErrAcquireTimeout
	}
	tok := &Token{
		Key:       key,
		Owner:     uuid.NewString(),
		ExpiresAt: time.Now().Add(lease),
		conn:      conn,
	}
	// Force-release when the lease elapses so a wedged holder cannot park
	// on the key indefinitely.  sql.Conn serializes concurrent calls, so
	// racing with a regular Release is safe; RELEASE_LOCK on an already
	// released name is a no-op.
	tok.timer = time.AfterFunc(lease, func() {
		releaseNamedLock(context.Background(), conn, key)
	})
	return tok, nil
}

// Release gives the named lock back and returns the connection to the
// pool.  Releasing after the lease timer already fired is a no-op.
func (c *DBCoordinator) Release(ctx context.Context, tok *Token) error {
	if tok == nil || tok.conn == nil {
		return nil
	}
	if tok.timer != nil {
		tok.timer.Stop()
	}
	releaseNamedLock(ctx, tok.conn, tok.Key)
	err := tok.conn.Close()
	tok.conn = nil
	if err != nil {
		return fmt.Errorf("lock backend: %w", err)
	}
	return nil
}

func releaseNamedLock(ctx context.Context, conn *sql.Conn, key string) {
	var released sql.NullInt64
	_ = conn.QueryRowContext(ctx, `SELECT RELEASE_LOCK(?)`, key).Scan(&released)
}
