// Package waitqueue holds the per-window FIFO of callers who lost
// arbitration.  Queues are sharded by the key of the window that blocked
// the caller; each entry carries the caller's own requested window so a
// promotion can re-run arbitration for exactly what they asked for.  The
// queue has its own synchronization scoped to its key – callers never need
// to hold the zone lock to enqueue, promote or purge.
package waitqueue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parking-10easy/ParkEZ-sub002/internal/model"
)

// Queue is the ordered waiting set contract.  Ordering is strict FIFO by
// enrollment time with stable tie-breaking from the underlying ordered
// structure.
type Queue interface {
	// Enqueue adds an entry to the queue of the blocking window and
	// returns the queue length after the insert as the caller's 1-based
	// rank; concurrent enqueues therefore always receive distinct
	// consecutive ranks.  Re-enqueueing an identical entry keeps the
	// original position and returns its current rank instead.
	Enqueue(ctx context.Context, key model.Window, e model.WaitingEntry) (int, error)
	// Length returns the number of waiting entries for the key.
	Length(ctx context.Context, key model.Window) (int, error)
	// PromoteNext pops and returns the head of the queue, or nil when the
	// queue is empty.
	PromoteNext(ctx context.Context, key model.Window) (*model.WaitingEntry, error)
	// RankForUser finds the user's waiting entry across all of the zone's
	// queues and returns its rank plus the window of the queue holding it.
	// A rank of 0 means the user is not waiting anywhere on the zone.
	RankForUser(ctx context.Context, zoneID, userID uint64) (int, *model.Window, error)
	// WithdrawUser removes the user's entries from all of the zone's
	// queues and reports whether anything was removed.
	WithdrawUser(ctx context.Context, zoneID, userID uint64) (bool, error)
	// PurgeExpired drops every queue whose blocking window has ended at or
	// before the given instant.  Entries in such a queue can never be
	// promoted: their requested start predates the window end that has
	// already elapsed.
	PurgeExpired(ctx context.Context, before time.Time) error
}

// encodeMember serializes the parts of a waiting entry that identify it
// within a queue.  Enrollment time travels separately as the ordering
// score.  The fixed-width layout makes identical entries deduplicate and
// keeps tie-breaking deterministic.
func encodeMember(e model.WaitingEntry) string {
	return fmt.Sprintf("%d|%d|%d|%d", e.UserID, e.ZoneID, e.Start.UTC().Unix(), e.End.UTC().Unix())
}

// decodeMember reverses encodeMember.  enrolledMs is the queue score in
// Unix milliseconds.
func decodeMember(member string, enrolledMs int64) (model.WaitingEntry, error) {
	parts := strings.Split(member, "|")
	if len(parts) != 4 {
		return model.WaitingEntry{}, fmt.Errorf("malformed waiting entry %q", member)
	}
	var e model.WaitingEntry
	var err error
	if e.UserID, err = strconv.ParseUint(parts[0], 10, 64); err != nil {
		return model.WaitingEntry{}, fmt.Errorf("malformed waiting entry %q: %w", member, err)
	}
	if e.ZoneID, err = strconv.ParseUint(parts[1], 10, 64); err != nil {
		return model.WaitingEntry{}, fmt.Errorf("malformed waiting entry %q: %w", member, err)
	}
	startUnix, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return model.WaitingEntry{}, fmt.Errorf("malformed waiting entry %q: %w", member, err)
	}
	endUnix, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return model.WaitingEntry{}, fmt.Errorf("malformed waiting entry %q: %w", member, err)
	}
	e.Start = time.Unix(startUnix, 0).UTC()
	e.End = time.Unix(endUnix, 0).UTC()
	e.EnrolledAt = time.UnixMilli(enrolledMs).UTC()
	return e, nil
}
