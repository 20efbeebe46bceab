package model

import "time"

// WaitingEntry is a caller who lost arbitration and is parked in the
// waiting queue of the window that blocked them.  The entry keeps the
// caller's own requested window because promotion re-runs arbitration for
// that window, which may differ from the queue's key when the loser only
// partially overlapped the winner.
//
// Rank is not stored; it is derived from the entry's position in the
// ordered queue at read time.
//
// Fields:
//  UserID     – waiting requester.
//  ZoneID     – zone of the requested window.
//  Start      – requested window start (UTC).
//  End        – requested window end (UTC).
//  EnrolledAt – when the entry joined the queue; FIFO order key.
type WaitingEntry struct {
	UserID     uint64
	ZoneID     uint64
	Start      time.Time
	End        time.Time
	EnrolledAt time.Time
}

// Window returns the entry's own requested window.
func (e WaitingEntry) Window() Window {
	return NewWindow(e.ZoneID, e.Start, e.End)
}
