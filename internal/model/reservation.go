package model

import "time"

// Reservation status values.  A reservation is created PENDING and moves to
// CONFIRMED when payment succeeds, to CANCELED when payment times out or
// the requester cancels, and to COMPLETED once its end time has elapsed.
// Only PENDING and CONFIRMED reservations occupy their zone's window.
const (
	StatusPending   = "PENDING"
	StatusConfirmed = "CONFIRMED"
	StatusCompleted = "COMPLETED"
	StatusCanceled  = "CANCELED"
)

// ActiveStatuses lists the statuses that block the covered window.  The
// single-occupancy invariant is defined over this set: for a given zone, no
// two reservations with an active status may have overlapping ranges.
var ActiveStatuses = []string{StatusPending, StatusConfirmed}

// Reservation records a driver's booking of a parking zone for a specific
// time window.
//
// Fields:
//  ID        – primary key identifier.
//  ZoneID    – zone being reserved.
//  UserID    – driver who made the reservation.
//  StartsAt  – inclusive start of the reserved window (UTC).
//  EndsAt    – exclusive end of the reserved window (UTC).
//  Status    – state of the reservation (PENDING, CONFIRMED, COMPLETED,
//              CANCELED).
//  CreatedAt – creation timestamp; drives the payment timeout.
//  UpdatedAt – last update timestamp.
type Reservation struct {
	ID        uint64    // reservations.id
	ZoneID    uint64    // reservations.zone_id
	UserID    uint64    // reservations.user_id
	StartsAt  time.Time // reservations.starts_at
	EndsAt    time.Time // reservations.ends_at
	Status    string    // reservations.status
	CreatedAt time.Time // reservations.created_at
	UpdatedAt time.Time // reservations.updated_at
}

// Window returns the reservation's target window, used to derive the lock
// and waiting-queue key for the slot it occupies.
func (r *Reservation) Window() Window {
	return NewWindow(r.ZoneID, r.StartsAt, r.EndsAt)
}
