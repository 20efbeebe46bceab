package model

import "time"

// Zone status values.  A zone only accepts new reservations while it is
// AVAILABLE.  Owners may flip a zone to UNAVAILABLE through the external
// management flows; the arbitration core only reads this field.
const (
	ZoneAvailable   = "AVAILABLE"
	ZoneUnavailable = "UNAVAILABLE"
)

// ParkingZone represents a single bookable physical parking slot.  A zone
// has capacity one: at any instant at most one active reservation may
// cover it for a given time window.
//
// Fields:
//  ID        – primary key identifier.
//  OwnerID   – user who owns and manages the zone.
//  Name      – human readable label shown to drivers.
//  Status    – AVAILABLE or UNAVAILABLE.
//  CreatedAt – creation timestamp.
type ParkingZone struct {
	ID        uint64    // parking_zones.id
	OwnerID   uint64    // parking_zones.owner_id
	Name      string    // parking_zones.name
	Status    string    // parking_zones.status
	CreatedAt time.Time // parking_zones.created_at
}
