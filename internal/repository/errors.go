// Package repository implements the durable slot store over MySQL.  It
// defines sentinel error values reused across repositories so that higher
// layers can distinguish failure scenarios with errors.Is instead of
// matching driver-specific errors.
package repository

import "errors"

// ErrZoneNotFound is returned when a referenced parking zone does not
// exist.  Handlers should translate this into an HTTP 404 response.
var ErrZoneNotFound = errors.New("zone not found")

// ErrZoneUnavailable is returned when a zone exists but its owner has
// taken it out of service.  New reservations are rejected while a zone is
// UNAVAILABLE.
var ErrZoneUnavailable = errors.New("zone unavailable")

// ErrReservationNotFound is returned when a reservation lookup by ID
// matches no row.
var ErrReservationNotFound = errors.New("reservation not found")
