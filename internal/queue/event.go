// Package queue defines message payloads exchanged over the message broker
// and the background consumer that records them.
package queue

// Reservation event outcomes.  One event is emitted after every state
// transition of a reservation, plus QUEUED when a caller is parked in the
// waiting queue.  Delivery mechanics (push notifications and the like)
// belong to the external alarm subsystem; this service only publishes.
const (
	OutcomePending   = "PENDING"
	OutcomeConfirmed = "CONFIRMED"
	OutcomeCanceled  = "CANCELED"
	OutcomeCompleted = "COMPLETED"
	OutcomeQueued    = "QUEUED"
)

// ReservationEvent is published to the reservation.events queue after every
// arbitration outcome and state transition.  It contains enough information
// for downstream consumers to log, notify, or trigger analytics without
// querying the primary database.
type ReservationEvent struct {
	ReservationID uint64 `json:"reservation_id,omitempty"`
	UserID        uint64 `json:"user_id"`
	ZoneID        uint64 `json:"zone_id"`
	Outcome       string `json:"outcome"`
	Rank          int    `json:"rank,omitempty"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
	OccurredAt    string `json:"occurred_at"`
}
