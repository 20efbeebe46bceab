package arbiter

import "errors"

// OutcomeKind classifies how an arbitration attempt ended for the caller.
type OutcomeKind int

const (
	// OutcomeConfirmed means a PENDING reservation was created and the
	// window is now held for the caller, awaiting payment.
	OutcomeConfirmed OutcomeKind = iota + 1
	// OutcomeQueued means the window was contested and the caller was
	// parked in the waiting queue at the reported rank.
	OutcomeQueued
	// OutcomeRejected means the request can never succeed as stated; the
	// reason says why.  Rejections are final, not retryable.
	OutcomeRejected
)

// RejectReason explains an OutcomeRejected.
type RejectReason string

const (
	ReasonInvalidRange    RejectReason = "INVALID_RANGE"
	ReasonZoneNotFound    RejectReason = "ZONE_NOT_FOUND"
	ReasonZoneUnavailable RejectReason = "ZONE_UNAVAILABLE"
)

// Outcome is the caller-visible result of Reserve.  Exactly one of
// ReservationID, Rank or Reason is meaningful depending on Kind.
type Outcome struct {
	Kind          OutcomeKind
	ReservationID uint64
	Rank          int
	Reason        RejectReason
}

func confirmed(id uint64) Outcome   { return Outcome{Kind: OutcomeConfirmed, ReservationID: id} }
func queued(rank int) Outcome       { return Outcome{Kind: OutcomeQueued, Rank: rank} }
func rejected(r RejectReason) Outcome { return Outcome{Kind: OutcomeRejected, Reason: r} }

// ErrNotOwner is returned by Cancel when the requester does not own the
// reservation.
var ErrNotOwner = errors.New("not reservation owner")

// ErrNotCancelable is returned when a reservation is no longer in a state
// that allows cancellation (already CANCELED by expiry, or COMPLETED).
var ErrNotCancelable = errors.New("reservation not cancelable")

// ErrNotConfirmable is returned when a payment confirmation arrives for a
// reservation that is not PENDING and not already CONFIRMED – typically
// one the sweeper expired while the payment was in flight.
var ErrNotConfirmable = errors.New("reservation not confirmable")
