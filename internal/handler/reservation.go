package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/parking-10easy/ParkEZ-sub002/internal/arbiter"
	"github.com/parking-10easy/ParkEZ-sub002/internal/repository"
	"github.com/parking-10easy/ParkEZ-sub002/internal/waitqueue"
)

// ReservationHandler groups the arbitration core and the read-side
// repositories needed to serve reservation endpoints.  All methods assume
// that JWT authentication and role validation has already been performed
// by middleware unless noted otherwise.
type ReservationHandler struct {
	Arb      *arbiter.Arbiter            // arbitration core for all state-changing operations
	ResvRepo *repository.ReservationRepo // read access to reservations
	Waits    waitqueue.Queue             // read/withdraw access to the waiting queue
}

// NewReservationHandler constructs a ReservationHandler.  All dependencies
// must be non-nil.
func NewReservationHandler(arb *arbiter.Arbiter, resvRepo *repository.ReservationRepo, waits waitqueue.Queue) *ReservationHandler {
	if arb == nil || resvRepo == nil || waits == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Arb: arb, ResvRepo: resvRepo, Waits: waits}
}

// Reserve handles POST /v1/zones/:id/reservations.  The request body must
// contain RFC3339 start_time and end_time.  The response reflects the
// arbitration outcome: 201 with the reservation ID when the window was
// granted, 202 with the waiting rank when it was contested, 4xx for final
// rejections and 503 for retryable infrastructure failures.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	zoneID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	var body struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	start, err := time.Parse(time.RFC3339, body.StartTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start_time"})
	}
	end, err := time.Parse(time.RFC3339, body.EndTime)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end_time"})
	}

	out, err := h.Arb.Reserve(c.Request().Context(), userID, zoneID, start, end)
	if err != nil {
		// No side effect occurred; the client may retry the same request.
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
	}
	switch out.Kind {
	case arbiter.OutcomeConfirmed:
		return c.JSON(http.StatusCreated, echo.Map{
			"reservation_id": out.ReservationID,
			"status":         "PENDING",
		})
	case arbiter.OutcomeQueued:
		return c.JSON(http.StatusAccepted, echo.Map{
			"queued": true,
			"rank":   out.Rank,
		})
	default:
		status := http.StatusBadRequest
		switch out.Reason {
		case arbiter.ReasonZoneNotFound:
			status = http.StatusNotFound
		case arbiter.ReasonZoneUnavailable:
			status = http.StatusConflict
		}
		return c.JSON(status, echo.Map{"error": string(out.Reason)})
	}
}

// PaymentCallback handles POST /v1/reservations/:id/payment.  It is the
// entry point for the external payment collaborator: a "success" result
// confirms the PENDING reservation, a "failure" result cancels it and
// promotes the next waiter.  Confirming an already confirmed reservation
// returns the same success response (idempotent).
func (h *ReservationHandler) PaymentCallback(c echo.Context) error {
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Result string `json:"result"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	switch body.Result {
	case "success":
		err := h.Arb.Confirm(ctx, resID)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, echo.Map{"reservation_id": resID, "status": "CONFIRMED"})
		case errors.Is(err, repository.ErrReservationNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, arbiter.ErrNotConfirmable):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation expired before confirmation"})
		default:
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
		}
	case "failure":
		err := h.Arb.FailPayment(ctx, resID)
		switch {
		case err == nil:
			return c.JSON(http.StatusOK, echo.Map{"reservation_id": resID, "status": "CANCELED"})
		case errors.Is(err, repository.ErrReservationNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		case errors.Is(err, arbiter.ErrNotCancelable):
			return c.JSON(http.StatusConflict, echo.Map{"error": "reservation not cancelable"})
		default:
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
		}
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "result must be success or failure"})
	}
}

// Cancel handles DELETE /v1/reservations/:id.  Only the reservation's
// owner may cancel, and only while it is PENDING or CONFIRMED.  A freed
// window promotes the next waiter before the response is sent.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.Bind(&body) // reason is optional
	err = h.Arb.Cancel(c.Request().Context(), resID, userID, body.Reason)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, arbiter.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, arbiter.ErrNotCancelable):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation not cancelable"})
	default:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
	}
}

// ListMine handles GET /v1/reservations.  It returns all reservations
// created by the current user, newest first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.ResvRepo.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservations"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetReservation handles GET /v1/reservations/:id for the authenticated
// owner of the reservation.
func (h *ReservationHandler) GetReservation(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	resID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	rec, err := h.ResvRepo.GetByID(c.Request().Context(), resID)
	if err != nil {
		if errors.Is(err, repository.ErrReservationNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch reservation"})
	}
	if rec.UserID != userID {
		// Do not reveal other users' reservations.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": rec})
}

// QueueRank handles GET /v1/zones/:id/queue-rank.  It reports the caller's
// current position across the zone's waiting queues together with the
// window they are waiting behind.
func (h *ReservationHandler) QueueRank(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	zoneID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	rank, w, err := h.Waits.RankForUser(c.Request().Context(), zoneID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read waiting queue"})
	}
	if rank == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not waiting on this zone"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"rank":         rank,
		"behind_start": w.Start.Format(time.RFC3339),
		"behind_end":   w.End.Format(time.RFC3339),
	})
}

// Withdraw handles DELETE /v1/zones/:id/queue-rank.  It removes the
// caller's waiting entries for the zone.
func (h *ReservationHandler) Withdraw(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	zoneID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	removed, err := h.Waits.WithdrawUser(c.Request().Context(), zoneID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to withdraw"})
	}
	if !removed {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not waiting on this zone"})
	}
	return c.NoContent(http.StatusNoContent)
}
