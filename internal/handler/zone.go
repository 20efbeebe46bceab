package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/parking-10easy/ParkEZ-sub002/internal/repository"
)

// ZoneHandler exposes the read-only zone surface.  Zone creation and
// editing belong to the external owner-management flows; this service only
// reports existence, availability status and current occupancy.
type ZoneHandler struct {
	ZoneRepo *repository.ZoneRepo        // zone lookups
	ResvRepo *repository.ReservationRepo // overlap reads for the availability probe
}

// NewZoneHandler constructs a ZoneHandler.  Both repositories must be
// non-nil.
func NewZoneHandler(zoneRepo *repository.ZoneRepo, resvRepo *repository.ReservationRepo) *ZoneHandler {
	if zoneRepo == nil || resvRepo == nil {
		panic("nil repository passed to NewZoneHandler")
	}
	return &ZoneHandler{ZoneRepo: zoneRepo, ResvRepo: resvRepo}
}

// GetZone handles GET /v1/zones/:id.
func (h *ZoneHandler) GetZone(c echo.Context) error {
	zoneID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	zone, err := h.ZoneRepo.GetByID(c.Request().Context(), zoneID)
	if err != nil {
		if errors.Is(err, repository.ErrZoneNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "zone not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch zone"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": zone})
}

// Availability handles GET /v1/zones/:id/availability?start=...&end=...
// with RFC3339 bounds.  This is a non-binding probe: it reads occupancy
// without taking any lock, so the answer may already be stale when it
// arrives.  Booking decisions are only ever made by the arbitration path.
func (h *ZoneHandler) Availability(c echo.Context) error {
	zoneID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	start, err := time.Parse(time.RFC3339, c.QueryParam("start"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid start"})
	}
	end, err := time.Parse(time.RFC3339, c.QueryParam("end"))
	if err != nil || !start.Before(end) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid end"})
	}
	ctx := c.Request().Context()
	if _, err := h.ZoneRepo.GetByID(ctx, zoneID); err != nil {
		if errors.Is(err, repository.ErrZoneNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "zone not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch zone"})
	}
	conflicts, err := h.ResvRepo.FindOverlapping(ctx, zoneID, start, end)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to check availability"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available": len(conflicts) == 0,
		"conflicts": len(conflicts),
	})
}
