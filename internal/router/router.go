package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/parking-10easy/ParkEZ-sub002/internal/config"
	"github.com/parking-10easy/ParkEZ-sub002/internal/handler"
	"github.com/parking-10easy/ParkEZ-sub002/internal/middleware"
)

// Deps bundles everything route registration needs.  Redis may be nil, in
// which case the rate limiter registers as a pass-through.
type Deps struct {
	Cfg     config.Config
	RateCfg config.RateLimitConfig
	Redis   *redis.Client
	Zones   *handler.ZoneHandler
	Resv    *handler.ReservationHandler
}

// Register wires all HTTP routes onto e.
//
// Layout:
//
//	GET  /healthz                                  liveness, unauthenticated
//	POST /v1/reservations/:id/payment              payment-gateway callback, unauthenticated
//	/v1/... (everything else)                      JWT + role DRIVER|OWNER
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	rate := middleware.NewTokenBucket(d.RateCfg, d.Redis)

	// The payment gateway authenticates out of band and cannot carry our
	// JWTs, so the callback sits outside the protected group.
	e.POST("/v1/reservations/:id/payment", d.Resv.PaymentCallback, rate)

	v1 := e.Group("/v1", middleware.JWTAuth(d.Cfg.JWTSecret), middleware.RequireRole("DRIVER", "OWNER"), rate)

	v1.GET("/zones/:id", d.Zones.GetZone)
	v1.GET("/zones/:id/availability", d.Zones.Availability)

	v1.POST("/zones/:id/reservations", d.Resv.Reserve)
	v1.GET("/zones/:id/queue-rank", d.Resv.QueueRank)
	v1.DELETE("/zones/:id/queue-rank", d.Resv.Withdraw)

	v1.GET("/reservations", d.Resv.ListMine)
	v1.GET("/reservations/:id", d.Resv.GetReservation)
	v1.DELETE("/reservations/:id", d.Resv.Cancel)
}
