// Package router wires the HTTP surface: lock mutations, the seat-map
// projection, the realtime feed and operational probes.
package router

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-locks/internal/handler"
	"github.com/iliyamo/cinema-seat-locks/internal/middleware"
)

// RateLimitSettings configures the fixed-window limiter applied to the
// lock mutation routes. Zero Max or a nil client disables limiting.
type RateLimitSettings struct {
	Client *redis.Client
	Max    int
	Window time.Duration
}

// Register maps every route. Reads (seat map, inspect, WebSocket, health)
// are never rate limited; only the mutation routes are.
func Register(e *echo.Echo, locks *handler.LockHandler, seats *handler.SeatsHandler, ws *handler.WSHandler, health *handler.HealthHandler, rl RateLimitSettings) {
	e.Use(middleware.Metrics())

	e.GET("/healthz", health.Live)
	e.GET("/healthz/redis", health.Redis)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1")
	v1.GET("/showtimes/:id/seats", seats.SeatMap)
	v1.GET("/showtimes/:id/seats/ws", ws.Subscribe)
	v1.GET("/showtimes/:id/seats/locks", locks.Inspect)

	mut := v1.Group("")
	if rl.Client != nil && rl.Max > 0 {
		mut.Use(middleware.RateLimit(rl.Client, rl.Max, rl.Window))
	}
	mut.POST("/showtimes/:id/seats/lock", locks.Acquire)
	mut.POST("/showtimes/:id/seats/extend", locks.Extend)
	mut.POST("/showtimes/:id/seats/unlock", locks.Release)
	mut.POST("/showtimes/:id/seats/validate", locks.Validate)
}
