package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locks/internal/lock"
)

// HealthHandler backs the liveness and store probes used by load
// balancers and monitoring.
type HealthHandler struct {
	Locks *lock.Service
}

// Live reports process liveness only. It never touches a backend.
func (h *HealthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// Redis pings the lock store and reports round-trip latency. A failed
// ping answers 503 so orchestration can rotate the instance out of the
// mutation path while reads keep degrading gracefully.
func (h *HealthHandler) Redis(c echo.Context) error {
	start := time.Now()
	if err := h.Locks.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status": "unavailable",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":        "ok",
		"round_trip_ms": time.Since(start).Milliseconds(),
	})
}
