package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/model"
	"github.com/iliyamo/cinema-seat-locks/internal/repository"
)

// SeatMapProvider produces the current projection for a showtime;
// satisfied by projection.Projector.
type SeatMapProvider interface {
	Project(ctx context.Context, showtimeID uint64) (*model.SeatMap, error)
}

// SeatsHandler serves the full seat-map projection for a showtime.
type SeatsHandler struct {
	Projector SeatMapProvider
	Log       *zap.Logger
}

// SeatMap handles GET /showtimes/:id/seats. Bookings always win over
// locks; a lock-store outage still returns a map, flagged degraded, built
// from bookings alone.
func (h *SeatsHandler) SeatMap(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid showtime id")
	}

	m, err := h.Projector.Project(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrShowtimeNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "showtime not found")
		}
		h.Log.Error("seat map projection failed", zap.Uint64("showtime_id", id), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "seat map unavailable")
	}
	return c.JSON(http.StatusOK, m)
}
