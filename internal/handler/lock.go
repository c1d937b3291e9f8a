// Package handler exposes the HTTP surface of the seat-lock service: lock
// mutations, the seat-map projection, the realtime WebSocket feed and
// health probes.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/lock"
)

// ShowtimeChecker answers whether a showtime exists; satisfied by
// repository.ShowtimeRepo.
type ShowtimeChecker interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

// LockHandler serves the lock mutation and inspection routes. Every route
// verifies the showtime exists before touching the lock store.
type LockHandler struct {
	Locks     *lock.Service
	Showtimes ShowtimeChecker
	Log       *zap.Logger
}

// lockRequest is the shared body for acquire and extend. Owner is raw JSON
// because clients historically send either a plain string or an object
// with an owner/owner_token/locked_by field.
type lockRequest struct {
	SeatIDs []uint64        `json:"seat_ids" validate:"required,min=1,max=50"`
	Owner   json.RawMessage `json:"owner" validate:"required"`
	TTLMs   int64           `json:"ttl_ms"`
}

// releaseRequest allows seat_ids to be omitted, which releases every seat
// the owner holds for the showtime.
type releaseRequest struct {
	SeatIDs []uint64        `json:"seat_ids"`
	Owner   json.RawMessage `json:"owner"`
}

type validateRequest struct {
	SeatIDs []uint64        `json:"seat_ids" validate:"required,min=1,max=50"`
	Owner   json.RawMessage `json:"owner" validate:"required"`
}

// Acquire handles POST /showtimes/:id/seats/lock. All-or-nothing: any
// conflicting seat rejects the whole batch with 409 and the list of
// contested seats.
func (h *LockHandler) Acquire(c echo.Context) error {
	showtimeID, err := h.showtimeID(c)
	if err != nil {
		return err
	}

	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	owner, err := lock.ParseOwner(req.Owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.Locks.Acquire(c.Request().Context(), showtimeID, req.SeatIDs, owner, time.Duration(req.TTLMs)*time.Millisecond)
	if err != nil {
		return h.lockError(err)
	}

	if !res.Success {
		return c.JSON(http.StatusConflict, echo.Map{
			"message":     "some seats are already locked by other users",
			"conflicts":   res.Conflicts,
			"locked":      res.Locked,
			"ttl_ms":      res.TTL.Milliseconds(),
			"expires_at":  res.ExpiresAt.UnixMilli(),
			"showtime_id": showtimeID,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"locked":      res.Locked,
		"conflicts":   []lock.Conflict{},
		"ttl_ms":      res.TTL.Milliseconds(),
		"expires_at":  res.ExpiresAt.UnixMilli(),
		"showtime_id": showtimeID,
	})
}

// Extend handles POST /showtimes/:id/seats/extend. Seats held by someone
// else are reported in not_owned rather than failing the call.
func (h *LockHandler) Extend(c echo.Context) error {
	showtimeID, err := h.showtimeID(c)
	if err != nil {
		return err
	}

	var req lockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	owner, err := lock.ParseOwner(req.Owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.Locks.Extend(c.Request().Context(), showtimeID, req.SeatIDs, owner, time.Duration(req.TTLMs)*time.Millisecond)
	if err != nil {
		return h.lockError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"extended":    res.Extended,
		"not_owned":   res.NotOwned,
		"ttl_ms":      res.TTL.Milliseconds(),
		"showtime_id": showtimeID,
	})
}

// Release handles POST /showtimes/:id/seats/unlock. It never fails on a
// store outage: the client gets 200 with degraded set so abandoning a
// selection always succeeds from the UI's point of view. A missing owner
// is answered idempotently with nothing released.
func (h *LockHandler) Release(c echo.Context) error {
	showtimeID, err := h.showtimeID(c)
	if err != nil {
		return err
	}

	var req releaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Owner) == 0 {
		return c.JSON(http.StatusOK, echo.Map{
			"released": []uint64{}, "not_owned": []uint64{},
			"showtime_id": showtimeID, "ok": true,
		})
	}
	owner, err := lock.ParseOwner(req.Owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.Locks.Release(c.Request().Context(), showtimeID, req.SeatIDs, owner)
	if err != nil {
		return h.lockError(err)
	}
	out := echo.Map{
		"released":    res.Released,
		"not_owned":   res.NotOwned,
		"showtime_id": showtimeID,
		"ok":          true,
	}
	if res.Degraded {
		out["degraded"] = true
	}
	return c.JSON(http.StatusOK, out)
}

// Inspect handles GET /showtimes/:id/seats/locks?seat_ids=101,102. It is
// diagnostic only and fail-soft: an unreachable store yields an empty
// list with degraded set.
func (h *LockHandler) Inspect(c echo.Context) error {
	showtimeID, err := h.showtimeID(c)
	if err != nil {
		return err
	}
	seatIDs, err := parseSeatIDs(c.QueryParam("seat_ids"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seat_ids format")
	}

	infos, ok := h.Locks.Inspect(c.Request().Context(), showtimeID, seatIDs)
	seats := make([]echo.Map, 0, len(infos))
	for _, in := range infos {
		m := echo.Map{"seat_id": in.SeatID, "locked": in.Owner != ""}
		if in.Owner != "" {
			m["owner"] = in.Owner
			m["ttl_ms"] = in.TTL.Milliseconds()
			m["expires_at"] = in.ExpiresAt.UnixMilli()
		}
		seats = append(seats, m)
	}
	out := echo.Map{"showtime_id": showtimeID, "seats": seats}
	if !ok {
		out["degraded"] = true
	}
	return c.JSON(http.StatusOK, out)
}

// Validate handles POST /showtimes/:id/seats/validate. The booking flow
// calls it right before payment to confirm the buyer still holds every
// seat.
func (h *LockHandler) Validate(c echo.Context) error {
	showtimeID, err := h.showtimeID(c)
	if err != nil {
		return err
	}

	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	owner, err := lock.ParseOwner(req.Owner)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.Locks.ValidateOwnership(c.Request().Context(), showtimeID, req.SeatIDs, owner)
	if err != nil {
		return h.lockError(err)
	}
	out := echo.Map{
		"valid":       report.Valid,
		"missing":     report.Missing,
		"showtime_id": showtimeID,
	}
	if report.Degraded {
		out["degraded"] = true
	}
	return c.JSON(http.StatusOK, out)
}

func (h *LockHandler) showtimeID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid showtime id")
	}
	ok, err := h.Showtimes.Exists(c.Request().Context(), id)
	if err != nil {
		h.Log.Error("showtime lookup failed", zap.Uint64("showtime_id", id), zap.Error(err))
		return 0, echo.NewHTTPError(http.StatusInternalServerError, "showtime lookup failed")
	}
	if !ok {
		return 0, echo.NewHTTPError(http.StatusNotFound, "showtime not found")
	}
	return id, nil
}

func (h *LockHandler) lockError(err error) error {
	switch {
	case errors.Is(err, lock.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, lock.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "lock store unavailable")
	default:
		h.Log.Error("lock operation failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lock operation failed")
	}
}

func parseSeatIDs(csv string) ([]uint64, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, errors.New("seat_ids required")
	}
	parts := strings.Split(csv, ",")
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
