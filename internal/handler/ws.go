package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/broadcast"
	"github.com/iliyamo/cinema-seat-locks/internal/hub"
	"github.com/iliyamo/cinema-seat-locks/internal/utils"
)

// WSHandler upgrades seat-map subscribers onto the hub.
type WSHandler struct {
	Hub       *hub.Hub
	Showtimes ShowtimeChecker
	JWTSecret string
	Log       *zap.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Seat maps are public read-only data; any origin may subscribe.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Subscribe handles GET /showtimes/:id/seats/ws. The handshake is
// accepted before the showtime is validated so rejection reaches the
// client as a proper close frame (4004) instead of an opaque HTTP error.
// A token query param optionally attaches an identity to the subscriber;
// invalid tokens downgrade to anonymous rather than rejecting.
func (h *WSHandler) Subscribe(c echo.Context) error {
	showtimeID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showtimeID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid showtime id")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil // Upgrade already wrote the HTTP error
	}

	ok, err := h.Showtimes.Exists(c.Request().Context(), showtimeID)
	if err != nil {
		h.Log.Error("showtime lookup failed on subscribe",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
	}
	if err != nil || !ok {
		msg := websocket.FormatCloseMessage(hub.CloseShowtimeNotFound, "showtime not found")
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage, msg)
		_ = conn.Close()
		return nil
	}

	owner, _ := utils.SubjectFromToken(c.QueryParam("token"), h.JWTSecret)

	sub := h.Hub.Subscribe(conn, showtimeID, owner)
	sub.Send(broadcast.ConnectedEvent(showtimeID))
	sub.ReadLoop()
	return nil
}
