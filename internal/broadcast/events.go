// Package broadcast turns committed lock mutations into hub fan-outs,
// decoupled from the request path through a supervised bounded queue.
package broadcast

import (
	"encoding/json"
	"time"

	"github.com/iliyamo/cinema-seat-locks/internal/model"
)

// Event types pushed to subscribers.  seat_locked and seat_released are
// cheap per-seat deltas sent immediately; seat_update carries the full
// projection and is computed opportunistically off the request path;
// seat_update_partial tells clients to refetch when the full projection
// could not be produced in time.
const (
	EventSeatLocked        = "seat_locked"
	EventSeatReleased      = "seat_released"
	EventSeatUpdate        = "seat_update"
	EventSeatUpdatePartial = "seat_update_partial"
	EventConnected         = "connected"
)

// seatPayload is the per-seat body of a delta event.
type seatPayload struct {
	SeatID   uint64 `json:"seat_id"`
	Status   string `json:"status"`
	LockedBy string `json:"locked_by,omitempty"`
}

// envelope is the common wire shape of every server-to-client event.
type envelope struct {
	Type       string            `json:"type"`
	Seat       *seatPayload      `json:"seat,omitempty"`
	Seats      []model.SeatState `json:"seats,omitempty"`
	ShowtimeID uint64            `json:"showtime_id"`
	Timestamp  string            `json:"timestamp"`
	Message    string            `json:"message,omitempty"`
	Note       string            `json:"note,omitempty"`
}

func stamp() string { return time.Now().UTC().Format(time.RFC3339) }

// SeatLockedEvent is the delta broadcast for one newly locked seat.
func SeatLockedEvent(showtimeID, seatID uint64, owner string) []byte {
	body, _ := json.Marshal(envelope{
		Type:       EventSeatLocked,
		Seat:       &seatPayload{SeatID: seatID, Status: string(model.SeatLocked), LockedBy: owner},
		ShowtimeID: showtimeID,
		Timestamp:  stamp(),
	})
	return body
}

// SeatReleasedEvent is the delta broadcast for one freed seat.
func SeatReleasedEvent(showtimeID, seatID uint64) []byte {
	body, _ := json.Marshal(envelope{
		Type:       EventSeatReleased,
		Seat:       &seatPayload{SeatID: seatID, Status: string(model.SeatAvailable)},
		ShowtimeID: showtimeID,
		Timestamp:  stamp(),
	})
	return body
}

// SeatUpdateEvent carries the full flattened projection.
func SeatUpdateEvent(m *model.SeatMap) []byte {
	body, _ := json.Marshal(envelope{
		Type:       EventSeatUpdate,
		Seats:      m.Seats,
		ShowtimeID: m.ShowtimeID,
		Timestamp:  stamp(),
	})
	return body
}

// SeatUpdatePartialEvent hints clients to refresh on their own because a
// full projection was unavailable.
func SeatUpdatePartialEvent(showtimeID uint64) []byte {
	body, _ := json.Marshal(envelope{
		Type:       EventSeatUpdatePartial,
		ShowtimeID: showtimeID,
		Timestamp:  stamp(),
		Note:       "partial",
	})
	return body
}

// ConnectedEvent greets a subscriber right after registration.
func ConnectedEvent(showtimeID uint64) []byte {
	body, _ := json.Marshal(envelope{
		Type:       EventConnected,
		ShowtimeID: showtimeID,
		Timestamp:  stamp(),
		Message:    "Connected to seat updates",
	})
	return body
}

// RemoteEvent is the relay payload exchanged between server instances so
// each instance's hub can rebroadcast deltas committed elsewhere.  Origin
// carries the publishing instance's ID so it can skip its own echoes.
type RemoteEvent struct {
	Type       string   `json:"type"` // EventSeatLocked or EventSeatReleased
	ShowtimeID uint64   `json:"showtime_id"`
	SeatIDs    []uint64 `json:"seat_ids"`
	Owner      string   `json:"owner,omitempty"`
	Origin     string   `json:"origin"`
}
