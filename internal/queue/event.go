// Package queue connects the lock service to RabbitMQ: a fanout exchange
// relays seat deltas between server instances, and the booking.confirmed
// queue delivers purchase completions so held seats get released.
package queue

// Broker names shared by publisher and consumers.
const (
	// SeatEventsExchange is the fanout exchange carrying RemoteEvent
	// payloads.  Every instance binds its own transient queue to it.
	SeatEventsExchange = "seat.events"

	// BookingConfirmedQueue is the durable queue the booking
	// application publishes to after a purchase commits.
	BookingConfirmedQueue = "booking.confirmed"
)

// BookingConfirmedEvent is what the booking application publishes once a
// reservation is paid for.  The lock service only needs enough to release
// the buyer's locks and refresh subscribers; everything else in the
// booking flow is out of scope here.
type BookingConfirmedEvent struct {
	ReservationID uint64   `json:"reservation_id"`
	ShowtimeID    uint64   `json:"showtime_id"`
	SeatIDs       []uint64 `json:"seat_ids"`
	Owner         string   `json:"owner"`
	ConfirmedAt   string   `json:"confirmed_at"`
}
