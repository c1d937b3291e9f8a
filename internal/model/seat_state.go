// Package model defines the data structures shared between the lock
// service, the seat-state projector and the broadcast subsystem.  These
// types are computed on demand and never persisted; the only durable
// records the service reads are bookings and showtimes in MySQL.
package model

// SeatStatus enumerates the three states a seat can be in for a given
// showtime.  Booked always outranks Locked: once a seat appears in a
// persisted booking it can never be reported as Locked or Available again.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatLocked    SeatStatus = "locked"
	SeatBooked    SeatStatus = "booked"
)

// SeatState is one seat in a projected seat map.  LockedBy carries the
// owner token only while Status is SeatLocked.
type SeatState struct {
	SeatID   uint64     `json:"seat_id"`
	Row      string     `json:"row"`
	Number   uint32     `json:"number"`
	Status   SeatStatus `json:"status"`
	LockedBy string     `json:"locked_by,omitempty"`
	Label    string     `json:"label"`
}

// SeatMap is the full projection for one showtime: the sectioned layout
// clients render, plus a flattened seat list used by broadcast payloads.
// Degraded is set when the lock store could not be consulted and the map
// therefore reflects bookings only.
type SeatMap struct {
	ShowtimeID uint64      `json:"showtime_id"`
	Sections   []Section   `json:"sections"`
	Seats      []SeatState `json:"-"`
	Degraded   bool        `json:"degraded,omitempty"`
}

// Section groups rows that share a price band (e.g. Premium vs Regular).
type Section struct {
	Name  string      `json:"name"`
	Price uint32      `json:"price"`
	Rows  []LayoutRow `json:"rows"`
}

// LayoutRow is one physical row of seats inside a section.
type LayoutRow struct {
	Row   string      `json:"row"`
	Seats []SeatState `json:"seats"`
}
