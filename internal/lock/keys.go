package lock

import (
	"fmt"
	"strconv"
	"strings"
)

// Keys maps (showtime, seat) pairs onto Redis key names.  The naming is a
// pure convention shared by every server instance; all mutual exclusion is
// enforced by Redis itself, so two instances computing the same key for the
// same seat is exactly what makes the lock global.
//
// An optional prefix namespaces the keys so that several environments can
// share one Redis (e.g. "staging" -> "staging:seat_lock:42:101").
type Keys struct {
	prefix string
}

// NewKeys returns a Keys using the given namespace prefix.  An empty
// prefix yields bare "seat_lock:..." keys.
func NewKeys(prefix string) Keys {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return Keys{prefix: prefix}
}

// Seat returns the lock key for one seat of one showtime.
func (k Keys) Seat(showtimeID, seatID uint64) string {
	return fmt.Sprintf("%sseat_lock:%d:%d", k.prefix, showtimeID, seatID)
}

// Seats returns lock keys for a batch of seats, in the same order.
func (k Keys) Seats(showtimeID uint64, seatIDs []uint64) []string {
	out := make([]string, len(seatIDs))
	for i, sid := range seatIDs {
		out[i] = k.Seat(showtimeID, sid)
	}
	return out
}

// Pattern returns the SCAN pattern matching every lock of a showtime.
func (k Keys) Pattern(showtimeID uint64) string {
	return fmt.Sprintf("%sseat_lock:%d:*", k.prefix, showtimeID)
}

// SeatID extracts the seat ID from a lock key.  It returns false for keys
// that do not end in a numeric segment.
func (k Keys) SeatID(key string) (uint64, bool) {
	idx := strings.LastIndexByte(key, ':')
	if idx < 0 || idx == len(key)-1 {
		return 0, false
	}
	id, err := strconv.ParseUint(key[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
