package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// BookingRepo reads confirmed bookings.  The booking application stores
// sold seats as a comma-separated list of seat IDs per booking row; this
// repository only ever parses that column, it never writes it.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// BookedSeatIDs returns the set of seat IDs already sold for a showtime.
// Malformed entries in the seat list are skipped rather than failing the
// whole projection; a seat that cannot be parsed cannot be rendered as
// booked, and the booking application owns fixing the row.
func (r *BookingRepo) BookedSeatIDs(ctx context.Context, showtimeID uint64) (map[uint64]struct{}, error) {
	const q = `SELECT seat_numbers FROM bookings WHERE show_id = ?`
	rows, err := r.db.QueryContext(ctx, q, showtimeID)
	if err != nil {
		return nil, fmt.Errorf("query bookings for showtime %d: %w", showtimeID, err)
	}
	defer rows.Close()

	booked := make(map[uint64]struct{})
	for rows.Next() {
		var seatNumbers sql.NullString
		if err := rows.Scan(&seatNumbers); err != nil {
			return nil, fmt.Errorf("scan booking row: %w", err)
		}
		if !seatNumbers.Valid {
			continue
		}
		parseSeatList(seatNumbers.String, booked)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookings: %w", err)
	}
	return booked, nil
}

// parseSeatList adds every parseable seat ID from a comma-separated list
// to the set, skipping blanks and garbage.
func parseSeatList(csv string, into map[uint64]struct{}) {
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sid, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			continue
		}
		into[sid] = struct{}{}
	}
}
