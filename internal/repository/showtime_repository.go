package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Showtime is the slice of a scheduled screening this service reads.
// Times stay in DB string form ("2006-01-02 15:04:05" UTC); the lock
// service never does schedule arithmetic on them.
type Showtime struct {
	ID        uint64
	TheatreID uint64
	HallID    uint64
	StartsAt  string
}

// HallDims carries the physical dimensions of a hall when the owner
// configured them.  Zero values mean "use the default auditorium shape".
type HallDims struct {
	Rows        uint32
	SeatsPerRow uint32
}

// ShowtimeRepo reads showtimes and hall dimensions.  It never writes.
type ShowtimeRepo struct {
	db *sql.DB
}

// NewShowtimeRepo returns a ShowtimeRepo bound to the provided database.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// GetByID retrieves a showtime.  It returns ErrShowtimeNotFound when the
// row does not exist.
func (r *ShowtimeRepo) GetByID(ctx context.Context, id uint64) (*Showtime, error) {
	const q = `SELECT id, theatre_id, hall_id, starts_at FROM showtimes WHERE id = ?`
	var st Showtime
	err := r.db.QueryRowContext(ctx, q, id).Scan(&st.ID, &st.TheatreID, &st.HallID, &st.StartsAt)
	if err == sql.ErrNoRows {
		return nil, ErrShowtimeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get showtime %d: %w", id, err)
	}
	return &st, nil
}

// Exists reports whether a showtime exists without loading the row.
func (r *ShowtimeRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	const q = `SELECT 1 FROM showtimes WHERE id = ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, q, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("showtime exists %d: %w", id, err)
	}
	return true, nil
}

// HallLayout returns the configured dimensions of a hall.  NULL columns
// come back as zero so callers fall through to the default shape.
func (r *ShowtimeRepo) HallLayout(ctx context.Context, hallID uint64) (HallDims, error) {
	const q = `SELECT seat_rows, seat_cols FROM halls WHERE id = ?`
	var rows, cols sql.NullInt32
	err := r.db.QueryRowContext(ctx, q, hallID).Scan(&rows, &cols)
	if err == sql.ErrNoRows {
		return HallDims{}, nil
	}
	if err != nil {
		return HallDims{}, fmt.Errorf("hall layout %d: %w", hallID, err)
	}
	var dims HallDims
	if rows.Valid && rows.Int32 > 0 {
		dims.Rows = uint32(rows.Int32)
	}
	if cols.Valid && cols.Int32 > 0 {
		dims.SeatsPerRow = uint32(cols.Int32)
	}
	return dims, nil
}
