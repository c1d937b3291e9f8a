package projection

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-locks/internal/model"
	"github.com/iliyamo/cinema-seat-locks/internal/repository"
)

// LockReader is the slice of the lock service the projector needs: one
// bulk, fail-soft lookup of active owners.  The boolean reports whether
// the store answered; false degrades the projection to bookings only.
type LockReader interface {
	ActiveOwners(ctx context.Context, showtimeID uint64, seatIDs []uint64) (map[uint64]string, bool)
}

// Projector merges three inputs into a SeatMap: the deterministic layout
// template, the seats already sold (read-only MySQL), and the live locks.
// Booked beats Locked beats Available, in that order, for every seat.
type Projector struct {
	showtimes *repository.ShowtimeRepo
	bookings  *repository.BookingRepo
	locks     LockReader
	layouts   *LayoutCache
	timeout   time.Duration
	log       *zap.Logger
}

// NewProjector wires a Projector.  The timeout bounds one whole projection
// including its database and store reads; zero defaults to two seconds.
func NewProjector(showtimes *repository.ShowtimeRepo, bookings *repository.BookingRepo, locks LockReader, layouts *LayoutCache, timeout time.Duration, log *zap.Logger) *Projector {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Projector{
		showtimes: showtimes,
		bookings:  bookings,
		locks:     locks,
		layouts:   layouts,
		timeout:   timeout,
		log:       log,
	}
}

// Project computes the current seat map for a showtime.  Unknown showtimes
// return repository.ErrShowtimeNotFound.  A failing lock lookup never
// fails the request: the map comes back valid with Degraded set and every
// unsold seat shown available.
func (p *Projector) Project(ctx context.Context, showtimeID uint64) (*model.SeatMap, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	started := time.Now()

	st, err := p.showtimes.GetByID(ctx, showtimeID)
	if err != nil {
		return nil, err
	}
	dims, err := p.showtimes.HallLayout(ctx, st.HallID)
	if err != nil {
		// Fall back to the default shape; a missing hall row must not
		// blank the seat map.
		p.log.Warn("hall layout lookup failed, using default shape",
			zap.Uint64("showtime_id", showtimeID), zap.Error(err))
		dims = repository.HallDims{}
	}
	template := p.layouts.Template(st.TheatreID, LayoutParams{Rows: dims.Rows, SeatsPerRow: dims.SeatsPerRow})

	booked, err := p.bookings.BookedSeatIDs(ctx, showtimeID)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	seatIDs := make([]uint64, len(template))
	for i := range template {
		seatIDs[i] = seatIDFor(showtimeID, i)
	}
	owners, storeOK := p.locks.ActiveOwners(ctx, showtimeID, seatIDs)

	seats := make([]model.SeatState, len(template))
	for i, t := range template {
		sid := seatIDs[i]
		s := model.SeatState{
			SeatID: sid,
			Row:    t.Row,
			Number: t.Number,
			Status: model.SeatAvailable,
			Label:  fmt.Sprintf("%s%d", t.Row, t.Number),
		}
		if _, sold := booked[sid]; sold {
			s.Status = model.SeatBooked
		} else if owner, locked := owners[sid]; locked {
			s.Status = model.SeatLocked
			s.LockedBy = owner
		}
		seats[i] = s
	}

	out := &model.SeatMap{
		ShowtimeID: showtimeID,
		Sections:   buildSections(template, seats),
		Seats:      seats,
		Degraded:   !storeOK,
	}
	p.log.Debug("projected seat map",
		zap.Uint64("showtime_id", showtimeID),
		zap.Int("seats", len(seats)),
		zap.Int("booked", len(booked)),
		zap.Int("locked", len(owners)),
		zap.Bool("degraded", out.Degraded),
		zap.Duration("took", time.Since(started)))
	return out, nil
}

// buildSections groups the flat seat list back into the Premium/Regular
// row structure clients render.  Template and seats share indexes.
func buildSections(template []templateSeat, seats []model.SeatState) []model.Section {
	type bucket struct {
		order []string
		rows  map[string][]model.SeatState
	}
	premium := bucket{rows: map[string][]model.SeatState{}}
	regular := bucket{rows: map[string][]model.SeatState{}}

	for i, t := range template {
		b := &regular
		if t.Premium {
			b = &premium
		}
		if _, seen := b.rows[t.Row]; !seen {
			b.order = append(b.order, t.Row)
		}
		b.rows[t.Row] = append(b.rows[t.Row], seats[i])
	}

	var sections []model.Section
	for _, s := range []struct {
		name  string
		price uint32
		b     bucket
	}{
		{"Premium", premiumPrice, premium},
		{"Regular", regularPrice, regular},
	} {
		if len(s.b.order) == 0 {
			continue
		}
		sec := model.Section{Name: s.name, Price: s.price}
		for _, row := range s.b.order {
			sec.Rows = append(sec.Rows, model.LayoutRow{Row: row, Seats: s.b.rows[row]})
		}
		sections = append(sections, sec)
	}
	return sections
}
