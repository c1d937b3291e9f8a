// Package projection turns the static seat layout, the persisted bookings
// and the active locks of a showtime into the seat map clients render.
// Nothing here is stored: the projection is recomputed on demand.
package projection

import (
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Default auditorium shape, used when the hall carries no explicit
// dimensions: rows A-F premium, G-L regular, 18 seats per row.
const (
	defaultPremiumRows = 6
	defaultRegularRows = 6
	defaultSeatsPerRow = 18

	premiumPrice = 350
	regularPrice = 250
)

// LayoutParams describes the physical shape of one hall.
type LayoutParams struct {
	Rows        uint32 // total rows; capped at 26 (single-letter labels)
	SeatsPerRow uint32
}

// templateSeat is one seat position in a hall-shaped template, before any
// showtime-specific seat IDs are assigned.
type templateSeat struct {
	Row     string
	Number  uint32
	Premium bool
}

// LayoutCache builds and caches per-theatre seat templates.  Template
// generation is deterministic, so the cache is purely a shortcut for the
// page-view path where the projector runs on every request.
type LayoutCache struct {
	cache *ristretto.Cache
}

// NewLayoutCache sizes the cache for a realistic theatre count.
func NewLayoutCache() (*LayoutCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("layout cache: %w", err)
	}
	return &LayoutCache{cache: c}, nil
}

// Template returns the seat template for a theatre, generating and caching
// it on first use.  Params with zero values fall back to the default shape.
func (l *LayoutCache) Template(theatreID uint64, params LayoutParams) []templateSeat {
	// Halls of one theatre can differ in shape, so the dimensions are
	// part of the key.
	key := fmt.Sprintf("theatre:%d:%dx%d", theatreID, params.Rows, params.SeatsPerRow)
	if v, ok := l.cache.Get(key); ok {
		if seats, ok := v.([]templateSeat); ok {
			return seats
		}
	}
	seats := generateTemplate(params)
	l.cache.Set(key, seats, 1)
	return seats
}

// generateTemplate lays out rows top to bottom.  The front block (up to
// six rows) is premium, the rest regular, mirroring the default shape when
// the hall defines its own dimensions.
func generateTemplate(params LayoutParams) []templateSeat {
	rows := int(params.Rows)
	perRow := int(params.SeatsPerRow)
	premium := defaultPremiumRows
	if rows <= 0 {
		rows = defaultPremiumRows + defaultRegularRows
	}
	if rows > 26 {
		rows = 26
	}
	if perRow <= 0 {
		perRow = defaultSeatsPerRow
	}
	if premium > rows/2 {
		premium = rows / 2
	}
	if premium == 0 && rows > 0 {
		premium = 1
	}

	seats := make([]templateSeat, 0, rows*perRow)
	for r := 0; r < rows; r++ {
		label := string(rune('A' + r))
		for n := 1; n <= perRow; n++ {
			seats = append(seats, templateSeat{
				Row:     label,
				Number:  uint32(n),
				Premium: r < premium,
			})
		}
	}
	return seats
}

// seatIDFor derives the stable per-showtime seat ID for the seat at the
// given template ordinal.  The multiplier keeps IDs unique across
// showtimes without any allocation table.
func seatIDFor(showtimeID uint64, ordinal int) uint64 {
	return showtimeID*10_000 + uint64(ordinal)
}
