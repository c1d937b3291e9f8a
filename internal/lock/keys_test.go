package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeysSeat(t *testing.T) {
	k := NewKeys("")
	assert.Equal(t, "seat_lock:42:101", k.Seat(42, 101))

	staging := NewKeys("staging")
	assert.Equal(t, "staging:seat_lock:42:101", staging.Seat(42, 101))

	// A prefix already ending in ":" is not doubled.
	colon := NewKeys("staging:")
	assert.Equal(t, "staging:seat_lock:42:101", colon.Seat(42, 101))
}

func TestKeysSeatsOrder(t *testing.T) {
	k := NewKeys("")
	got := k.Seats(7, []uint64{3, 1, 2})
	assert.Equal(t, []string{"seat_lock:7:3", "seat_lock:7:1", "seat_lock:7:2"}, got)
}

func TestKeysPattern(t *testing.T) {
	k := NewKeys("env")
	assert.Equal(t, "env:seat_lock:9:*", k.Pattern(9))
}

func TestKeysSeatID(t *testing.T) {
	k := NewKeys("")

	id, ok := k.SeatID("seat_lock:42:101")
	assert.True(t, ok)
	assert.Equal(t, uint64(101), id)

	_, ok = k.SeatID("seat_lock:42:")
	assert.False(t, ok)

	_, ok = k.SeatID("not-a-lock-key")
	assert.False(t, ok)

	_, ok = k.SeatID("seat_lock:42:abc")
	assert.False(t, ok)
}
