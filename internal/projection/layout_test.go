package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTemplateDefaultShape(t *testing.T) {
	seats := generateTemplate(LayoutParams{})
	require.Len(t, seats, 12*18)

	assert.Equal(t, "A", seats[0].Row)
	assert.Equal(t, uint32(1), seats[0].Number)
	assert.True(t, seats[0].Premium)

	// Row F (index 5) is the last premium row, G the first regular.
	lastPremium := seats[5*18]
	assert.Equal(t, "F", lastPremium.Row)
	assert.True(t, lastPremium.Premium)
	firstRegular := seats[6*18]
	assert.Equal(t, "G", firstRegular.Row)
	assert.False(t, firstRegular.Premium)

	last := seats[len(seats)-1]
	assert.Equal(t, "L", last.Row)
	assert.Equal(t, uint32(18), last.Number)
}

func TestGenerateTemplateHallOverride(t *testing.T) {
	seats := generateTemplate(LayoutParams{Rows: 4, SeatsPerRow: 10})
	require.Len(t, seats, 40)

	// With four rows only the front half is premium.
	assert.True(t, seats[0].Premium)
	assert.True(t, seats[19].Premium)
	assert.False(t, seats[20].Premium)
}

func TestGenerateTemplateRowCap(t *testing.T) {
	seats := generateTemplate(LayoutParams{Rows: 40, SeatsPerRow: 2})
	require.Len(t, seats, 26*2)
	assert.Equal(t, "Z", seats[len(seats)-1].Row)
}

func TestLayoutCacheReuse(t *testing.T) {
	cache, err := NewLayoutCache()
	require.NoError(t, err)

	first := cache.Template(1, LayoutParams{Rows: 2, SeatsPerRow: 3})
	require.Len(t, first, 6)

	// Ristretto admits asynchronously; a template is correct either way,
	// cached or regenerated.
	cache.cache.Wait()
	second := cache.Template(1, LayoutParams{Rows: 2, SeatsPerRow: 3})
	assert.Equal(t, first, second)
}

func TestLayoutCacheKeyedByHallShape(t *testing.T) {
	cache, err := NewLayoutCache()
	require.NoError(t, err)

	small := cache.Template(7, LayoutParams{Rows: 4, SeatsPerRow: 2})
	require.Len(t, small, 8)

	cache.cache.Wait()

	// A second hall in the same theatre with its own dimensions must not
	// inherit the first hall's template.
	big := cache.Template(7, LayoutParams{Rows: 12, SeatsPerRow: 18})
	require.Len(t, big, 216)

	cache.cache.Wait()
	again := cache.Template(7, LayoutParams{Rows: 4, SeatsPerRow: 2})
	assert.Equal(t, small, again)
}

func TestSeatIDFor(t *testing.T) {
	assert.Equal(t, uint64(420000), seatIDFor(42, 0))
	assert.Equal(t, uint64(420215), seatIDFor(42, 215))
}
