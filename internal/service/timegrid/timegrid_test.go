package timegrid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

func iv(sh, sm, eh, em int) model.Interval {
	return model.Interval{Start: model.NewClock(sh, sm), End: model.NewClock(eh, em)}
}

func TestTileMorningHours(t *testing.T) {
	got := Tile(model.NewClock(9, 0), model.NewClock(12, 0), time.Hour)
	assert.Equal(t, []model.Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0), iv(11, 0, 12, 0)}, got)
}

func TestTileDropsShortRemainder(t *testing.T) {
	got := Tile(model.NewClock(9, 0), model.NewClock(11, 30), time.Hour)
	assert.Equal(t, []model.Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0)}, got)
}

func TestTileDegenerateInput(t *testing.T) {
	assert.Nil(t, Tile(model.NewClock(9, 0), model.NewClock(9, 0), time.Hour))
	assert.Nil(t, Tile(model.NewClock(12, 0), model.NewClock(9, 0), time.Hour))
	assert.Nil(t, Tile(model.NewClock(9, 0), model.NewClock(12, 0), 0))
	assert.Nil(t, Tile(model.NewClock(9, 0), model.NewClock(12, 0), 30*time.Second))
}

func TestTileContainmentAndNoOverlap(t *testing.T) {
	for _, d := range []time.Duration{15 * time.Minute, 45 * time.Minute, 50 * time.Minute, 2 * time.Hour} {
		window := iv(9, 10, 18, 0)
		tiles := Tile(window.Start, window.End, d)
		for i, tile := range tiles {
			assert.True(t, window.Contains(tile), "tile %s outside window", tile)
			assert.Equal(t, d, tile.Duration())
			if i > 0 {
				assert.False(t, tiles[i-1].Overlaps(tile))
				assert.Equal(t, tiles[i-1].End, tile.Start)
			}
		}
	}
}

func TestWithoutBusyIntervals(t *testing.T) {
	tiles := Tile(model.NewClock(9, 0), model.NewClock(12, 0), time.Hour)
	got := Without(tiles, []model.Interval{iv(10, 0, 10, 30)})
	assert.Equal(t, []model.Interval{iv(9, 0, 10, 0), iv(11, 0, 12, 0)}, got)

	// busy block ending exactly at a tile start does not remove it
	got = Without(tiles, []model.Interval{iv(8, 0, 9, 0)})
	assert.Len(t, got, 3)
}

func TestTileAllKeepsWindowOrder(t *testing.T) {
	got := TileAll([]model.Interval{iv(9, 0, 11, 0), iv(14, 0, 15, 30)}, time.Hour)
	assert.Equal(t, []model.Interval{iv(9, 0, 10, 0), iv(10, 0, 11, 0), iv(14, 0, 15, 0)}, got)
}
