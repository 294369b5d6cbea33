// Package timegrid tiles working windows into fixed-length slots.
package timegrid

import (
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Tile splits [start, end) into consecutive windows of length d. A trailing
// remainder shorter than d is dropped.
func Tile(start, end model.Clock, d time.Duration) []model.Interval {
	step := model.Clock(d / time.Minute)
	if step <= 0 || end <= start {
		return nil
	}
	var out []model.Interval
	for t := start; t+step <= end; t += step {
		out = append(out, model.Interval{Start: t, End: t + step})
	}
	return out
}

// TileAll tiles each window in order.
func TileAll(windows []model.Interval, d time.Duration) []model.Interval {
	var out []model.Interval
	for _, w := range windows {
		out = append(out, Tile(w.Start, w.End, d)...)
	}
	return out
}

// Without drops every tile overlapping any of busy.
func Without(tiles, busy []model.Interval) []model.Interval {
	var out []model.Interval
	for _, t := range tiles {
		free := true
		for _, b := range busy {
			if t.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, t)
		}
	}
	return out
}
