// Package calendar talks to the providers' external calendars.
package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Busy maps a YYYY-MM-DD date to the busy intervals on that date.
type Busy map[string][]model.Interval

// Client is the external calendar collaborator. Dates are inclusive
// YYYY-MM-DD bounds in the business timezone.
type Client interface {
	FetchBusy(ctx context.Context, ref, from, to string) (Busy, error)
	PushReservation(ctx context.Context, ref string, start, end time.Time, label string) (string, error)
	RemoveReservation(ctx context.Context, ref, eventID string) error
}

// Range converts inclusive dates into the [min, max) instants they span.
func Range(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(model.DateLayout, from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.ParseInLocation(model.DateLayout, to, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end.AddDate(0, 0, 1), nil
}

// Add splits [start, end) at local midnights and records each piece.
func (b Busy) Add(start, end time.Time, loc *time.Location) {
	start, end = start.In(loc), end.In(loc)
	for start.Before(end) {
		y, m, d := start.Date()
		nextMidnight := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		pieceEnd := end
		if nextMidnight.Before(end) {
			pieceEnd = nextMidnight
		}
		date := start.Format(model.DateLayout)
		iv := model.Interval{Start: model.ClockOf(start), End: model.ClockOf(pieceEnd)}
		if !pieceEnd.Before(nextMidnight) {
			iv.End = model.EndOfDay
		}
		// round partial minutes outwards so the busy range is never shrunk
		if pieceEnd.Second() > 0 || pieceEnd.Nanosecond() > 0 {
			if iv.End < model.EndOfDay {
				iv.End++
			}
		}
		if !iv.Empty() {
			b[date] = append(b[date], iv)
		}
		start = pieceEnd
	}
}

// Sort orders every date's intervals by start.
func (b Busy) Sort() {
	for _, ivs := range b {
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
	}
}
