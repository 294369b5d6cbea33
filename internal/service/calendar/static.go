package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
)

// Static is an in-memory calendar for development and tests.
type Static struct {
	mu     sync.Mutex
	busy   map[string]Busy
	events map[string]map[string]model.BusyInterval
	loc    *time.Location
	seq    int
	// Err, when set, fails every call.
	Err error
	// Delay holds FetchBusy until it elapses or ctx ends.
	Delay time.Duration
	calls int
}

func NewStatic(loc *time.Location) *Static {
	return &Static{
		busy:   make(map[string]Busy),
		events: make(map[string]map[string]model.BusyInterval),
		loc:    loc,
	}
}

// SetBusy marks iv busy on date for ref.
func (s *Static) SetBusy(ref, date string, iv model.Interval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[ref] == nil {
		s.busy[ref] = Busy{}
	}
	s.busy[ref][date] = append(s.busy[ref][date], iv)
}

func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Events returns a copy of the pushed events of ref.
func (s *Static) Events(ref string) map[string]model.BusyInterval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.BusyInterval, len(s.events[ref]))
	for k, v := range s.events[ref] {
		out[k] = v
	}
	return out
}

func (s *Static) FetchBusy(ctx context.Context, ref, from, to string) (Busy, error) {
	s.mu.Lock()
	s.calls++
	delay, failure := s.Delay, s.Err
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, apperrors.ExternalService("calendar", ctx.Err())
		}
	}
	if failure != nil {
		return nil, apperrors.ExternalService("calendar", failure)
	}

	dates, err := model.DatesBetween(from, to)
	if err != nil {
		return nil, apperrors.Validation("invalid date range", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := Busy{}
	for _, d := range dates {
		if ivs := s.busy[ref][d]; len(ivs) > 0 {
			out[d] = append([]model.Interval(nil), ivs...)
		}
	}
	// pushed events occupy time as well
	for _, evt := range s.events[ref] {
		for _, d := range dates {
			if d == evt.Date {
				out[d] = append(out[d], evt.Interval)
			}
		}
	}
	out.Sort()
	return out, nil
}

func (s *Static) PushReservation(ctx context.Context, ref string, start, end time.Time, label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", apperrors.ExternalService("calendar", s.Err)
	}
	s.seq++
	id := fmt.Sprintf("evt-%d", s.seq)
	if s.events[ref] == nil {
		s.events[ref] = make(map[string]model.BusyInterval)
	}
	start, end = start.In(s.loc), end.In(s.loc)
	s.events[ref][id] = model.BusyInterval{
		ProviderID: ref,
		Date:       start.Format(model.DateLayout),
		Interval:   model.Interval{Start: model.ClockOf(start), End: model.ClockOf(end)},
	}
	return id, nil
}

func (s *Static) RemoveReservation(ctx context.Context, ref, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return apperrors.ExternalService("calendar", s.Err)
	}
	if _, ok := s.events[ref][eventID]; !ok {
		return apperrors.NotFound("calendar event", nil)
	}
	delete(s.events[ref], eventID)
	return nil
}
