package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/booking-assistant/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
)

// Guarded bounds every call with a timeout and stops calling a failing
// calendar for a while.
type Guarded struct {
	next    Client
	cb      *circuitbreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Client, cb *circuitbreaker.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{next: next, cb: cb, timeout: timeout}
}

func (g *Guarded) run(ctx context.Context, fn func(ctx context.Context) error) error {
	err := g.cb.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, context.DeadlineExceeded):
		return apperrors.ExternalService("calendar", err)
	}
	return err
}

func (g *Guarded) FetchBusy(ctx context.Context, ref, from, to string) (Busy, error) {
	var busy Busy
	err := g.run(ctx, func(ctx context.Context) error {
		var err error
		busy, err = g.next.FetchBusy(ctx, ref, from, to)
		return err
	})
	return busy, err
}

func (g *Guarded) PushReservation(ctx context.Context, ref string, start, end time.Time, label string) (string, error) {
	var id string
	err := g.run(ctx, func(ctx context.Context) error {
		var err error
		id, err = g.next.PushReservation(ctx, ref, start, end, label)
		return err
	})
	return id, err
}

func (g *Guarded) RemoveReservation(ctx context.Context, ref, eventID string) error {
	return g.run(ctx, func(ctx context.Context) error {
		return g.next.RemoveReservation(ctx, ref, eventID)
	})
}
