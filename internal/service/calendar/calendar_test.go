package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
)

func TestBusyAddSplitsAtMidnight(t *testing.T) {
	loc := time.UTC
	busy := Busy{}
	busy.Add(
		time.Date(2026, 10, 16, 22, 0, 0, 0, loc),
		time.Date(2026, 10, 17, 1, 30, 0, 0, loc),
		loc,
	)
	assert.Equal(t, []model.Interval{{Start: model.NewClock(22, 0), End: model.EndOfDay}}, busy["2026-10-16"])
	assert.Equal(t, []model.Interval{{Start: 0, End: model.NewClock(1, 30)}}, busy["2026-10-17"])
}

func TestBusyAddConvertsTimezone(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	busy := Busy{}
	// 07:00Z is 10:00 in Moscow
	busy.Add(time.Date(2026, 10, 16, 7, 0, 0, 0, time.UTC), time.Date(2026, 10, 16, 7, 30, 20, 0, time.UTC), loc)
	assert.Equal(t, []model.Interval{{Start: model.NewClock(10, 0), End: model.NewClock(10, 31)}}, busy["2026-10-16"])
}

func TestCachedMemoisesUntilWrite(t *testing.T) {
	ctx := context.Background()
	static := NewStatic(time.UTC)
	static.SetBusy("cal-anna", "2026-10-16", model.Interval{Start: model.NewClock(10, 0), End: model.NewClock(11, 0)})
	c := NewCached(static, time.Minute)

	_, err := c.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.NoError(t, err)
	_, err = c.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 1, static.Calls())

	_, err = c.PushReservation(ctx, "cal-anna", time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), time.Date(2026, 10, 16, 13, 0, 0, 0, time.UTC), "booking")
	require.NoError(t, err)

	busy, err := c.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 2, static.Calls())
	assert.Len(t, busy["2026-10-16"], 2)
}

func TestCachedDoesNotStoreFailures(t *testing.T) {
	ctx := context.Background()
	static := NewStatic(time.UTC)
	static.Err = errors.New("down")
	c := NewCached(static, time.Minute)

	_, err := c.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.Error(t, err)
	static.Err = nil
	_, err = c.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 2, static.Calls())
}

func TestGuardedTimesOutAndOpens(t *testing.T) {
	ctx := context.Background()
	static := NewStatic(time.UTC)
	static.Delay = time.Second
	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "calendar", MaxFailures: 1, Timeout: time.Minute})
	g := NewGuarded(static, cb, 20*time.Millisecond)

	_, err := g.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrExternalService))

	_, err = g.FetchBusy(ctx, "cal-anna", "2026-10-16", "2026-10-16")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.True(t, apperrors.Is(err, apperrors.ErrExternalService))
	assert.Equal(t, 1, static.Calls())
}

func TestStaticRemoveUnknownEvent(t *testing.T) {
	static := NewStatic(time.UTC)
	err := static.RemoveReservation(context.Background(), "cal-anna", "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}
