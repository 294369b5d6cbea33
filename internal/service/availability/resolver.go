// Package availability turns working hours and calendar busy time into
// cached bookable slots.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
	"github.com/jwalitptl/booking-assistant/internal/service/calendar"
	"github.com/jwalitptl/booking-assistant/internal/service/timegrid"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

// FailurePolicy decides what an unreachable calendar means.
type FailurePolicy string

const (
	// FailOpen treats the date as having no busy intervals.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed treats the whole date as busy.
	FailClosed FailurePolicy = "fail_closed"
)

func (p FailurePolicy) Valid() bool {
	return p == FailOpen || p == FailClosed
}

type Config struct {
	SlotDuration time.Duration
	Policy       FailurePolicy
	FetchTimeout time.Duration
	Location     *time.Location
}

type Resolver struct {
	store     repository.Store
	calendar  calendar.Client
	providers *model.Directory
	cfg       Config
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewResolver(
	store repository.Store,
	cal calendar.Client,
	providers *model.Directory,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Resolver {
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = time.Hour
	}
	if !cfg.Policy.Valid() {
		cfg.Policy = FailOpen
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Resolver{
		store:     store,
		calendar:  cal,
		providers: providers,
		cfg:       cfg,
		logger:    log,
		metrics:   m,
	}
}

// Resolve computes the slots of providerID for the inclusive date range and
// writes all of them to the slot cache in one Append. It does not
// deduplicate: callers re-resolving a range must clear it first (Refresh).
func (r *Resolver) Resolve(ctx context.Context, providerID, from, to string) ([]model.Slot, error) {
	provider, ok := r.providers.Get(providerID)
	if !ok {
		return nil, apperrors.NotFound("provider", nil)
	}
	if !provider.Active {
		return nil, apperrors.Validation(fmt.Sprintf("provider %s is inactive", providerID), nil)
	}
	dates, err := model.DatesBetween(from, to)
	if err != nil {
		return nil, apperrors.Validation("invalid date range", err)
	}

	busy, closed := r.fetchBusy(ctx, provider, from, to)
	if closed {
		return nil, nil
	}

	reserved, err := r.activeByDate(ctx, providerID, dates)
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}

	hours := r.providers.Hours(provider)
	var slots []model.Slot
	for _, date := range dates {
		day, _ := model.ParseDate(date)
		tiles := timegrid.TileAll(hours.On(day.Weekday()), r.cfg.SlotDuration)
		for _, tile := range timegrid.Without(tiles, busy[date]) {
			slots = append(slots, model.Slot{
				SlotKey: model.SlotKey{
					ProviderID: providerID,
					Date:       date,
					Start:      tile.Start,
					End:        tile.End,
				},
				Available: len(repository.Overlapping(reserved[date], tile)) == 0,
			})
		}
	}

	if len(slots) == 0 {
		return nil, nil
	}
	rows := make([]repository.Row, len(slots))
	for i, s := range slots {
		rows[i] = repository.SlotRow(s)
	}
	if err := r.store.Append(ctx, repository.TableSlots, rows...); err != nil {
		return nil, apperrors.ExternalService("slot store", err)
	}
	r.metrics.SlotsResolved.Add(float64(len(slots)))
	return slots, nil
}

// Refresh clears the range from the slot cache and resolves it again.
func (r *Resolver) Refresh(ctx context.Context, providerID, from, to string) ([]model.Slot, error) {
	dates, err := model.DatesBetween(from, to)
	if err != nil {
		return nil, apperrors.Validation("invalid date range", err)
	}
	for _, date := range dates {
		if _, err := r.store.Delete(ctx, repository.TableSlots, repository.Filter{
			repository.ColProviderID: providerID,
			repository.ColDate:       date,
		}); err != nil {
			return nil, apperrors.ExternalService("slot store", err)
		}
	}
	return r.Resolve(ctx, providerID, from, to)
}

// RefreshAll refreshes every active provider and reports how many slots
// were written. One provider failing does not stop the others.
func (r *Resolver) RefreshAll(ctx context.Context, from, to string) (int, error) {
	total := 0
	var firstErr error
	for _, p := range r.providers.Active() {
		slots, err := r.Refresh(ctx, p.ID, from, to)
		if err != nil {
			r.logger.Error(err, "Failed to refresh availability", "provider_id", p.ID)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += len(slots)
	}
	return total, firstErr
}

// fetchBusy applies the failure policy. closed reports that every date of
// the range must be treated as busy.
func (r *Resolver) fetchBusy(ctx context.Context, p model.Provider, from, to string) (busy calendar.Busy, closed bool) {
	if p.CalendarRef == "" || r.calendar == nil {
		return calendar.Busy{}, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	timer := prometheus.NewTimer(r.metrics.CalendarFetchLatency)
	busy, err := r.calendar.FetchBusy(fetchCtx, p.CalendarRef, from, to)
	timer.ObserveDuration()
	if err == nil {
		return busy, false
	}

	r.metrics.CalendarFetchFailures.WithLabelValues(string(r.cfg.Policy)).Inc()
	r.logger.ZL.Warn().Err(err).
		Str("provider_id", p.ID).
		Str("from", from).
		Str("to", to).
		Str("policy", string(r.cfg.Policy)).
		Msg("Calendar busy fetch failed, applying failure policy")

	if r.cfg.Policy == FailClosed {
		return nil, true
	}
	return calendar.Busy{}, false
}

func (r *Resolver) activeByDate(ctx context.Context, providerID string, dates []string) (map[string][]*model.Reservation, error) {
	out := make(map[string][]*model.Reservation, len(dates))
	if len(dates) == 1 {
		active, err := repository.ActiveReservations(ctx, r.store, providerID, dates[0])
		if err != nil {
			return nil, err
		}
		out[dates[0]] = active
		return out, nil
	}
	active, err := repository.ActiveReservations(ctx, r.store, providerID, "")
	if err != nil {
		return nil, err
	}
	for _, res := range active {
		out[res.Date] = append(out[res.Date], res)
	}
	return out, nil
}
