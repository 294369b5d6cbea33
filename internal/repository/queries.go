package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Reservations reads a provider's reservations, optionally for one date,
// ordered by date and start.
func Reservations(ctx context.Context, s Store, providerID, date string) ([]*model.Reservation, error) {
	filter := Filter{}
	if providerID != "" {
		filter[ColProviderID] = providerID
	}
	if date != "" {
		filter[ColDate] = date
	}
	return ReservationsWhere(ctx, s, filter)
}

// ReservationsWhere decodes every reservation matching filter, ordered by
// date and start.
func ReservationsWhere(ctx context.Context, s Store, filter Filter) ([]*model.Reservation, error) {
	rows, err := s.Read(ctx, TableReservations, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Reservation, 0, len(rows))
	for _, row := range rows {
		res, err := ReservationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// ActiveReservations keeps only slot-holding reservations.
func ActiveReservations(ctx context.Context, s Store, providerID, date string) ([]*model.Reservation, error) {
	all, err := Reservations(ctx, s, providerID, date)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, r := range all {
		if r.Status.Active() {
			active = append(active, r)
		}
	}
	return active, nil
}

// Overlapping filters reservations whose interval overlaps iv.
func Overlapping(reservations []*model.Reservation, iv model.Interval) []*model.Reservation {
	var out []*model.Reservation
	for _, r := range reservations {
		if r.Interval().Overlaps(iv) {
			out = append(out, r)
		}
	}
	return out
}

func ReservationByID(ctx context.Context, s Store, id string) (*model.Reservation, error) {
	rows, err := s.Read(ctx, TableReservations, Filter{KeyColumn: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return ReservationFromRow(rows[0])
}

func ClientByIdentity(ctx context.Context, s Store, identity string) (*model.Client, error) {
	rows, err := s.Read(ctx, TableClients, Filter{"external_identity": identity})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return ClientFromRow(rows[0])
}

func ClientByID(ctx context.Context, s Store, id string) (*model.Client, error) {
	rows, err := s.Read(ctx, TableClients, Filter{KeyColumn: id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return ClientFromRow(rows[0])
}

// PendingOutbox returns up to limit pending events, oldest first.
func PendingOutbox(ctx context.Context, s Store, limit int) ([]*model.OutboxEvent, error) {
	rows, err := s.Read(ctx, TableOutbox, Filter{ColStatus: string(model.OutboxStatusPending)})
	if err != nil {
		return nil, err
	}
	events := make([]*model.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		evt, err := OutboxFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to decode outbox row: %w", err)
		}
		events = append(events, evt)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
