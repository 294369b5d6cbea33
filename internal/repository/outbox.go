package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Outbox adapts any Store to the outbox worker.
type Outbox struct {
	store Store
}

func NewOutbox(store Store) *Outbox {
	return &Outbox{store: store}
}

func (o *Outbox) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return PendingOutbox(ctx, o.store, limit)
}

func (o *Outbox) UpdateStatus(ctx context.Context, evt *model.OutboxEvent) error {
	return o.store.Update(ctx, TableOutbox, evt.ID.String(), OutboxStatusRow(evt))
}

func (o *Outbox) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	rows, err := o.store.Read(ctx, TableOutbox, Filter{ColStatus: string(model.OutboxStatusProcessed)})
	if err != nil {
		return 0, err
	}
	var deleted int64
	for _, row := range rows {
		evt, err := OutboxFromRow(row)
		if err != nil {
			return deleted, fmt.Errorf("failed to decode outbox row: %w", err)
		}
		if evt.ProcessedAt == nil || !evt.ProcessedAt.Before(before) {
			continue
		}
		n, err := o.store.Delete(ctx, TableOutbox, Filter{KeyColumn: evt.ID.String()})
		if err != nil {
			return deleted, err
		}
		deleted += int64(n)
	}
	return deleted, nil
}

// OutboxStatusRow holds the columns a processing attempt changes.
func OutboxStatusRow(evt *model.OutboxEvent) Row {
	row := Row{
		ColStatus:       string(evt.Status),
		"attempts":      strconv.Itoa(evt.Attempts),
		"error_message": evt.ErrorMessage,
		"processed_at":  "",
	}
	if evt.ProcessedAt != nil {
		row["processed_at"] = formatTime(*evt.ProcessedAt)
	}
	return row
}
