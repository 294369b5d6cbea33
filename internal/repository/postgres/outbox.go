package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
)

// OutboxRepository reads the outbox with SQL-side ordering and limits.
type OutboxRepository struct {
	db    *sqlx.DB
	store *Store
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db, store: NewStore(db)}
}

type outboxRecord struct {
	ID           string `db:"id"`
	EventType    string `db:"event_type"`
	Payload      string `db:"payload"`
	Status       string `db:"status"`
	Attempts     string `db:"attempts"`
	ErrorMessage string `db:"error_message"`
	CreatedAt    string `db:"created_at"`
	ProcessedAt  string `db:"processed_at"`
}

func (r outboxRecord) row() repository.Row {
	return repository.Row{
		"id":            r.ID,
		"event_type":    r.EventType,
		"payload":       r.Payload,
		"status":        r.Status,
		"attempts":      r.Attempts,
		"error_message": r.ErrorMessage,
		"created_at":    r.CreatedAt,
		"processed_at":  r.ProcessedAt,
	}
}

func (r *OutboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, attempts, error_message, created_at, processed_at
		FROM outbox
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var records []outboxRecord
	if err := r.db.SelectContext(ctx, &records, query, string(model.OutboxStatusPending), limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}

	events := make([]*model.OutboxEvent, 0, len(records))
	for _, rec := range records {
		evt, err := repository.OutboxFromRow(rec.row())
		if err != nil {
			return nil, fmt.Errorf("failed to decode outbox row: %w", err)
		}
		events = append(events, evt)
	}
	return events, nil
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, evt *model.OutboxEvent) error {
	return r.store.Update(ctx, repository.TableOutbox, evt.ID.String(), repository.OutboxStatusRow(evt))
}

// DeleteProcessedBefore relies on processed_at being UTC RFC 3339 text,
// which sorts in time order at day granularity.
func (r *OutboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox
		WHERE status = $1
		AND processed_at <> ''
		AND processed_at < $2
	`
	result, err := r.db.ExecContext(ctx, query, string(model.OutboxStatusProcessed), before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
