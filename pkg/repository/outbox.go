package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// OutboxRepository is the part of the store the outbox worker needs.
type OutboxRepository interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	// UpdateStatus persists Status, Attempts, ErrorMessage and ProcessedAt.
	UpdateStatus(ctx context.Context, evt *model.OutboxEvent) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}
