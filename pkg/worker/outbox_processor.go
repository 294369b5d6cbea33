package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
	"github.com/jwalitptl/booking-assistant/pkg/repository"
)

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxAttempts failed polls mark an event failed for good.
	MaxAttempts int
}

// Handler delivers one event. It is retried, so it must tolerate running
// more than once for the same event.
type Handler interface {
	Handle(ctx context.Context, evt *model.OutboxEvent) error
}

type HandlerFunc func(ctx context.Context, evt *model.OutboxEvent) error

func (f HandlerFunc) Handle(ctx context.Context, evt *model.OutboxEvent) error {
	return f(ctx, evt)
}

type OutboxProcessor struct {
	repo    repository.OutboxRepository
	handler Handler
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	handler Handler,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.MaxAttempts <= 0 {
		panic("MaxAttempts must be greater than 0")
	}

	return &OutboxProcessor{
		repo:    repo,
		handler: handler,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Starting outbox processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.logger.Error(err, "Failed to process events")
			}
		}
	}
}

// ProcessBatch handles one batch of pending events and reports how many
// were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending events: %w", err)
	}

	delivered := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Failed to process event",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		delivered++
	}

	return delivered, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.handler.Handle(ctx, event)
	}, func() {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	})

	event.Attempts++
	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		event.ErrorMessage = err.Error()
		if event.Attempts >= p.config.MaxAttempts {
			event.Status = model.OutboxStatusFailed
		}
		if updateErr := p.repo.UpdateStatus(ctx, event); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	now := p.now()
	event.Status = model.OutboxStatusProcessed
	event.ErrorMessage = ""
	event.ProcessedAt = &now
	if err := p.repo.UpdateStatus(ctx, event); err != nil {
		p.logger.Error(err, "Failed to update event status", "event_id", event.ID.String())
		return err
	}

	return nil
}

// retry calls fn up to attempts times, waiting delay in between.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error, onRetry func()) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			onRetry()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return err
			}
		}
	}
	return err
}
