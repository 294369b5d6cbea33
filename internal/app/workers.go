package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwalitptl/booking-assistant/internal/email"
	"github.com/jwalitptl/booking-assistant/internal/worker"
	"github.com/jwalitptl/booking-assistant/pkg/messaging"
	"github.com/jwalitptl/booking-assistant/pkg/messaging/redis"
	pkgworker "github.com/jwalitptl/booking-assistant/pkg/worker"
)

// Dispatcher builds the outbox handler. The broker is used when a redis url
// is configured and mail when an SMTP host is.
func (a *App) Dispatcher(ctx context.Context) (*worker.Dispatcher, error) {
	log := a.Logger.With("component", "dispatcher")
	var opts []worker.Option

	if a.Config.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(ctx, a.Config.Redis.ToBrokerConfig(), a.Logger.With("component", "broker"))
		if err != nil {
			return nil, fmt.Errorf("failed to create redis broker: %w", err)
		}
		publisher := messaging.NewBrokerPublisher(broker, a.Config.Redis.Channel)
		a.OnClose(publisher.Close)
		opts = append(opts, worker.WithPublisher(publisher))
	} else {
		log.Warn("No redis url configured, events are not published")
	}

	if smtp := a.Config.SMTP; smtp.Host != "" {
		mailer := email.NewSMTPService(email.Config{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
		})
		opts = append(opts, worker.WithMailer(mailer, smtp.AdminEmail))
	}

	return worker.NewDispatcher(a.Ledger, a.Calendar, a.Providers, a.Location, log, opts...), nil
}

// StartWorkers runs outbox delivery, outbox cleanup and the scheduled
// calendar resync until ctx is done. The returned wait blocks until they
// have stopped.
func (a *App) StartWorkers(ctx context.Context) (wait func(), err error) {
	dispatcher, err := a.Dispatcher(ctx)
	if err != nil {
		return nil, err
	}
	processor := pkgworker.NewOutboxProcessor(
		a.Outbox,
		dispatcher,
		a.Config.Outbox.ToWorkerConfig(),
		a.Logger.With("component", "outbox"),
		a.Metrics,
	)
	cleanup := pkgworker.NewOutboxCleanupWorker(
		a.Outbox,
		a.Config.Outbox.RetentionDays,
		a.Config.Outbox.CleanupInterval,
		a.Logger.With("component", "outbox_cleanup"),
	)

	resync := worker.NewResync(a.Resolver, a.Config.Sync.Days, a.Location, a.Logger.With("component", "resync"))
	scheduler, err := resync.Schedule(ctx, a.Config.Sync.Schedule)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		processor.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		if _, err := resync.Run(ctx); err != nil {
			a.Logger.Error(err, "Initial resync failed")
		}
		scheduler.Start()
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()

	return wg.Wait, nil
}
