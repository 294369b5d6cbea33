// Package worker holds the background jobs: outbox delivery and the
// periodic calendar resync.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-assistant/internal/email"
	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/service/calendar"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/messaging"
)

type Ledger interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
	SetExternalEvent(ctx context.Context, id uuid.UUID, eventID string) error
}

// Dispatcher delivers outbox events: it mirrors reservations into the
// provider calendars, publishes every event to the broker and mails alerts.
// Publisher and mailer are optional.
type Dispatcher struct {
	ledger     Ledger
	calendar   calendar.Client
	providers  *model.Directory
	publisher  messaging.Publisher
	mailer     email.Service
	adminEmail string
	loc        *time.Location
	logger     *logger.Logger
}

type Option func(*Dispatcher)

func WithPublisher(p messaging.Publisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithMailer sends alerts to providers and to adminEmail.
func WithMailer(m email.Service, adminEmail string) Option {
	return func(d *Dispatcher) {
		d.mailer = m
		d.adminEmail = adminEmail
	}
}

func NewDispatcher(ledger Ledger, cal calendar.Client, providers *model.Directory, loc *time.Location, log *logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ledger:    ledger,
		calendar:  cal,
		providers: providers,
		loc:       loc,
		logger:    log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Handle(ctx context.Context, evt *model.OutboxEvent) error {
	var (
		subject, body string
		recipients    []string
	)
	switch evt.EventType {
	case model.EventReservationConfirmed, model.EventReservationCancelled,
		model.EventReservationRescheduled, model.EventReservationCompleted:
		var payload model.ReservationEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", evt.EventType, err)
		}
		if payload.Reservation == nil {
			return fmt.Errorf("%s event %s has no reservation", evt.EventType, evt.ID)
		}
		if err := d.syncCalendar(ctx, evt.EventType, payload); err != nil {
			return err
		}
		subject, body = email.ReservationAlert(evt.EventType, payload)
		if p, ok := d.providers.Get(payload.Reservation.ProviderID); ok {
			recipients = append(recipients, p.Email)
		}
		recipients = append(recipients, d.adminEmail)
	case model.EventReviewRequested:
		var payload model.ReviewEvent
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", evt.EventType, err)
		}
		subject, body = email.ReviewAlert(payload)
		recipients = append(recipients, d.adminEmail)
	default:
		d.logger.Warn("Dropping unknown outbox event", "event_type", evt.EventType, "event_id", evt.ID.String())
		return nil
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, evt.EventType, evt.Payload); err != nil {
			return fmt.Errorf("failed to publish %s: %w", evt.EventType, err)
		}
	}
	if d.mailer != nil {
		d.mail(ctx, unique(recipients), subject, body)
	}
	return nil
}

// mail is best effort: a lost alert must not replay the calendar work.
func (d *Dispatcher) mail(ctx context.Context, to []string, subject, body string) {
	for _, addr := range to {
		if err := d.mailer.SendCustom(ctx, addr, subject, body); err != nil {
			d.logger.Error(err, "Failed to send alert", "to", addr, "subject", subject)
		}
	}
}

func (d *Dispatcher) syncCalendar(ctx context.Context, eventType string, payload model.ReservationEvent) error {
	res := payload.Reservation
	switch eventType {
	case model.EventReservationConfirmed:
		return d.push(ctx, res, payload)
	case model.EventReservationCancelled:
		return d.remove(ctx, res)
	case model.EventReservationRescheduled:
		if payload.Previous != nil {
			if err := d.remove(ctx, payload.Previous); err != nil {
				return err
			}
		}
		return d.push(ctx, res, payload)
	}
	return nil
}

// push creates the calendar event once. A reservation that already has an
// event, or is no longer active, is left alone.
func (d *Dispatcher) push(ctx context.Context, res *model.Reservation, payload model.ReservationEvent) error {
	ref := d.calendarRef(res.ProviderID)
	if ref == "" {
		return nil
	}
	current, err := d.ledger.Get(ctx, res.ID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.ExternalEventID != "" || !current.Status.Active() {
		return nil
	}

	start, err := res.Start.On(res.Date, d.loc)
	if err != nil {
		return fmt.Errorf("bad reservation date %q: %w", res.Date, err)
	}
	end, err := res.End.On(res.Date, d.loc)
	if err != nil {
		return fmt.Errorf("bad reservation date %q: %w", res.Date, err)
	}

	eventID, err := d.calendar.PushReservation(ctx, ref, start, end, label(res, payload.Client))
	if err != nil {
		return err
	}
	if err := d.ledger.SetExternalEvent(ctx, res.ID, eventID); err != nil {
		return err
	}
	d.logger.Info("Reservation added to calendar", "reservation_id", res.ID.String(), "event_id", eventID)
	return nil
}

func (d *Dispatcher) remove(ctx context.Context, res *model.Reservation) error {
	ref := d.calendarRef(res.ProviderID)
	if ref == "" {
		return nil
	}
	eventID := res.ExternalEventID
	if current, err := d.ledger.Get(ctx, res.ID); err == nil && current.ExternalEventID != "" {
		eventID = current.ExternalEventID
	} else if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	if eventID == "" {
		return nil
	}

	err := d.calendar.RemoveReservation(ctx, ref, eventID)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return err
	}
	d.logger.Info("Reservation removed from calendar", "reservation_id", res.ID.String(), "event_id", eventID)
	return nil
}

func (d *Dispatcher) calendarRef(providerID string) string {
	p, ok := d.providers.Get(providerID)
	if !ok {
		return ""
	}
	return p.CalendarRef
}

func label(res *model.Reservation, client *model.Client) string {
	who := "client"
	if client != nil {
		who = client.ExternalIdentity
		if client.Name != "" {
			who = client.Name
		}
	}
	return fmt.Sprintf("%s (%s)", who, res.BookingType)
}

func unique(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := addrs[:0]
	for _, a := range addrs {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
