// Package ledger is the authoritative record of reservations.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

const (
	pathGuarded    = "guarded"
	pathOptimistic = "optimistic"
)

type Service struct {
	store     repository.Store
	guarded   repository.GuardedWriter
	providers *model.Directory
	validate  *validator.Validate
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService uses the store's GuardedWriter when it has one and falls back
// to optimistic write-then-reread otherwise.
func NewService(store repository.Store, providers *model.Directory, log *logger.Logger, m *metrics.Metrics) *Service {
	s := &Service{
		store:     store,
		providers: providers,
		validate:  validator.New(),
		logger:    log,
		metrics:   m,
		now:       time.Now,
	}
	if g, ok := store.(repository.GuardedWriter); ok {
		s.guarded = g
	}
	return s
}

// ListAvailable returns the cached available slots of a provider's date
// that no active reservation overlaps, ordered by start.
func (s *Service) ListAvailable(ctx context.Context, providerID, date string) ([]model.Slot, error) {
	rows, err := s.store.Read(ctx, repository.TableSlots, repository.Filter{
		repository.ColProviderID: providerID,
		repository.ColDate:       date,
		"available":              "true",
	})
	if err != nil {
		return nil, apperrors.ExternalService("slot store", err)
	}
	active, err := repository.ActiveReservations(ctx, s.store, providerID, date)
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}

	slots := make([]model.Slot, 0, len(rows))
	for _, row := range rows {
		slot, err := repository.SlotFromRow(row)
		if err != nil {
			s.logger.Error(err, "Skipping malformed slot row", "slot_id", row[repository.KeyColumn])
			continue
		}
		if len(repository.Overlapping(active, slot.Interval())) > 0 {
			continue
		}
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots, nil
}

// IsAvailable checks the ledger itself, never the slot cache.
func (s *Service) IsAvailable(ctx context.Context, key model.SlotKey) (bool, error) {
	if _, ok := s.providers.Get(key.ProviderID); !ok {
		return false, apperrors.NotFound("provider", nil)
	}
	rivals, err := s.rivals(ctx, key, "", "")
	if err != nil {
		return false, err
	}
	return len(rivals) == 0, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	res, err := repository.ReservationByID(ctx, s.store, id.String())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("reservation", err)
	}
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	return res, nil
}

// List returns reservations of any status. Empty arguments widen the query.
func (s *Service) List(ctx context.Context, providerID, date string) ([]*model.Reservation, error) {
	out, err := repository.Reservations(ctx, s.store, providerID, date)
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	return out, nil
}

// ActiveForClient returns the active reservations of the client known by
// identity. An unknown client has none.
func (s *Service) ActiveForClient(ctx context.Context, identity string) ([]*model.Reservation, error) {
	client, err := repository.ClientByIdentity(ctx, s.store, identity)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ExternalService("client store", err)
	}
	all, err := repository.ReservationsWhere(ctx, s.store, repository.Filter{"client_id": client.ID.String()})
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	var active []*model.Reservation
	for _, r := range all {
		if r.Status.Active() {
			active = append(active, r)
		}
	}
	return active, nil
}

// CreateReservation claims the slot for the client. A preset req.ID makes a
// retried call return the reservation the first attempt stored.
func (s *Service) CreateReservation(ctx context.Context, info model.ClientInfo, req model.NewReservation) (*model.Reservation, error) {
	if err := s.validate.Struct(info); err != nil {
		return nil, apperrors.Validation("invalid client", err)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Validation("invalid reservation", err)
	}
	provider, err := s.activeProvider(req.ProviderID)
	if err != nil {
		return nil, err
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return nil, apperrors.Validation("invalid date", err)
	}
	if req.BookingType == "" || !req.BookingType.Valid() {
		req.BookingType = model.BookingTypeStandard
	}

	if req.ID != uuid.Nil {
		if res, done, err := s.resume(ctx, req); done {
			return res, err
		}
	} else {
		req.ID = uuid.New()
	}

	client, err := s.upsertClient(ctx, info)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := &model.Reservation{
		ID:          req.ID,
		ClientID:    client.ID,
		ProviderID:  req.ProviderID,
		Date:        req.Date,
		Start:       req.Start,
		End:         req.End,
		BookingType: req.BookingType,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if s.guarded != nil {
		err = s.createGuarded(ctx, res)
	} else {
		err = s.createOptimistic(ctx, res)
	}
	if err != nil {
		return nil, err
	}

	s.markSlot(ctx, res.Key(), false)
	s.emit(ctx, model.EventReservationConfirmed, model.ReservationEvent{
		Reservation: res,
		Client:      client,
		Provider:    provider.Name,
	})
	s.metrics.ReservationsCreated.Inc()
	s.logger.Info("Reservation confirmed",
		"reservation_id", res.ID.String(),
		"provider_id", res.ProviderID,
		"slot", res.Key().ID(),
	)
	return res, nil
}

// resume handles a create whose id already exists. done is false when the
// id is new.
func (s *Service) resume(ctx context.Context, req model.NewReservation) (*model.Reservation, bool, error) {
	existing, err := repository.ReservationByID(ctx, s.store, req.ID.String())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, apperrors.ExternalService("reservation store", err)
	}
	if existing.Key() != req.Key() {
		return nil, true, apperrors.Validation("reservation id already used for another slot", nil)
	}
	switch existing.Status {
	case model.ReservationStatusConfirmed:
		return existing, true, nil
	case model.ReservationStatusPending:
		if err := s.settle(ctx, existing, ""); err != nil {
			return nil, true, err
		}
		s.markSlot(ctx, existing.Key(), false)
		return existing, true, nil
	}
	return nil, true, apperrors.SlotUnavailable("slot is no longer available")
}

func (s *Service) createGuarded(ctx context.Context, res *model.Reservation) error {
	res.Status = model.ReservationStatusConfirmed
	err := s.guarded.WriteGuarded(ctx, repository.GuardedWrite{
		Table:  repository.TableReservations,
		Guard:  guardFor(res.Key(), ""),
		Insert: repository.ReservationRow(res),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		s.metrics.ReservationConflicts.WithLabelValues(pathGuarded).Inc()
		return apperrors.SlotUnavailable("slot is no longer available")
	}
	return apperrors.ExternalService("reservation store", err)
}

func (s *Service) createOptimistic(ctx context.Context, res *model.Reservation) error {
	rivals, err := s.rivals(ctx, res.Key(), res.ID.String(), "")
	if err != nil {
		return err
	}
	if len(rivals) > 0 {
		s.metrics.ReservationConflicts.WithLabelValues(pathOptimistic).Inc()
		return apperrors.SlotUnavailable("slot is no longer available")
	}
	res.Status = model.ReservationStatusPending
	if err := s.store.Append(ctx, repository.TableReservations, repository.ReservationRow(res)); err != nil {
		return apperrors.ExternalService("reservation store", err)
	}
	return s.settle(ctx, res, "")
}

// settle decides a pending reservation against every overlapping active
// rival. While pending it loses to a confirmed rival or one that precedes
// it; once confirmed it rereads a single time and yields to any active
// rival that precedes it. A loser is cancelled.
func (s *Service) settle(ctx context.Context, res *model.Reservation, except string) error {
	rivals, err := s.rivals(ctx, res.Key(), res.ID.String(), except)
	if err != nil {
		return err
	}
	for _, r := range rivals {
		if r.Status == model.ReservationStatusConfirmed || r.Precedes(res) {
			return s.yield(ctx, res)
		}
	}

	res.Status = model.ReservationStatusConfirmed
	res.UpdatedAt = s.now()
	if err := s.store.Update(ctx, repository.TableReservations, res.ID.String(), statusRow(res)); err != nil {
		return apperrors.ExternalService("reservation store", err)
	}

	rivals, err = s.rivals(ctx, res.Key(), res.ID.String(), except)
	if err != nil {
		return err
	}
	for _, r := range rivals {
		if r.Precedes(res) {
			return s.yield(ctx, res)
		}
	}
	return nil
}

func (s *Service) yield(ctx context.Context, res *model.Reservation) error {
	s.metrics.ReservationConflicts.WithLabelValues(pathOptimistic).Inc()
	res.Status = model.ReservationStatusCancelled
	res.UpdatedAt = s.now()
	if err := s.store.Update(ctx, repository.TableReservations, res.ID.String(), statusRow(res)); err != nil {
		s.logger.Error(err, "Failed to withdraw losing reservation", "reservation_id", res.ID.String())
	}
	return apperrors.SlotUnavailable("slot is no longer available")
}

// CancelReservation is idempotent for cancelled reservations. Completed
// reservations cannot be cancelled.
func (s *Service) CancelReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.ReservationStatusCancelled:
		return res, nil
	case model.ReservationStatusCompleted:
		return nil, apperrors.Validation("completed reservations cannot be cancelled", nil)
	}

	res.Status = model.ReservationStatusCancelled
	res.UpdatedAt = s.now()
	if err := s.store.Update(ctx, repository.TableReservations, res.ID.String(), statusRow(res)); err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	s.markSlot(ctx, res.Key(), true)
	s.emit(ctx, model.EventReservationCancelled, model.ReservationEvent{
		Reservation: res,
		Client:      s.client(ctx, res.ClientID),
		Provider:    s.providerName(res.ProviderID),
	})
	s.metrics.ReservationChanges.WithLabelValues(string(model.ReservationStatusCancelled)).Inc()
	s.logger.Info("Reservation cancelled", "reservation_id", res.ID.String())
	return res, nil
}

// CompleteReservation marks a confirmed reservation as served.
func (s *Service) CompleteReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error) {
	res, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case model.ReservationStatusCompleted:
		return res, nil
	case model.ReservationStatusConfirmed:
	default:
		return nil, apperrors.Validation(fmt.Sprintf("%s reservations cannot be completed", res.Status), nil)
	}

	res.Status = model.ReservationStatusCompleted
	res.UpdatedAt = s.now()
	if err := s.store.Update(ctx, repository.TableReservations, res.ID.String(), statusRow(res)); err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	s.emit(ctx, model.EventReservationCompleted, model.ReservationEvent{
		Reservation: res,
		Provider:    s.providerName(res.ProviderID),
	})
	s.metrics.ReservationChanges.WithLabelValues(string(model.ReservationStatusCompleted)).Inc()
	return res, nil
}

// RescheduleReservation moves an active reservation to another slot of the
// same provider. The original stays active unless the new one is stored.
func (s *Service) RescheduleReservation(ctx context.Context, id uuid.UUID, date string, start, end model.Clock) (*model.RescheduleResult, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !old.Status.Active() {
		return nil, apperrors.Validation(fmt.Sprintf("%s reservations cannot be rescheduled", old.Status), nil)
	}
	if _, err := model.ParseDate(date); err != nil {
		return nil, apperrors.Validation("invalid date", err)
	}
	if end <= start {
		return nil, apperrors.Validation("end must be after start", nil)
	}
	provider, err := s.activeProvider(old.ProviderID)
	if err != nil {
		return nil, err
	}

	key := model.SlotKey{ProviderID: old.ProviderID, Date: date, Start: start, End: end}
	if key == old.Key() {
		return &model.RescheduleResult{Previous: old, Current: old}, nil
	}

	now := s.now()
	next := &model.Reservation{
		ID:          uuid.New(),
		ClientID:    old.ClientID,
		ProviderID:  old.ProviderID,
		Date:        date,
		Start:       start,
		End:         end,
		BookingType: old.BookingType,
		Notes:       old.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	previous := *old
	previous.Status = model.ReservationStatusCancelled
	previous.UpdatedAt = now

	if s.guarded != nil {
		err = s.rescheduleGuarded(ctx, &previous, next)
	} else {
		err = s.rescheduleOptimistic(ctx, &previous, next)
	}
	if err != nil {
		return nil, err
	}

	s.markSlot(ctx, previous.Key(), true)
	s.markSlot(ctx, next.Key(), false)
	s.emit(ctx, model.EventReservationRescheduled, model.ReservationEvent{
		Reservation: next,
		Previous:    &previous,
		Client:      s.client(ctx, next.ClientID),
		Provider:    provider.Name,
	})
	s.metrics.ReservationChanges.WithLabelValues("rescheduled").Inc()
	s.logger.Info("Reservation rescheduled",
		"reservation_id", next.ID.String(),
		"previous_id", previous.ID.String(),
		"slot", next.Key().ID(),
	)
	return &model.RescheduleResult{Previous: &previous, Current: next}, nil
}

func (s *Service) rescheduleGuarded(ctx context.Context, previous, next *model.Reservation) error {
	next.Status = model.ReservationStatusConfirmed
	err := s.guarded.WriteGuarded(ctx, repository.GuardedWrite{
		Table:     repository.TableReservations,
		Guard:     guardFor(next.Key(), previous.ID.String()),
		Insert:    repository.ReservationRow(next),
		UpdateKey: previous.ID.String(),
		Update:    statusRow(previous),
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrConflict):
		s.metrics.ReservationConflicts.WithLabelValues(pathGuarded).Inc()
		return apperrors.SlotUnavailable("slot is no longer available")
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("reservation", err)
	}
	return apperrors.ExternalService("reservation store", err)
}

func (s *Service) rescheduleOptimistic(ctx context.Context, previous, next *model.Reservation) error {
	except := previous.ID.String()
	rivals, err := s.rivals(ctx, next.Key(), next.ID.String(), except)
	if err != nil {
		return err
	}
	if len(rivals) > 0 {
		s.metrics.ReservationConflicts.WithLabelValues(pathOptimistic).Inc()
		return apperrors.SlotUnavailable("slot is no longer available")
	}
	next.Status = model.ReservationStatusPending
	if err := s.store.Append(ctx, repository.TableReservations, repository.ReservationRow(next)); err != nil {
		return apperrors.ExternalService("reservation store", err)
	}
	if err := s.settle(ctx, next, except); err != nil {
		return err
	}
	if err := s.store.Update(ctx, repository.TableReservations, except, statusRow(previous)); err != nil {
		next.Status = model.ReservationStatusCancelled
		next.UpdatedAt = s.now()
		if rbErr := s.store.Update(ctx, repository.TableReservations, next.ID.String(), statusRow(next)); rbErr != nil {
			s.logger.Error(rbErr, "Failed to roll back rescheduled reservation", "reservation_id", next.ID.String())
		}
		return apperrors.ExternalService("reservation store", err)
	}
	return nil
}

// SetExternalEvent records the calendar event created for a reservation.
func (s *Service) SetExternalEvent(ctx context.Context, id uuid.UUID, eventID string) error {
	err := s.store.Update(ctx, repository.TableReservations, id.String(), repository.Row{
		"external_event_id": eventID,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("reservation", err)
	}
	if err != nil {
		return apperrors.ExternalService("reservation store", err)
	}
	return nil
}

// RequestReview records a conversation turn that needs a human.
func (s *Service) RequestReview(ctx context.Context, evt model.ReviewEvent) {
	s.emit(ctx, model.EventReviewRequested, evt)
}

// rivals returns active reservations overlapping key other than self and
// except.
func (s *Service) rivals(ctx context.Context, key model.SlotKey, self, except string) ([]*model.Reservation, error) {
	active, err := repository.ActiveReservations(ctx, s.store, key.ProviderID, key.Date)
	if err != nil {
		return nil, apperrors.ExternalService("reservation store", err)
	}
	var out []*model.Reservation
	for _, r := range repository.Overlapping(active, key.Interval()) {
		id := r.ID.String()
		if id == self || id == except {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) upsertClient(ctx context.Context, info model.ClientInfo) (*model.Client, error) {
	client, err := repository.ClientByIdentity(ctx, s.store, info.ExternalIdentity)
	switch {
	case err == nil:
		changed := repository.Row{}
		if info.Name != "" && info.Name != client.Name {
			client.Name = info.Name
			changed["name"] = info.Name
		}
		if info.Phone != "" && info.Phone != client.Phone {
			client.Phone = info.Phone
			changed["phone"] = info.Phone
		}
		if len(changed) > 0 {
			if err := s.store.Update(ctx, repository.TableClients, client.ID.String(), changed); err != nil {
				return nil, apperrors.ExternalService("client store", err)
			}
		}
		return client, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.ExternalService("client store", err)
	}

	client = &model.Client{
		ID:               uuid.New(),
		ExternalIdentity: info.ExternalIdentity,
		Name:             info.Name,
		Phone:            info.Phone,
		CreatedAt:        s.now(),
	}
	err = s.store.Append(ctx, repository.TableClients, repository.ClientRow(client))
	if errors.Is(err, repository.ErrDuplicate) {
		// a concurrent first booking inserted the same identity
		client, err = repository.ClientByIdentity(ctx, s.store, info.ExternalIdentity)
	}
	if err != nil {
		return nil, apperrors.ExternalService("client store", err)
	}
	return client, nil
}

func (s *Service) client(ctx context.Context, id uuid.UUID) *model.Client {
	c, err := repository.ClientByID(ctx, s.store, id.String())
	if err != nil {
		return nil
	}
	return c
}

func (s *Service) activeProvider(id string) (model.Provider, error) {
	p, ok := s.providers.Get(id)
	if !ok {
		return model.Provider{}, apperrors.NotFound("provider", nil)
	}
	if !p.Active {
		return model.Provider{}, apperrors.Validation(fmt.Sprintf("provider %s is inactive", id), nil)
	}
	return p, nil
}

func (s *Service) providerName(id string) string {
	if p, ok := s.providers.Get(id); ok {
		return p.Name
	}
	return id
}

// markSlot keeps the slot cache flag in line with the ledger. The cache is
// revalidated before every commit, so failures are only logged.
func (s *Service) markSlot(ctx context.Context, key model.SlotKey, available bool) {
	err := s.store.Update(ctx, repository.TableSlots, key.ID(), repository.Row{
		"available": strconv.FormatBool(available),
	})
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("Failed to update slot cache", "slot_id", key.ID(), "error", err.Error())
	}
}

func (s *Service) emit(ctx context.Context, eventType string, payload interface{}) {
	evt, err := repository.NewOutboxEvent(eventType, payload, s.now())
	if err == nil {
		err = s.store.Append(ctx, repository.TableOutbox, repository.OutboxRow(evt))
	}
	if err != nil {
		s.logger.Error(err, "Failed to record outbox event", "event_type", eventType)
	}
}

func guardFor(key model.SlotKey, except string) repository.Guard {
	statuses := make([]string, len(model.ActiveStatuses))
	for i, st := range model.ActiveStatuses {
		statuses[i] = string(st)
	}
	return repository.Guard{
		Match: repository.Filter{
			repository.ColProviderID: key.ProviderID,
			repository.ColDate:       key.Date,
		},
		Statuses: statuses,
		Start:    key.Start.String(),
		End:      key.End.String(),
		ExceptID: except,
	}
}

func statusRow(res *model.Reservation) repository.Row {
	return repository.Row{
		repository.ColStatus: string(res.Status),
		"updated_at":         res.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
