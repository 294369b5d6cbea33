// Package offer proposes slots to a client and commits the chosen one.
package offer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-assistant/internal/model"
	apperrors "github.com/jwalitptl/booking-assistant/pkg/errors"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
)

// HardCap bounds MaxOffers whatever the configuration says.
const HardCap = 10

const cancelPrefix = "cancel:"

const noAvailabilityText = "Sorry, there are no free times in the coming days. Please check back later or ask me about another date."

type Ledger interface {
	IsAvailable(ctx context.Context, key model.SlotKey) (bool, error)
	ListAvailable(ctx context.Context, providerID, date string) ([]model.Slot, error)
	CreateReservation(ctx context.Context, info model.ClientInfo, req model.NewReservation) (*model.Reservation, error)
	RescheduleReservation(ctx context.Context, id uuid.UUID, date string, start, end model.Clock) (*model.RescheduleResult, error)
	CancelReservation(ctx context.Context, id uuid.UUID) (*model.Reservation, error)
}

// Offer is a set of slots put in front of the client.
type Offer struct {
	Text    string
	Options []model.Option
}

// Empty reports whether there was nothing to offer.
func (o Offer) Empty() bool {
	return len(o.Options) == 0
}

func (o Offer) Action() *model.Action {
	if o.Empty() {
		return nil
	}
	return &model.Action{Type: model.ActionSelectSlot, Options: o.Options}
}

type ConfirmRequest struct {
	SelectedID  string
	Client      model.ClientInfo
	BookingType model.BookingType
	// RescheduleOf turns the commit into a reschedule of that reservation.
	RescheduleOf string
	// ReservationID is reused when the commit is retried; zero picks one.
	ReservationID uuid.UUID
	Notes         string
}

// Result is where a confirm attempt ended.
type Result struct {
	Stage       model.Stage
	Outcome     model.Outcome
	Reservation *model.Reservation
	Previous    *model.Reservation
	// Reoffer holds the remaining slots of the date after slot_taken.
	Reoffer *Offer
}

type Engine struct {
	ledger    Ledger
	maxOffers int
	logger    *logger.Logger
}

func NewEngine(ledger Ledger, maxOffers int, log *logger.Logger) *Engine {
	if maxOffers <= 0 || maxOffers > HardCap {
		maxOffers = HardCap
	}
	return &Engine{ledger: ledger, maxOffers: maxOffers, logger: log}
}

// Offer turns available slots into at most maxOffers options, earliest
// first.
func (e *Engine) Offer(slots []model.Slot, bt model.BookingType) Offer {
	avail := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			avail = append(avail, s)
		}
	}
	if len(avail) == 0 {
		return Offer{Text: noAvailabilityText}
	}
	sort.SliceStable(avail, func(i, j int) bool {
		if avail[i].Date != avail[j].Date {
			return avail[i].Date < avail[j].Date
		}
		return avail[i].Start < avail[j].Start
	})
	if len(avail) > e.maxOffers {
		avail = avail[:e.maxOffers]
	}
	options := make([]model.Option, len(avail))
	for i, s := range avail {
		options[i] = model.Option{ID: s.ID(), Label: Label(s.SlotKey)}
	}
	return Offer{Text: offerText(bt), Options: options}
}

// WithCancel appends the option that cancels reservation id.
func (o Offer) WithCancel(id uuid.UUID) Offer {
	o.Options = append(append([]model.Option(nil), o.Options...), model.Option{
		ID:    CancelOptionID(id),
		Label: "Cancel my booking",
	})
	return o
}

func CancelOptionID(id uuid.UUID) string {
	return cancelPrefix + id.String()
}

// ParseCancel extracts the reservation id of a cancel option.
func ParseCancel(optionID string) (uuid.UUID, bool) {
	if !strings.HasPrefix(optionID, cancelPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(optionID, cancelPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Label renders a slot as "16.10 at 10:00".
func Label(k model.SlotKey) string {
	day, err := model.ParseDate(k.Date)
	if err != nil {
		return fmt.Sprintf("%s at %s", k.Date, k.Start)
	}
	return fmt.Sprintf("%s at %s", day.Format("02.01"), k.Start)
}

func offerText(bt model.BookingType) string {
	switch bt {
	case model.BookingTypeWalkIn:
		return "Here is what is still free today for a quick session. Pick a time:"
	case model.BookingTypeConsultation:
		return "Here are the free times for a consultation. Pick one:"
	}
	return "Here are the nearest free times. Pick one:"
}

// Confirm revalidates the selected slot against the ledger and commits it.
// A slot that is gone ends in slot_taken with a fresh offer for its date;
// a store outage is retried once with the same reservation id and then
// reported as retry_later.
func (e *Engine) Confirm(ctx context.Context, req ConfirmRequest) (Result, error) {
	if id, ok := ParseCancel(req.SelectedID); ok {
		return e.cancel(ctx, id)
	}

	key, err := model.ParseSlotID(req.SelectedID)
	if err != nil {
		return Result{}, apperrors.Validation("unknown slot", err)
	}

	available, err := e.ledger.IsAvailable(ctx, key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrExternalService) {
			return retryLater(), nil
		}
		return Result{}, err
	}
	if !available {
		return e.slotTaken(ctx, key, req.BookingType), nil
	}

	if req.ReservationID == uuid.Nil {
		req.ReservationID = uuid.New()
	}
	for attempt := 0; ; attempt++ {
		res, err := e.commit(ctx, key, req)
		switch {
		case err == nil:
			return res, nil
		case apperrors.Is(err, apperrors.ErrSlotUnavailable):
			return e.slotTaken(ctx, key, req.BookingType), nil
		case apperrors.Is(err, apperrors.ErrExternalService) && attempt == 0:
			e.logger.ZL.Warn().Err(err).Str("slot_id", key.ID()).Msg("Commit failed, retrying once")
			continue
		case apperrors.Is(err, apperrors.ErrExternalService):
			e.logger.Error(err, "Commit failed after retry", "slot_id", key.ID())
			return retryLater(), nil
		}
		return Result{}, err
	}
}

func (e *Engine) commit(ctx context.Context, key model.SlotKey, req ConfirmRequest) (Result, error) {
	if req.RescheduleOf != "" {
		id, err := uuid.Parse(req.RescheduleOf)
		if err != nil {
			return Result{}, apperrors.Validation("invalid reservation id", err)
		}
		out, err := e.ledger.RescheduleReservation(ctx, id, key.Date, key.Start, key.End)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Stage:       model.StageCompleted,
			Outcome:     model.OutcomeRescheduled,
			Reservation: out.Current,
			Previous:    out.Previous,
		}, nil
	}

	res, err := e.ledger.CreateReservation(ctx, req.Client, model.NewReservation{
		ID:          req.ReservationID,
		ProviderID:  key.ProviderID,
		Date:        key.Date,
		Start:       key.Start,
		End:         key.End,
		BookingType: req.BookingType,
		Notes:       req.Notes,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Stage: model.StageCompleted, Outcome: model.OutcomeConfirmed, Reservation: res}, nil
}

func (e *Engine) cancel(ctx context.Context, id uuid.UUID) (Result, error) {
	res, err := e.ledger.CancelReservation(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrExternalService) {
			return retryLater(), nil
		}
		return Result{}, err
	}
	return Result{Stage: model.StageCompleted, Outcome: model.OutcomeCancelled, Reservation: res}, nil
}

func (e *Engine) slotTaken(ctx context.Context, key model.SlotKey, bt model.BookingType) Result {
	result := Result{Stage: model.StageError, Outcome: model.OutcomeSlotTaken}
	remaining, err := e.ledger.ListAvailable(ctx, key.ProviderID, key.Date)
	if err != nil {
		e.logger.ZL.Warn().Err(err).Str("slot_id", key.ID()).Msg("Could not list remaining slots")
		empty := Offer{Text: noAvailabilityText}
		result.Reoffer = &empty
		return result
	}
	others := remaining[:0]
	for _, s := range remaining {
		if s.Key() != key {
			others = append(others, s)
		}
	}
	reoffer := e.Offer(others, bt)
	result.Reoffer = &reoffer
	return result
}

func retryLater() Result {
	return Result{Stage: model.StageError, Outcome: model.OutcomeRetryLater}
}
