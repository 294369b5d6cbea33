// Package conversation drives one client turn from inbound text to reply.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/booking-assistant/internal/model"
	"github.com/jwalitptl/booking-assistant/internal/repository"
	"github.com/jwalitptl/booking-assistant/internal/service/classifier"
	"github.com/jwalitptl/booking-assistant/internal/service/consultant"
	"github.com/jwalitptl/booking-assistant/internal/service/notifier"
	"github.com/jwalitptl/booking-assistant/internal/service/offer"
	"github.com/jwalitptl/booking-assistant/pkg/logger"
	"github.com/jwalitptl/booking-assistant/pkg/metrics"
)

const (
	greetingText = "Hi! I can book you in, move an existing booking, or answer questions about pain, aftercare and prices. What would you like?"
	apologyText  = "Sorry, something went wrong on my side. Let's start over: what would you like to do?"
	unclearText  = "I'm not sure I understood. You can ask me to book a time, or ask about pain, aftercare or prices."
	repickText   = "I couldn't match that to one of the offered times. Please pick one of these:"
	noProvider   = "Booking is not available at the moment. Please try again later."
)

type Ledger interface {
	offer.Ledger
	ActiveForClient(ctx context.Context, identity string) ([]*model.Reservation, error)
	RequestReview(ctx context.Context, evt model.ReviewEvent)
}

type Availability interface {
	Refresh(ctx context.Context, providerID, from, to string) ([]model.Slot, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, c classifier.Context) model.Intent
}

type Config struct {
	// HorizonDays is how many days ahead, today included, are offered.
	HorizonDays int
	Location    *time.Location
	// DefaultProvider is offered for new bookings; empty means the first
	// active provider.
	DefaultProvider string
}

type Orchestrator struct {
	states       repository.StateStore
	classifier   Classifier
	ledger       Ledger
	availability Availability
	engine       *offer.Engine
	providers    *model.Directory
	cfg          Config
	lanes        *lanes
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewOrchestrator(
	states repository.StateStore,
	cls Classifier,
	ledger Ledger,
	availability Availability,
	engine *offer.Engine,
	providers *model.Directory,
	cfg Config,
	log *logger.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = 7
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		states:       states,
		classifier:   cls,
		ledger:       ledger,
		availability: availability,
		engine:       engine,
		providers:    providers,
		cfg:          cfg,
		lanes:        newLanes(),
		logger:       log,
		metrics:      m,
		now:          time.Now,
	}
}

// Handle processes one inbound message. Turns of the same client run in
// arrival order. It always produces a reply: failures are answered with an
// apology and the client's workflow is reset.
func (o *Orchestrator) Handle(ctx context.Context, in model.Inbound) (out model.Outbound) {
	release, err := o.lanes.acquire(ctx, in.ClientID)
	if err != nil {
		return model.Outbound{Text: apologyText}
	}
	defer release()

	timer := prometheus.NewTimer(o.metrics.TurnLatency)
	defer timer.ObserveDuration()

	log := o.logger.With("client_id", in.ClientID)
	defer func() {
		if r := recover(); r != nil {
			log.Error(fmt.Errorf("panic: %v", r), "Conversation turn panicked")
			out = o.fail(ctx, in.ClientID)
		}
	}()

	text := strings.TrimSpace(in.Text)
	switch strings.ToLower(text) {
	case "/start", "/reset":
		if err := o.states.Clear(ctx, in.ClientID); err != nil {
			log.Error(err, "Failed to clear conversation state")
		}
		return model.Outbound{Text: greetingText}
	}

	state, err := o.states.Load(ctx, in.ClientID)
	if err != nil {
		log.Error(err, "Failed to load conversation state, starting fresh")
		state = model.NewConversationState(in.ClientID)
	}
	state.Remember("client", text, o.now())

	out, err = o.turn(ctx, state, in, text)
	if err != nil {
		log.Error(err, "Conversation turn failed")
		return o.fail(ctx, in.ClientID)
	}

	if state.Stage.Terminal() {
		state.Reset()
	}
	state.Remember("assistant", out.Text, o.now())
	state.UpdatedAt = o.now()
	if err := o.states.Save(ctx, state); err != nil {
		log.Error(err, "Failed to save conversation state")
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, clientID string) model.Outbound {
	o.metrics.TurnFailures.Inc()
	if err := o.states.Clear(ctx, clientID); err != nil {
		o.logger.Error(err, "Failed to clear conversation state", "client_id", clientID)
	}
	return model.Outbound{Text: apologyText}
}

func (o *Orchestrator) turn(ctx context.Context, state *model.ConversationState, in model.Inbound, text string) (model.Outbound, error) {
	// active reservations are looked up only when a rule needs them
	var active []*model.Reservation
	loaded := false
	lookup := func() []*model.Reservation {
		if loaded {
			return active
		}
		loaded = true
		var err error
		active, err = o.ledger.ActiveForClient(ctx, in.ClientID)
		if err != nil {
			o.logger.ZL.Warn().Err(err).Str("client_id", in.ClientID).Msg("Could not load active reservations")
			active = nil
		}
		return active
	}

	cc := classifier.Context{
		ClientStatus: "new",
		LastRoute:    state.Route,
		LastStage:    state.Stage,
		SelectedID:   in.SelectedID,
		ActiveBooking: func() (model.BookingType, bool) {
			if a := lookup(); len(a) > 0 {
				return a[0].BookingType, true
			}
			return model.BookingTypeNone, false
		},
	}
	if len(state.History) > 1 {
		cc.ClientStatus = "returning"
	}
	intent := o.classifier.Classify(ctx, text, cc)
	o.logger.Debug("Classified message",
		"client_id", in.ClientID,
		"route", string(intent.Route),
		"confidence", intent.Confidence,
	)

	switch intent.Route {
	case model.RouteBooking:
		return o.offerSlots(ctx, state, intent.BookingType, nil)
	case model.RouteBookingReschedule:
		if a := lookup(); len(a) > 0 {
			return o.offerSlots(ctx, state, intent.BookingType, a[0])
		}
		return o.offerSlots(ctx, state, intent.BookingType, nil)
	case model.RouteBookingConfirm:
		selected := in.SelectedID
		if selected == "" {
			if state.Stage != model.StageWaitingClientChoice {
				return model.Outbound{Text: unclearText}, nil
			}
			opt, ok := offer.MatchOffered(text, state.Offered)
			if !ok {
				return repick(state), nil
			}
			selected = opt.ID
		}
		return o.confirm(ctx, state, in, selected)
	case model.RouteConsultation, model.RouteInfo:
		if state.Stage == model.StageNone {
			state.Route = intent.Route
		}
		return model.Outbound{Text: consultant.Reply(text, intent.Route)}, nil
	case model.RouteOther:
		if intent.RequiresHumanReview {
			o.ledger.RequestReview(ctx, model.ReviewEvent{
				ClientID: in.ClientID,
				Text:     text,
				Summary:  intent.Summary,
			})
		}
		return model.Outbound{Text: unclearText}, nil
	}
	return model.Outbound{}, fmt.Errorf("unhandled route %q", intent.Route)
}

// offerSlots starts a booking flow. moving is the reservation being
// rescheduled, if any.
func (o *Orchestrator) offerSlots(ctx context.Context, state *model.ConversationState, bt model.BookingType, moving *model.Reservation) (model.Outbound, error) {
	state.Reset()
	if err := state.Advance(model.StageOfferSlots); err != nil {
		return model.Outbound{}, err
	}

	route := model.RouteBooking
	providerID := o.cfg.DefaultProvider
	if moving != nil {
		route = model.RouteBookingReschedule
		providerID = moving.ProviderID
		state.RescheduleOf = moving.ID.String()
	}
	if providerID == "" {
		if active := o.providers.Active(); len(active) > 0 {
			providerID = active[0].ID
		}
	}
	if _, ok := o.providers.Get(providerID); !ok {
		state.Reset()
		return model.Outbound{Text: noProvider}, nil
	}
	if !bt.Valid() || bt == model.BookingTypeNone {
		bt = model.BookingTypeStandard
	}
	state.Route = route
	state.ProviderID = providerID
	state.BookingType = bt

	dates := o.horizon(bt)
	slots, err := o.collect(ctx, providerID, dates)
	if err != nil {
		return model.Outbound{}, err
	}

	proposal := o.engine.Offer(slots, bt)
	if moving != nil {
		proposal = proposal.WithCancel(moving.ID)
	}
	return o.present(state, proposal)
}

// present moves the state to waiting_client_choice when there is anything
// to choose from.
func (o *Orchestrator) present(state *model.ConversationState, proposal offer.Offer) (model.Outbound, error) {
	if proposal.Empty() {
		state.Reset()
		return model.Outbound{Text: proposal.Text}, nil
	}
	if err := state.Advance(model.StageWaitingClientChoice); err != nil {
		return model.Outbound{}, err
	}
	state.Offered = proposal.Options
	text := proposal.Text
	if text == "" {
		text = "Pick one:"
	}
	return model.Outbound{Text: text, Action: proposal.Action()}, nil
}

func (o *Orchestrator) confirm(ctx context.Context, state *model.ConversationState, in model.Inbound, selected string) (model.Outbound, error) {
	if _, isCancel := offer.ParseCancel(selected); !isCancel {
		if _, err := model.ParseSlotID(selected); err != nil {
			if state.Stage == model.StageWaitingClientChoice {
				return repick(state), nil
			}
			return model.Outbound{Text: unclearText}, nil
		}
	}

	providerID := state.ProviderID
	bt := state.BookingType
	rescheduleOf := state.RescheduleOf
	if !bt.Valid() || bt == model.BookingTypeNone {
		bt = model.BookingTypeStandard
	}

	if err := state.Advance(model.StageConfirmingChoice); err != nil {
		return model.Outbound{}, err
	}
	state.SelectedSlot = selected

	result, err := o.engine.Confirm(ctx, offer.ConfirmRequest{
		SelectedID: selected,
		Client: model.ClientInfo{
			ExternalIdentity: in.ClientID,
			Name:             in.Name,
			Phone:            in.Phone,
		},
		BookingType:   bt,
		RescheduleOf:  rescheduleOf,
		ReservationID: uuid.New(),
	})
	if err != nil {
		return model.Outbound{}, err
	}
	if err := state.Advance(result.Stage); err != nil {
		return model.Outbound{}, err
	}

	switch result.Outcome {
	case model.OutcomeSlotTaken:
		taken := notifier.Format(model.OutcomeSlotTaken, nil, "")
		state.Reset()
		if err := state.Advance(model.StageOfferSlots); err != nil {
			return model.Outbound{}, err
		}
		state.ProviderID = providerID
		state.BookingType = bt
		state.RescheduleOf = rescheduleOf
		state.Route = model.RouteBooking
		reoffer := offer.Offer{}
		if result.Reoffer != nil {
			reoffer = *result.Reoffer
		}
		if id, err := uuid.Parse(rescheduleOf); err == nil {
			state.Route = model.RouteBookingReschedule
			reoffer = reoffer.WithCancel(id)
		}
		out, err := o.present(state, reoffer)
		if err != nil {
			return model.Outbound{}, err
		}
		out.Text = taken + " " + out.Text
		return out, nil
	case model.OutcomeRetryLater:
		return model.Outbound{Text: notifier.Format(model.OutcomeRetryLater, nil, "")}, nil
	}

	name := ""
	if result.Reservation != nil {
		if p, ok := o.providers.Get(result.Reservation.ProviderID); ok {
			name = p.Name
		}
	}
	return model.Outbound{Text: notifier.Format(result.Outcome, result.Reservation, name)}, nil
}

// collect lists cached slots over dates, resolving the range once when the
// cache has nothing. Slots that already started today are dropped.
func (o *Orchestrator) collect(ctx context.Context, providerID string, dates []string) ([]model.Slot, error) {
	list := func() ([]model.Slot, error) {
		var out []model.Slot
		for _, d := range dates {
			slots, err := o.ledger.ListAvailable(ctx, providerID, d)
			if err != nil {
				return nil, err
			}
			out = append(out, slots...)
		}
		return o.upcoming(out), nil
	}

	slots, err := list()
	if err != nil || len(slots) > 0 || o.availability == nil {
		return slots, err
	}
	if _, err := o.availability.Refresh(ctx, providerID, dates[0], dates[len(dates)-1]); err != nil {
		o.logger.ZL.Warn().Err(err).Str("provider_id", providerID).Msg("Availability refresh failed")
		return nil, nil
	}
	return list()
}

func (o *Orchestrator) upcoming(slots []model.Slot) []model.Slot {
	now := o.now().In(o.cfg.Location)
	today := now.Format(model.DateLayout)
	clock := model.ClockOf(now)
	out := slots[:0]
	for _, s := range slots {
		if s.Date < today || (s.Date == today && s.Start <= clock) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// horizon lists the dates to offer: today only for walk-ins.
func (o *Orchestrator) horizon(bt model.BookingType) []string {
	today := o.now().In(o.cfg.Location)
	days := o.cfg.HorizonDays
	if bt == model.BookingTypeWalkIn {
		days = 1
	}
	dates := make([]string, days)
	for i := range dates {
		dates[i] = today.AddDate(0, 0, i).Format(model.DateLayout)
	}
	return dates
}

func repick(state *model.ConversationState) model.Outbound {
	if len(state.Offered) == 0 {
		return model.Outbound{Text: unclearText}
	}
	return model.Outbound{
		Text:   repickText,
		Action: &model.Action{Type: model.ActionSelectSlot, Options: state.Offered},
	}
}
