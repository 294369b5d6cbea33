package model

import (
	"fmt"
	"time"
)

type Route string

const (
	RouteBooking           Route = "booking"
	RouteBookingConfirm    Route = "booking_confirm"
	RouteBookingReschedule Route = "booking_reschedule"
	RouteConsultation      Route = "consultation"
	RouteInfo              Route = "info"
	RouteOther             Route = "other"
)

func (r Route) Valid() bool {
	switch r {
	case RouteBooking, RouteBookingConfirm, RouteBookingReschedule, RouteConsultation, RouteInfo, RouteOther:
		return true
	}
	return false
}

type Stage string

const (
	StageNone                Stage = "none"
	StageOfferSlots          Stage = "offer_slots"
	StageWaitingClientChoice Stage = "waiting_client_choice"
	StageConfirmingChoice    Stage = "confirming_choice"
	StageCompleted           Stage = "completed"
	StageError               Stage = "error"
)

func (s Stage) Valid() bool {
	switch s {
	case StageNone, StageOfferSlots, StageWaitingClientChoice, StageConfirmingChoice, StageCompleted, StageError:
		return true
	}
	return false
}

// Terminal stages end a flow; the state is cleared afterwards.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageError
}

func (s Stage) rank() int {
	switch s {
	case StageNone:
		return 0
	case StageOfferSlots:
		return 1
	case StageWaitingClientChoice:
		return 2
	case StageConfirmingChoice:
		return 3
	case StageCompleted, StageError:
		return 4
	}
	return -1
}

type BookingType string

const (
	BookingTypeStandard     BookingType = "standard"
	BookingTypeWalkIn       BookingType = "walk-in"
	BookingTypeConsultation BookingType = "consultation"
	BookingTypeNone         BookingType = "none"
)

func (b BookingType) Valid() bool {
	switch b {
	case BookingTypeStandard, BookingTypeWalkIn, BookingTypeConsultation, BookingTypeNone:
		return true
	}
	return false
}

// Outcome is the terminal result a notifier renders.
type Outcome string

const (
	OutcomeConfirmed   Outcome = "confirmed"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeSlotTaken   Outcome = "slot_taken"
	OutcomeRetryLater  Outcome = "retry_later"
)

func (o Outcome) Valid() bool {
	switch o {
	case OutcomeConfirmed, OutcomeCancelled, OutcomeRescheduled, OutcomeSlotTaken, OutcomeRetryLater:
		return true
	}
	return false
}

type ActionType string

const (
	ActionSelectSlot   ActionType = "select_slot"
	ActionShareContact ActionType = "share_contact"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionSelectSlot, ActionShareContact:
		return true
	}
	return false
}

// Intent is the classifier's verdict for one message.
type Intent struct {
	Route               Route       `json:"route"`
	Stage               Stage       `json:"stage"`
	BookingType         BookingType `json:"booking_type"`
	Summary             string      `json:"intent_summary"`
	Confidence          float64     `json:"confidence"`
	RequiresHumanReview bool        `json:"requires_human_review"`
}

// Valid checks the closed enums and the confidence range.
func (i Intent) Valid() bool {
	return i.Route.Valid() && i.Stage.Valid() && i.BookingType.Valid() &&
		i.Confidence >= 0 && i.Confidence <= 1
}

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Action struct {
	Type    ActionType `json:"type"`
	Options []Option   `json:"options"`
}

type Inbound struct {
	ClientID   string `json:"client_id" binding:"required,max=128"`
	Text       string `json:"text" binding:"max=4096"`
	SelectedID string `json:"selected_id,omitempty" binding:"max=256"`
	Name       string `json:"name,omitempty" binding:"max=128"`
	Phone      string `json:"phone,omitempty" binding:"max=32"`
}

type Outbound struct {
	Text   string  `json:"text"`
	Action *Action `json:"action,omitempty"`
}

// HistoryWindow bounds ConversationState.History.
const HistoryWindow = 6

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// ConversationState is the per-client workflow position between turns.
type ConversationState struct {
	ClientID     string      `json:"client_id"`
	Route        Route       `json:"route"`
	Stage        Stage       `json:"stage"`
	BookingType  BookingType `json:"booking_type"`
	ProviderID   string      `json:"provider_id,omitempty"`
	Date         string      `json:"date,omitempty"`
	SelectedSlot string      `json:"selected_slot,omitempty"`
	Offered      []Option    `json:"offered,omitempty"`
	// RescheduleOf is the reservation being moved, if any.
	RescheduleOf string    `json:"reschedule_of,omitempty"`
	History      []Turn    `json:"history,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func NewConversationState(clientID string) *ConversationState {
	return &ConversationState{
		ClientID:    clientID,
		Route:       RouteOther,
		Stage:       StageNone,
		BookingType: BookingTypeNone,
	}
}

// Advance moves forward through the workflow. Moving back is only
// possible through Reset.
func (s *ConversationState) Advance(next Stage) error {
	if !next.Valid() {
		return fmt.Errorf("invalid stage %q", next)
	}
	if next == StageNone {
		s.Reset()
		return nil
	}
	if next.rank() <= s.Stage.rank() {
		return fmt.Errorf("stage cannot move from %s to %s", s.Stage, next)
	}
	s.Stage = next
	return nil
}

// Reset drops workflow fields but keeps the history window.
func (s *ConversationState) Reset() {
	s.Route = RouteOther
	s.Stage = StageNone
	s.BookingType = BookingTypeNone
	s.ProviderID = ""
	s.Date = ""
	s.SelectedSlot = ""
	s.Offered = nil
	s.RescheduleOf = ""
}

func (s *ConversationState) Remember(role, text string, at time.Time) {
	if text == "" {
		return
	}
	s.History = append(s.History, Turn{Role: role, Text: text, At: at})
	if len(s.History) > HistoryWindow {
		s.History = append([]Turn(nil), s.History[len(s.History)-HistoryWindow:]...)
	}
}

// OfferedOption returns the offered option with the given id.
func (s *ConversationState) OfferedOption(id string) (Option, bool) {
	for _, o := range s.Offered {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}
