package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Outbox event types.
const (
	EventReservationConfirmed   = "reservation.confirmed"
	EventReservationCancelled   = "reservation.cancelled"
	EventReservationRescheduled = "reservation.rescheduled"
	EventReservationCompleted   = "reservation.completed"
	EventReviewRequested        = "conversation.review_requested"
)

type OutboxEvent struct {
	ID           uuid.UUID       `json:"id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       OutboxStatus    `json:"status"`
	Attempts     int             `json:"attempts"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// ReservationEvent is the payload of every reservation.* event.
type ReservationEvent struct {
	Reservation *Reservation `json:"reservation"`
	Previous    *Reservation `json:"previous,omitempty"`
	Client      *Client      `json:"client,omitempty"`
	Provider    string       `json:"provider_name,omitempty"`
}

// ReviewEvent is the payload of conversation.review_requested.
type ReviewEvent struct {
	ClientID string `json:"client_id"`
	Text     string `json:"text"`
	Summary  string `json:"summary"`
}
