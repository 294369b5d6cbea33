package model

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusCompleted ReservationStatus = "completed"
)

func (s ReservationStatus) Valid() bool {
	switch s {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusCancelled, ReservationStatusCompleted:
		return true
	}
	return false
}

// Active reservations hold their slot.
func (s ReservationStatus) Active() bool {
	return s == ReservationStatusPending || s == ReservationStatusConfirmed
}

// ActiveStatuses lists statuses that block a slot.
var ActiveStatuses = []ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed}

type Reservation struct {
	ID              uuid.UUID         `json:"id"`
	ClientID        uuid.UUID         `json:"client_id"`
	ProviderID      string            `json:"provider_id"`
	Date            string            `json:"date"`
	Start           Clock             `json:"start"`
	End             Clock             `json:"end"`
	Status          ReservationStatus `json:"status"`
	BookingType     BookingType       `json:"booking_type"`
	Notes           string            `json:"notes,omitempty"`
	ExternalEventID string            `json:"external_event_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (r *Reservation) Key() SlotKey {
	return SlotKey{ProviderID: r.ProviderID, Date: r.Date, Start: r.Start, End: r.End}
}

func (r *Reservation) Interval() Interval {
	return Interval{Start: r.Start, End: r.End}
}

// Precedes orders competing reservations: earliest created_at, then id.
func (r *Reservation) Precedes(o *Reservation) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.Before(o.CreatedAt)
	}
	return r.ID.String() < o.ID.String()
}

type Client struct {
	ID               uuid.UUID `json:"id"`
	ExternalIdentity string    `json:"external_identity"`
	Name             string    `json:"name,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ClientInfo is what a caller knows about a client when booking.
type ClientInfo struct {
	ExternalIdentity string `json:"external_identity" validate:"required"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
}

// NewReservation is a request to claim a slot. ID may be preset so a
// retried commit recognises its own row.
type NewReservation struct {
	ID          uuid.UUID
	ProviderID  string      `validate:"required"`
	Date        string      `validate:"required"`
	Start       Clock       `validate:"gte=0"`
	End         Clock       `validate:"gtfield=Start"`
	BookingType BookingType
	Notes       string `validate:"max=1000"`
}

func (n NewReservation) Key() SlotKey {
	return SlotKey{ProviderID: n.ProviderID, Date: n.Date, Start: n.Start, End: n.End}
}

// RescheduleResult pairs the cancelled original with its replacement.
type RescheduleResult struct {
	Previous *Reservation `json:"previous"`
	Current  *Reservation `json:"current"`
}
