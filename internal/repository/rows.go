package repository

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Column names shared across tables.
const (
	ColProviderID = "provider_id"
	ColDate       = "date"
	ColStart      = "start_time"
	ColEnd        = "end_time"
	ColStatus     = "status"
	ColCreatedAt  = "created_at"
)

// Columns lists every table's columns in storage order.
var Columns = map[string][]string{
	TableClients:      {"id", "external_identity", "name", "phone", "notes", "created_at"},
	TableSlots:        {"id", "provider_id", "date", "start_time", "end_time", "available"},
	TableReservations: {"id", "client_id", "provider_id", "date", "start_time", "end_time", "status", "booking_type", "notes", "external_event_id", "created_at", "updated_at"},
	TableOutbox:       {"id", "event_type", "payload", "status", "attempts", "error_message", "created_at", "processed_at"},
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func SlotRow(s model.Slot) Row {
	return Row{
		"id":          s.ID(),
		"provider_id": s.ProviderID,
		"date":        s.Date,
		"start_time":  s.Start.String(),
		"end_time":    s.End.String(),
		"available":   strconv.FormatBool(s.Available),
	}
}

func SlotFromRow(r Row) (model.Slot, error) {
	start, err := model.ParseClock(r["start_time"])
	if err != nil {
		return model.Slot{}, fmt.Errorf("slot %s: %w", r["id"], err)
	}
	end, err := model.ParseClock(r["end_time"])
	if err != nil {
		return model.Slot{}, fmt.Errorf("slot %s: %w", r["id"], err)
	}
	available, _ := strconv.ParseBool(r["available"])
	return model.Slot{
		SlotKey: model.SlotKey{
			ProviderID: r["provider_id"],
			Date:       r["date"],
			Start:      start,
			End:        end,
		},
		Available: available,
	}, nil
}

func ReservationRow(res *model.Reservation) Row {
	return Row{
		"id":                res.ID.String(),
		"client_id":         res.ClientID.String(),
		"provider_id":       res.ProviderID,
		"date":              res.Date,
		"start_time":        res.Start.String(),
		"end_time":          res.End.String(),
		"status":            string(res.Status),
		"booking_type":      string(res.BookingType),
		"notes":             res.Notes,
		"external_event_id": res.ExternalEventID,
		"created_at":        formatTime(res.CreatedAt),
		"updated_at":        formatTime(res.UpdatedAt),
	}
}

func ReservationFromRow(r Row) (*model.Reservation, error) {
	id, err := uuid.Parse(r["id"])
	if err != nil {
		return nil, fmt.Errorf("reservation id %q: %w", r["id"], err)
	}
	clientID, err := uuid.Parse(r["client_id"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s client id: %w", id, err)
	}
	start, err := model.ParseClock(r["start_time"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", id, err)
	}
	end, err := model.ParseClock(r["end_time"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", id, err)
	}
	status := model.ReservationStatus(r["status"])
	if !status.Valid() {
		return nil, fmt.Errorf("reservation %s: unknown status %q", id, r["status"])
	}
	createdAt, err := parseTime(r["created_at"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s created_at: %w", id, err)
	}
	updatedAt, err := parseTime(r["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s updated_at: %w", id, err)
	}
	bookingType := model.BookingType(r["booking_type"])
	if !bookingType.Valid() {
		bookingType = model.BookingTypeStandard
	}
	return &model.Reservation{
		ID:              id,
		ClientID:        clientID,
		ProviderID:      r["provider_id"],
		Date:            r["date"],
		Start:           start,
		End:             end,
		Status:          status,
		BookingType:     bookingType,
		Notes:           r["notes"],
		ExternalEventID: r["external_event_id"],
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

func ClientRow(c *model.Client) Row {
	return Row{
		"id":                c.ID.String(),
		"external_identity": c.ExternalIdentity,
		"name":              c.Name,
		"phone":             c.Phone,
		"notes":             c.Notes,
		"created_at":        formatTime(c.CreatedAt),
	}
}

func ClientFromRow(r Row) (*model.Client, error) {
	id, err := uuid.Parse(r["id"])
	if err != nil {
		return nil, fmt.Errorf("client id %q: %w", r["id"], err)
	}
	createdAt, err := parseTime(r["created_at"])
	if err != nil {
		return nil, fmt.Errorf("client %s created_at: %w", id, err)
	}
	return &model.Client{
		ID:               id,
		ExternalIdentity: r["external_identity"],
		Name:             r["name"],
		Phone:            r["phone"],
		Notes:            r["notes"],
		CreatedAt:        createdAt,
	}, nil
}

func OutboxRow(e *model.OutboxEvent) Row {
	row := Row{
		"id":            e.ID.String(),
		"event_type":    e.EventType,
		"payload":       string(e.Payload),
		"status":        string(e.Status),
		"attempts":      strconv.Itoa(e.Attempts),
		"error_message": e.ErrorMessage,
		"created_at":    formatTime(e.CreatedAt),
		"processed_at":  "",
	}
	if e.ProcessedAt != nil {
		row["processed_at"] = formatTime(*e.ProcessedAt)
	}
	return row
}

func OutboxFromRow(r Row) (*model.OutboxEvent, error) {
	id, err := uuid.Parse(r["id"])
	if err != nil {
		return nil, fmt.Errorf("outbox id %q: %w", r["id"], err)
	}
	createdAt, err := parseTime(r["created_at"])
	if err != nil {
		return nil, fmt.Errorf("outbox %s created_at: %w", id, err)
	}
	attempts, _ := strconv.Atoi(r["attempts"])
	evt := &model.OutboxEvent{
		ID:           id,
		EventType:    r["event_type"],
		Payload:      json.RawMessage(r["payload"]),
		Status:       model.OutboxStatus(r["status"]),
		Attempts:     attempts,
		ErrorMessage: r["error_message"],
		CreatedAt:    createdAt,
	}
	if r["processed_at"] != "" {
		processedAt, err := parseTime(r["processed_at"])
		if err != nil {
			return nil, fmt.Errorf("outbox %s processed_at: %w", id, err)
		}
		evt.ProcessedAt = &processedAt
	}
	return evt, nil
}

// NewOutboxEvent builds a pending event with a JSON payload.
func NewOutboxEvent(eventType string, payload interface{}, now time.Time) (*model.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
	}, nil
}
