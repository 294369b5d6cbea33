package email

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

var subjects = map[string]string{
	model.EventReservationConfirmed:   "New booking",
	model.EventReservationCancelled:   "Booking cancelled",
	model.EventReservationRescheduled: "Booking moved",
	model.EventReservationCompleted:   "Booking completed",
}

// ReservationAlert renders the provider/admin alert for a reservation event.
func ReservationAlert(eventType string, evt model.ReservationEvent) (subject, body string) {
	subject = subjects[eventType]
	if subject == "" {
		subject = "Booking update"
	}
	res := evt.Reservation
	if res == nil {
		return subject, ""
	}

	var b strings.Builder
	if evt.Provider != "" {
		fmt.Fprintf(&b, "Provider: %s\n", evt.Provider)
	}
	fmt.Fprintf(&b, "When: %s %s-%s\n", day(res.Date), res.Start, res.End)
	fmt.Fprintf(&b, "Type: %s\n", res.BookingType)
	if evt.Client != nil {
		fmt.Fprintf(&b, "Client: %s\n", clientLine(evt.Client))
	}
	if prev := evt.Previous; prev != nil {
		fmt.Fprintf(&b, "Previously: %s %s-%s\n", day(prev.Date), prev.Start, prev.End)
	}
	if res.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", res.Notes)
	}
	fmt.Fprintf(&b, "Reservation: %s\n", res.ID)
	return fmt.Sprintf("%s: %s %s", subject, day(res.Date), res.Start), b.String()
}

// ReviewAlert asks an admin to pick up a conversation the assistant could
// not classify.
func ReviewAlert(evt model.ReviewEvent) (subject, body string) {
	subject = "Conversation needs a human"
	body = fmt.Sprintf("Client: %s\nMessage: %s\nNote: %s\n", evt.ClientID, evt.Text, evt.Summary)
	return subject, body
}

func clientLine(c *model.Client) string {
	parts := []string{}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	if c.Phone != "" {
		parts = append(parts, c.Phone)
	}
	parts = append(parts, "("+c.ExternalIdentity+")")
	return strings.Join(parts, " ")
}

func day(date string) string {
	t, err := model.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Mon 02.01.2006")
}
