// Package notifier renders the client-facing message for a booking outcome.
package notifier

import (
	"fmt"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

// Format is pure: it uses only its arguments. res may be nil for outcomes
// that have no reservation.
func Format(outcome model.Outcome, res *model.Reservation, providerName string) string {
	switch outcome {
	case model.OutcomeConfirmed:
		if res == nil {
			return "Your booking is confirmed."
		}
		return fmt.Sprintf("Done! You are booked%s on %s from %s to %s. See you then!",
			with(providerName), day(res.Date), res.Start, res.End)
	case model.OutcomeCancelled:
		if res == nil {
			return "Your booking has been cancelled."
		}
		return fmt.Sprintf("Your booking on %s at %s has been cancelled. Write any time to book again.",
			day(res.Date), res.Start)
	case model.OutcomeRescheduled:
		if res == nil {
			return "Your booking has been moved."
		}
		return fmt.Sprintf("Moved! Your new time%s is %s from %s to %s.",
			with(providerName), day(res.Date), res.Start, res.End)
	case model.OutcomeSlotTaken:
		return "Sorry, that time was just taken by someone else."
	case model.OutcomeRetryLater:
		return "Something went wrong on our side while booking. Please try again in a few minutes."
	}
	return ""
}

func with(name string) string {
	if name == "" {
		return ""
	}
	return " with " + name
}

func day(date string) string {
	t, err := model.ParseDate(date)
	if err != nil {
		return date
	}
	return t.Format("Mon 02.01")
}
