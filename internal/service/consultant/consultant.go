// Package consultant answers info and consultation questions with canned
// replies. It never touches the ledger.
package consultant

import (
	"strings"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

type topic struct {
	keywords []string
	reply    string
}

// topics are checked in order.
var topics = []topic{
	{
		keywords: []string{"боль", "больно", "болит", "pain", "hurt", "ache"},
		reply:    "Pain varies with placement, size and your own threshold. The artist will help you pick a spot and prepare. Where are you thinking of?",
	},
	{
		keywords: []string{"уход", "восстановление", "care", "aftercare", "healing"},
		reply:    "Proper aftercare matters. You will get detailed instructions after the session and can ask anything. What would you like to know?",
	},
	{
		keywords: []string{"цена", "стоимость", "сколько стоит", "price", "cost", "how much"},
		reply:    "Price depends on size, complexity and time. The artist will go through the details with you. What is your idea?",
	},
	{
		keywords: []string{"идея", "дизайн", "концепция", "картинка", "рефер", "эскиз", "design", "idea", "sketch", "concept"},
		reply:    "Great! Tell me more about your idea. Is it a large piece or something small? Do you have any references?",
	},
}

const defaultReply = "Thanks for the question! Tell me a bit more about what you are interested in."

// SuggestBooking nudges a client from questions towards a booking.
const SuggestBooking = "Whenever you are ready I can show you the free times. Just say \"book\"."

// Reply picks the canned answer for text. Pain questions win over price
// ones, so "how much does it hurt" is answered as a pain question.
func Reply(text string, route model.Route) string {
	lower := strings.ToLower(text)
	for _, t := range topics {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.reply
			}
		}
	}
	if route == model.RouteConsultation {
		return topics[len(topics)-1].reply
	}
	return defaultReply
}
