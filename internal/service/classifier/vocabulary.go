package classifier

import (
	"strings"
	"unicode"
)

// Vocabulary holds the keyword sets the rules match against. Keywords are
// matched as word prefixes, so a stem like "боль" also matches "больно".
type Vocabulary struct {
	Booking      []string `mapstructure:"booking"`
	Consultation []string `mapstructure:"consultation"`
	WalkIn       []string `mapstructure:"walk_in"`
	Info         []string `mapstructure:"info"`
	Reschedule   []string `mapstructure:"reschedule"`
	// TimeWords are day, weekday and month words that read as a time choice.
	TimeWords []string `mapstructure:"time_words"`
}

// DefaultVocabulary covers English and Russian.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Booking: []string{
			"хочу записаться", "могу записаться", "запишите", "записать", "когда есть время",
			"когда можно", "когда", "хочу тату", "есть свободно",
			"book appointment", "can i book", "want to book", "i'd like to book", "make an appointment",
			"free slot", "available time",
		},
		Consultation: []string{
			"идея", "концепция", "рефер", "картинка", "эскиз", "дизайн", "обсудить", "посоветовать",
			"какую", "где сделать", "обсуждение", "консультация",
			"idea", "concept", "design", "what tattoo", "suggest", "consultation", "sketch",
		},
		WalkIn: []string{
			"маленькая", "быстро", "на сегодня", "сейчас", "простая", "легко",
			"small", "quick", "now", "today", "tiny",
		},
		Info: []string{
			"боль", "больно", "болит", "уход", "зуд", "восстановление", "как долго", "сколько стоит",
			"цена", "стоимость", "область", "место", "где", "зона",
			"pain", "hurt", "ache", "care", "healing", "aftercare", "cost", "price", "how long", "how much",
		},
		Reschedule: []string{
			"перенести", "переносить", "перенесите", "другое время", "не могу", "отменить",
			"change", "reschedule", "cancel", "another time",
		},
		TimeWords: []string{
			"понедельник", "вторник", "сред", "четверг", "пятниц", "суббот", "воскресень",
			"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
			"завтра", "сегодня", "утром", "вечером", "tomorrow", "today", "morning", "evening",
			"янв", "фев", "март", "апр", "мая", "июн", "июл", "авг", "сен", "окт", "ноя", "дек",
			"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec",
		},
	}
}

// Merge appends extra keywords to every set.
func (v Vocabulary) Merge(extra Vocabulary) Vocabulary {
	return Vocabulary{
		Booking:      join(v.Booking, extra.Booking),
		Consultation: join(v.Consultation, extra.Consultation),
		WalkIn:       join(v.WalkIn, extra.WalkIn),
		Info:         join(v.Info, extra.Info),
		Reschedule:   join(v.Reschedule, extra.Reschedule),
		TimeWords:    join(v.TimeWords, extra.TimeWords),
	}
}

func join(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// keywords is a compiled keyword set.
type keywords []string

func compile(words []string) keywords {
	out := make(keywords, 0, len(words))
	for _, w := range words {
		if n := normalize(w); n != "" {
			out = append(out, " "+n)
		}
	}
	return out
}

// in reports whether any keyword starts a word of text, which must be
// normalized and prefixed with a space.
func (k keywords) in(text string) bool {
	for _, kw := range k {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// normalize lowercases text and reduces everything but letters, digits and
// apostrophes to single spaces between words.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 1)
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return strings.TrimPrefix(b.String(), " ")
}
