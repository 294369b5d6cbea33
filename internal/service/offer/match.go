package offer

import (
	"regexp"
	"strconv"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

var (
	colonTime = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	dotPair   = regexp.MustCompile(`\b(\d{1,2})[./](\d{1,2})\b`)
	number    = regexp.MustCompile(`\b\d{1,2}\b`)
)

// mention is what a free-text reply says about time.
type mention struct {
	times []model.Clock
	hours []int
	days  [][2]int // day, month
}

func (m mention) empty() bool {
	return len(m.times) == 0 && len(m.hours) == 0 && len(m.days) == 0
}

func parseMention(text string) mention {
	var m mention
	rest := []byte(text)

	for _, g := range colonTime.FindAllStringSubmatch(string(rest), -1) {
		h, _ := strconv.Atoi(g[1])
		mm, _ := strconv.Atoi(g[2])
		m.times = append(m.times, model.NewClock(h, mm))
	}
	rest = colonTime.ReplaceAll(rest, []byte(" "))

	for _, g := range dotPair.FindAllStringSubmatch(string(rest), -1) {
		a, _ := strconv.Atoi(g[1])
		b, _ := strconv.Atoi(g[2])
		switch {
		case a >= 1 && a <= 31 && b >= 1 && b <= 12:
			m.days = append(m.days, [2]int{a, b})
		case a <= 23 && b <= 59 && len(g[2]) == 2:
			m.times = append(m.times, model.NewClock(a, b))
		}
	}
	rest = dotPair.ReplaceAll(rest, []byte(" "))

	for _, n := range number.FindAllString(string(rest), -1) {
		h, _ := strconv.Atoi(n)
		if h >= 7 && h <= 23 {
			m.hours = append(m.hours, h)
		}
	}
	return m
}

func (m mention) matches(k model.SlotKey) bool {
	if len(m.times) > 0 && !containsClock(m.times, k.Start) {
		return false
	}
	if len(m.hours) > 0 && !containsInt(m.hours, k.Start.Hour()) {
		return false
	}
	if len(m.days) > 0 {
		day, err := model.ParseDate(k.Date)
		if err != nil {
			return false
		}
		hit := false
		for _, d := range m.days {
			if d[0] == day.Day() && d[1] == int(day.Month()) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// MatchOffered resolves a free-text reply such as "16.10 at 10:00" or
// "the 14:00 one" to one of the offered options. It succeeds only when
// exactly one option fits everything the text mentions.
func MatchOffered(text string, offered []model.Option) (model.Option, bool) {
	m := parseMention(text)
	if m.empty() {
		return model.Option{}, false
	}
	var found []model.Option
	for _, o := range offered {
		key, err := model.ParseSlotID(o.ID)
		if err != nil {
			continue
		}
		if m.matches(key) {
			found = append(found, o)
		}
	}
	if len(found) != 1 {
		return model.Option{}, false
	}
	return found[0], true
}

func containsClock(cs []model.Clock, c model.Clock) bool {
	for _, x := range cs {
		if x == c {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
