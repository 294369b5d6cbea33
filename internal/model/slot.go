package model

import (
	"fmt"
	"strings"
)

// SlotKey identifies a bookable window independently of its cached state.
type SlotKey struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
	Start      Clock  `json:"start"`
	End        Clock  `json:"end"`
}

// ID renders the stable slot id: <provider>/<YYYY-MM-DD>/<HHMM>-<HHMM>.
func (k SlotKey) ID() string {
	return fmt.Sprintf("%s/%s/%s-%s", k.ProviderID, k.Date, k.Start.Compact(), k.End.Compact())
}

func (k SlotKey) Interval() Interval {
	return Interval{Start: k.Start, End: k.End}
}

func ParseSlotID(id string) (SlotKey, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 3 || parts[0] == "" {
		return SlotKey{}, fmt.Errorf("invalid slot id %q", id)
	}
	if _, err := ParseDate(parts[1]); err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: %w", id, err)
	}
	bounds := strings.SplitN(parts[2], "-", 2)
	if len(bounds) != 2 {
		return SlotKey{}, fmt.Errorf("invalid slot id %q", id)
	}
	start, err := ParseClock(bounds[0])
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: %w", id, err)
	}
	end, err := ParseClock(bounds[1])
	if err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: %w", id, err)
	}
	if end <= start {
		return SlotKey{}, fmt.Errorf("invalid slot id %q: empty interval", id)
	}
	return SlotKey{ProviderID: parts[0], Date: parts[1], Start: start, End: end}, nil
}

// Slot is a derived, cached bookable window.
type Slot struct {
	SlotKey
	Available bool `json:"available"`
}

func (s Slot) Key() SlotKey { return s.SlotKey }

// BusyInterval is a transient, externally sourced busy range.
type BusyInterval struct {
	ProviderID string
	Date       string
	Interval
}
