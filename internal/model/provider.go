package model

import (
	"fmt"
	"sort"
	"time"
)

type Provider struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	CalendarRef string       `json:"calendar_ref"`
	Active      bool         `json:"active"`
	Email       string       `json:"email,omitempty"`
	Hours       WorkingHours `json:"hours,omitempty"`
}

// WorkingWindow is one (weekday, start, end) entry of a working-hours policy.
type WorkingWindow struct {
	Weekday time.Weekday `json:"weekday"`
	Start   Clock        `json:"start"`
	End     Clock        `json:"end"`
}

type WorkingHours []WorkingWindow

// On returns the day's windows ordered by start.
func (w WorkingHours) On(day time.Weekday) []Interval {
	var out []Interval
	for _, win := range w {
		if win.Weekday == day && win.End > win.Start {
			out = append(out, Interval{Start: win.Start, End: win.End})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Covers reports whether iv lies fully inside one window of the day.
func (w WorkingHours) Covers(day time.Weekday, iv Interval) bool {
	for _, win := range w.On(day) {
		if win.Contains(iv) {
			return true
		}
	}
	return false
}

// Directory is the configured provider list plus the global policy.
type Directory struct {
	providers []Provider
	byID      map[string]int
	global    WorkingHours
}

func NewDirectory(providers []Provider, global WorkingHours) (*Directory, error) {
	d := &Directory{
		providers: make([]Provider, 0, len(providers)),
		byID:      make(map[string]int, len(providers)),
		global:    global,
	}
	for _, p := range providers {
		if p.ID == "" {
			return nil, fmt.Errorf("provider without id")
		}
		if _, dup := d.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		d.byID[p.ID] = len(d.providers)
		d.providers = append(d.providers, p)
	}
	return d, nil
}

func (d *Directory) Get(id string) (Provider, bool) {
	idx, ok := d.byID[id]
	if !ok {
		return Provider{}, false
	}
	return d.providers[idx], true
}

// Active lists active providers in configuration order.
func (d *Directory) Active() []Provider {
	var out []Provider
	for _, p := range d.providers {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Hours falls back to the global policy when the provider has none.
func (d *Directory) Hours(p Provider) WorkingHours {
	if len(p.Hours) > 0 {
		return p.Hours
	}
	return d.global
}
