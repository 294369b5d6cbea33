package repository

import (
	"context"
	"errors"

	"github.com/jwalitptl/booking-assistant/internal/model"
)

var (
	// ErrNotFound is returned by Update when no row has the key.
	ErrNotFound = errors.New("row not found")
	// ErrConflict is returned by WriteGuarded when the guard matched.
	ErrConflict = errors.New("guarded write conflict")
	// ErrDuplicate is returned by Append for an id that already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// Table names.
const (
	TableClients      = "clients"
	TableSlots        = "slots"
	TableReservations = "reservations"
	TableOutbox       = "outbox"
)

// KeyColumn is the primary key column of every table.
const KeyColumn = "id"

// Row is one record of a tabular store. Every value is text.
type Row map[string]string

// Filter selects rows whose columns equal every given value.
type Filter map[string]string

func (f Filter) Matches(row Row) bool {
	for k, v := range f {
		if row[k] != v {
			return false
		}
	}
	return true
}

// All repository interfaces in one file
type (
	// Store is the generic row interface the booking core runs on.
	Store interface {
		Read(ctx context.Context, table string, filter Filter) ([]Row, error)
		Append(ctx context.Context, table string, rows ...Row) error
		// Update sets the given columns on the row whose id is key.
		Update(ctx context.Context, table, key string, row Row) error
		// Delete is only used to clear a resolved slot range.
		Delete(ctx context.Context, table string, filter Filter) (int, error)
	}

	// GuardedWriter is the optional atomic check-and-write capability.
	GuardedWriter interface {
		WriteGuarded(ctx context.Context, w GuardedWrite) error
	}

	// StateStore keeps conversation state between turns.
	StateStore interface {
		// Load returns a fresh state when none is stored.
		Load(ctx context.Context, clientID string) (*model.ConversationState, error)
		Save(ctx context.Context, state *model.ConversationState) error
		Clear(ctx context.Context, clientID string) error
	}
)

// Guard describes rows that must not exist for a guarded write to proceed:
// rows matching Match, with a status in Statuses, whose
// [start_time, end_time) overlaps [Start, End), other than ExceptID.
type Guard struct {
	Match    Filter
	Statuses []string
	Start    string
	End      string
	ExceptID string
}

// Blocks reports whether row trips the guard.
func (g Guard) Blocks(row Row) bool {
	if !g.Match.Matches(row) {
		return false
	}
	if g.ExceptID != "" && row[KeyColumn] == g.ExceptID {
		return false
	}
	if len(g.Statuses) > 0 {
		hit := false
		for _, s := range g.Statuses {
			if row[ColStatus] == s {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	// HH:MM strings order lexically.
	return row[ColStart] < g.End && row[ColEnd] > g.Start
}

// GuardedWrite inserts Insert and optionally updates the row UpdateKey,
// both only if no row trips Guard.
type GuardedWrite struct {
	Table     string
	Guard     Guard
	Insert    Row
	UpdateKey string
	Update    Row
}

// LockKey serialises guarded writes that can conflict with each other.
func (w GuardedWrite) LockKey() string {
	key := w.Table
	for _, col := range []string{ColProviderID, ColDate} {
		if v, ok := w.Guard.Match[col]; ok {
			key += "|" + v
		}
	}
	return key
}
