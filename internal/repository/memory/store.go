package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jwalitptl/booking-assistant/internal/repository"
)

type table struct {
	rows  []repository.Row
	index map[string]int
}

// Store is an in-process tabular store. Guarded writes run inside one
// critical section, which makes them atomic.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func NewStore() *Store {
	s := &Store{tables: make(map[string]*table)}
	for name := range repository.Columns {
		s.tables[name] = &table{index: make(map[string]int)}
	}
	return s
}

func (s *Store) table(name string) (*table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", name)
	}
	return t, nil
}

func copyRow(r repository.Row) repository.Row {
	out := make(repository.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (s *Store) Read(ctx context.Context, name string, filter repository.Filter) ([]repository.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(name)
	if err != nil {
		return nil, err
	}
	var out []repository.Row
	for _, row := range t.rows {
		if filter.Matches(row) {
			out = append(out, copyRow(row))
		}
	}
	return out, nil
}

func (s *Store) Append(ctx context.Context, name string, rows ...repository.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(name)
	if err != nil {
		return err
	}
	return s.appendLocked(t, rows)
}

// appendLocked inserts all rows or none.
func (s *Store) appendLocked(t *table, rows []repository.Row) error {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		key := row[repository.KeyColumn]
		if key == "" {
			return fmt.Errorf("row without %s", repository.KeyColumn)
		}
		if _, exists := t.index[key]; exists || seen[key] {
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, key)
		}
		seen[key] = true
	}
	for _, row := range rows {
		t.index[row[repository.KeyColumn]] = len(t.rows)
		t.rows = append(t.rows, copyRow(row))
	}
	return nil
}

func (s *Store) Update(ctx context.Context, name, key string, row repository.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(name)
	if err != nil {
		return err
	}
	return s.updateLocked(t, key, row)
}

func (s *Store) updateLocked(t *table, key string, row repository.Row) error {
	idx, ok := t.index[key]
	if !ok {
		return repository.ErrNotFound
	}
	for k, v := range row {
		if k == repository.KeyColumn {
			continue
		}
		t.rows[idx][k] = v
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string, filter repository.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(name)
	if err != nil {
		return 0, err
	}
	kept := t.rows[:0]
	removed := 0
	for _, row := range t.rows {
		if filter.Matches(row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	t.index = make(map[string]int, len(kept))
	for i, row := range kept {
		t.index[row[repository.KeyColumn]] = i
	}
	return removed, nil
}

func (s *Store) WriteGuarded(ctx context.Context, w repository.GuardedWrite) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(w.Table)
	if err != nil {
		return err
	}
	for _, row := range t.rows {
		if w.Guard.Blocks(row) {
			return repository.ErrConflict
		}
	}
	if w.UpdateKey != "" {
		if _, ok := t.index[w.UpdateKey]; !ok {
			return repository.ErrNotFound
		}
	}
	if err := s.appendLocked(t, []repository.Row{w.Insert}); err != nil {
		return err
	}
	if w.UpdateKey != "" {
		return s.updateLocked(t, w.UpdateKey, w.Update)
	}
	return nil
}

type unguarded struct {
	repository.Store
}

// Unguarded hides WriteGuarded so callers take the optimistic path.
func Unguarded(s repository.Store) repository.Store {
	return unguarded{Store: s}
}
