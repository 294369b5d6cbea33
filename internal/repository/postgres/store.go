package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/booking-assistant/internal/repository"
)

const uniqueViolation = "23505"

// Store implements repository.Store over TEXT-only tables.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithTx executes a function within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func columns(table string) ([]string, error) {
	cols, ok := repository.Columns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	return cols, nil
}

func checkColumn(table, col string) error {
	cols, err := columns(table)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if c == col {
			return nil
		}
	}
	return fmt.Errorf("unknown column %s.%s", table, col)
}

// where renders filter as positional predicates starting at $start.
func where(table string, filter repository.Filter, start int) (string, []interface{}, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if err := checkColumn(table, k); err != nil {
			return "", nil, err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var preds []string
	var args []interface{}
	for i, k := range keys {
		preds = append(preds, fmt.Sprintf("%s = $%d", k, start+i))
		args = append(args, filter[k])
	}
	if len(preds) == 0 {
		return "TRUE", nil, nil
	}
	return strings.Join(preds, " AND "), args, nil
}

func (s *Store) Read(ctx context.Context, table string, filter repository.Filter) ([]repository.Row, error) {
	cols, err := columns(table)
	if err != nil {
		return nil, err
	}
	cond, args, err := where(table, filter, 1)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id", strings.Join(cols, ", "), table, cond)

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	var out []repository.Row
	for rows.Next() {
		raw := make(map[string]interface{}, len(cols))
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		row := make(repository.Row, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case nil:
				row[k] = ""
			case []byte:
				row[k] = string(val)
			case string:
				row[k] = val
			default:
				row[k] = fmt.Sprint(val)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func insertQuery(table string, rows []repository.Row) (string, []interface{}, error) {
	cols, err := columns(table)
	if err != nil {
		return "", nil, err
	}
	var values []string
	var args []interface{}
	for _, row := range rows {
		for k := range row {
			if err := checkColumn(table, k); err != nil {
				return "", nil, err
			}
		}
		ph := make([]string, len(cols))
		for i, c := range cols {
			args = append(args, row[c])
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ", "))
	return query, args, nil
}

// Append writes all rows in a single statement.
func (s *Store) Append(ctx context.Context, table string, rows ...repository.Row) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := insertQuery(table, rows)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
		}
		return fmt.Errorf("failed to append to %s: %w", table, err)
	}
	return nil
}

func updateQuery(table, key string, row repository.Row) (string, []interface{}, error) {
	keys := make([]string, 0, len(row))
	for k := range row {
		if k == repository.KeyColumn {
			continue
		}
		if err := checkColumn(table, k); err != nil {
			return "", nil, err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "", nil, fmt.Errorf("empty update for %s %s", table, key)
	}
	sort.Strings(keys)

	sets := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+1)
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s = $%d", k, i+1)
		args = append(args, row[k])
	}
	args = append(args, key)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), len(args))
	return query, args, nil
}

func (s *Store) Update(ctx context.Context, table, key string, row repository.Row) error {
	query, args, err := updateQuery(table, key, row)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %v", repository.ErrConflict, err)
		}
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, filter repository.Filter) (int, error) {
	cond, args, err := where(table, filter, 1)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, cond), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// WriteGuarded serialises writers on the same provider and date with a
// transaction-scoped advisory lock, checks the guard, then writes. The
// partial unique index on active reservations backs the check.
func (s *Store) WriteGuarded(ctx context.Context, w repository.GuardedWrite) error {
	err := s.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", w.LockKey()); err != nil {
			return fmt.Errorf("failed to take advisory lock: %w", err)
		}

		cond, args, err := where(w.Table, w.Guard.Match, 1)
		if err != nil {
			return err
		}
		args = append(args, w.Guard.End, w.Guard.Start)
		cond += fmt.Sprintf(" AND start_time < $%d AND end_time > $%d", len(args)-1, len(args))
		if len(w.Guard.Statuses) > 0 {
			args = append(args, pq.Array(w.Guard.Statuses))
			cond += fmt.Sprintf(" AND status = ANY($%d)", len(args))
		}
		if w.Guard.ExceptID != "" {
			args = append(args, w.Guard.ExceptID)
			cond += fmt.Sprintf(" AND id <> $%d", len(args))
		}

		var blocking int
		if err := tx.GetContext(ctx, &blocking, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", w.Table, cond), args...); err != nil {
			return fmt.Errorf("failed to check guard: %w", err)
		}
		if blocking > 0 {
			return repository.ErrConflict
		}

		// Release the old row first so the unique index sees the move.
		if w.UpdateKey != "" {
			query, uargs, err := updateQuery(w.Table, w.UpdateKey, w.Update)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query, uargs...)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return repository.ErrNotFound
			}
		}

		query, iargs, err := insertQuery(w.Table, []repository.Row{w.Insert})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, iargs...)
		return err
	})
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
