package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/booking-assistant/internal/config"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates the tables and indexes when they are missing.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id                TEXT PRIMARY KEY,
		external_identity TEXT NOT NULL,
		name              TEXT NOT NULL DEFAULT '',
		phone             TEXT NOT NULL DEFAULT '',
		notes             TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS clients_identity_idx ON clients (external_identity)`,
	`CREATE TABLE IF NOT EXISTS slots (
		id          TEXT PRIMARY KEY,
		provider_id TEXT NOT NULL,
		date        TEXT NOT NULL,
		start_time  TEXT NOT NULL COLLATE "C",
		end_time    TEXT NOT NULL COLLATE "C",
		available   TEXT NOT NULL DEFAULT 'true'
	)`,
	`CREATE INDEX IF NOT EXISTS slots_provider_date_idx ON slots (provider_id, date)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id                TEXT PRIMARY KEY,
		client_id         TEXT NOT NULL,
		provider_id       TEXT NOT NULL,
		date              TEXT NOT NULL,
		start_time        TEXT NOT NULL COLLATE "C",
		end_time          TEXT NOT NULL COLLATE "C",
		status            TEXT NOT NULL,
		booking_type      TEXT NOT NULL DEFAULT 'standard',
		notes             TEXT NOT NULL DEFAULT '',
		external_event_id TEXT NOT NULL DEFAULT '',
		created_at        TEXT NOT NULL DEFAULT '',
		updated_at        TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_provider_date_idx ON reservations (provider_id, date)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS reservations_active_slot_idx
		ON reservations (provider_id, date, start_time, end_time)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id            TEXT PRIMARY KEY,
		event_type    TEXT NOT NULL,
		payload       TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		attempts      TEXT NOT NULL DEFAULT '0',
		error_message TEXT NOT NULL DEFAULT '',
		created_at    TEXT NOT NULL DEFAULT '',
		processed_at  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_status_idx ON outbox (status, created_at)`,
}
