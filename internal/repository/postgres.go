package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		profile JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		sender_id UUID NOT NULL,
		recipient_id UUID NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (
		LEAST(sender_id, recipient_id), GREATEST(sender_id, recipient_id), created_at, seq
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox_events (created_at) WHERE processed_at IS NULL`,
}

// PostgresStore implements Store on top of database/sql and lib/pq.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres opens and pings the database behind connStr.
func OpenPostgres(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
