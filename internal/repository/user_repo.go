package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"youapp/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

const userColumns = `id, email, username, password_hash, profile, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) CreateUser(ctx context.Context, user domain.User) error {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, strings.ToLower(user.Email), user.Username, user.PasswordHash, profile, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUsers(ctx context.Context, ids []uuid.UUID) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1::uuid[])`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return scanUsers(rows)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return scanUsers(rows)
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id uuid.UUID, apply func(*domain.Profile) error) (domain.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Row lock serialises concurrent profile writers.
	var stored []byte
	err = tx.QueryRowContext(ctx, `SELECT profile FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to load profile: %w", err)
	}
	var profile domain.Profile
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &profile); err != nil {
			return domain.User{}, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	if err := apply(&profile); err != nil {
		return domain.User{}, err
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to marshal profile: %w", err)
	}
	user, err := scanUser(tx.QueryRowContext(ctx, `
		UPDATE users SET profile = $2 WHERE id = $1
		RETURNING `+userColumns, id, payload))
	if err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("failed to commit profile: %w", err)
	}
	return user, nil
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user    domain.User
		profile []byte
	)
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &profile, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to scan user: %w", err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &user.Profile); err != nil {
			return domain.User{}, fmt.Errorf("failed to decode profile: %w", err)
		}
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}
