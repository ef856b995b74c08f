//go:generate go run go.uber.org/mock/mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks
package repository

import (
	"context"
	"errors"

	"youapp/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("repository: not found")
	ErrAlreadyExists = errors.New("repository: already exists")
)

// MessageRepository persists messages. CreateMessage writes the message and
// its MESSAGE_CREATED outbox event atomically and sets msg.Seq.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *domain.Message) error
	ListConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUsers(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	// UpdateProfile reads the stored profile, lets apply change it and writes
	// it back in one transaction. apply may run more than once.
	UpdateProfile(ctx context.Context, id uuid.UUID, apply func(*domain.Profile) error) (domain.User, error)
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error
}
