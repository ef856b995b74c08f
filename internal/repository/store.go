package repository

import "context"

// Store is implemented by every storage backend.
type Store interface {
	MessageRepository
	UserRepository
	OutboxRepository
	Migrate(ctx context.Context) error
	Close() error
}
