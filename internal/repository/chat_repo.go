package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"youapp/internal/domain"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Insert message, the serial column orders equal timestamps
	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, sender_id, recipient_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, msg.ID, msg.SenderID, msg.RecipientID, msg.Content, msg.Timestamp).Scan(&msg.Seq)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	// 2. Outbox event in the same transaction
	event, err := newMessageCreatedEvent(msg)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.EventType, []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) ListConversation(ctx context.Context, a, b uuid.UUID) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, recipient_id, content, created_at, seq
		FROM messages
		WHERE LEAST(sender_id, recipient_id) = LEAST($1::uuid, $2::uuid)
		  AND GREATEST(sender_id, recipient_id) = GREATEST($1::uuid, $2::uuid)
		ORDER BY created_at ASC, seq ASC
	`, a, b)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.RecipientID, &msg.Content, &msg.Timestamp, &msg.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation: %w", err)
	}
	return messages, nil
}

func newMessageCreatedEvent(msg *domain.Message) (domain.OutboxEvent, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return domain.OutboxEvent{}, fmt.Errorf("failed to marshal message payload: %w", err)
	}
	return domain.OutboxEvent{
		ID:        uuid.New(),
		EventType: domain.EventTypeMessageCreated,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}, nil
}
