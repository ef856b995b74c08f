package repository

import (
	"context"
	"fmt"

	"youapp/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var (
			event   domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&event.ID, &event.EventType, &payload, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = payload
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := lo.Map(ids, func(id uuid.UUID, _ int) string { return id.String() })
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET processed_at = NOW()
		WHERE id = ANY($1::uuid[])
	`, pq.Array(keys))
	if err != nil {
		return fmt.Errorf("failed to mark events processed: %w", err)
	}
	return nil
}
