package broker

import (
	"context"
	"log/slog"

	"youapp/internal/domain"
)

// LogPublisher writes events to the log. It is the default when no broker
// is configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.OutboxEvent) error {
	p.logger.InfoContext(ctx, "event published",
		"event_id", event.ID,
		"event_type", event.EventType,
		"routing_key", RoutingKey(event.EventType),
		"payload", string(event.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
