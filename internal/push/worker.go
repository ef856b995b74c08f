package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"youapp/internal/broker"
	"youapp/internal/domain"
	"youapp/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Consumer interface {
	ConsumeEvents(queue, bindingKey string) (<-chan amqp.Delivery, error)
}

type PresenceChecker interface {
	IsOnline(userID string) bool
}

// Notifier hands an offline notification to a delivery provider.
type Notifier interface {
	Notify(ctx context.Context, msg domain.Message) error
}

// LogNotifier records offline notifications in the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg domain.Message) error {
	n.Logger.InfoContext(ctx, "offline push sent",
		"user_id", msg.RecipientID,
		"sender_id", msg.SenderID,
		"message_id", msg.ID,
	)
	return nil
}

// Worker notifies recipients of relayed messages who have no live
// connection on this process.
type Worker struct {
	consumer Consumer
	presence PresenceChecker
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewWorker(consumer Consumer, presence PresenceChecker, notifier Notifier, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer: consumer,
		presence: presence,
		notifier: notifier,
		logger:   logger.With("component", "push"),
		metrics:  m,
	}
}

// Start consumes message events until ctx is cancelled or the delivery
// channel closes.
func (w *Worker) Start(ctx context.Context) error {
	msgs, err := w.consumer.ConsumeEvents(broker.QueuePush, broker.RoutingKey(domain.EventTypeMessageCreated))
	if err != nil {
		return fmt.Errorf("failed to start push consumer: %w", err)
	}
	w.logger.Info("push worker started", "queue", broker.QueuePush)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				w.logger.Warn("push delivery channel closed")
				return nil
			}
			if err := w.Handle(ctx, d.Body); err != nil {
				w.logger.Error("failed to handle push event", "error", err)
			}
			// Malformed events are acked too; redelivery would not fix them.
			if err := d.Ack(false); err != nil {
				w.logger.Warn("failed to ack push event", "error", err)
			}
		}
	}
}

// Handle processes one relayed outbox event.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var event domain.OutboxEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event.EventType != domain.EventTypeMessageCreated {
		return nil
	}
	var msg domain.Message
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message payload: %w", err)
	}

	if w.presence.IsOnline(msg.RecipientID.String()) {
		return nil
	}
	if err := w.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("failed to notify %s: %w", msg.RecipientID, err)
	}
	w.metrics.OfflinePush()
	return nil
}
