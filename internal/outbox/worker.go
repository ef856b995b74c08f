package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"youapp/internal/broker"
	"youapp/internal/metrics"
	"youapp/internal/repository"

	"github.com/google/uuid"
)

// Worker relays pending outbox events to a publisher. Events are published
// in store order; a failed publish stops the batch so later events are not
// relayed ahead of it, and the failed one is retried on the next tick.
type Worker struct {
	repo      repository.OutboxRepository
	publisher broker.Publisher
	batch     int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewWorker(repo repository.OutboxRepository, publisher broker.Publisher, batch int, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		batch:     batch,
		logger:    logger.With("component", "outbox"),
		metrics:   m,
	}
}

// Start polls every interval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("outbox relay started", "interval", interval, "batch", w.batch)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			for {
				n, err := w.RelayOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.Error("outbox relay failed", "error", err)
					}
					break
				}
				// A full batch means more may be waiting.
				if n < w.batch {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many events were relayed.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	events, err := w.repo.FetchPending(ctx, w.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(events))
	var publishErr error
	for _, event := range events {
		if err := w.publisher.Publish(ctx, event); err != nil {
			w.metrics.RelayFailed()
			publishErr = fmt.Errorf("failed to publish event %s: %w", event.ID, err)
			break
		}
		published = append(published, event.ID)
	}

	if len(published) > 0 {
		if err := w.repo.MarkProcessed(ctx, published); err != nil {
			return 0, fmt.Errorf("failed to mark events processed: %w", err)
		}
		w.metrics.Relayed(len(published))
		w.logger.Debug("outbox events relayed", "count", len(published))
	}
	return len(published), publishErr
}
