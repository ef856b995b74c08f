package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"youapp/internal/domain"

	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"
)

// StreamPublisher appends outbox events to a RabbitMQ stream.
type StreamPublisher struct {
	env      *stream.Environment
	producer *stream.Producer
}

var _ Publisher = (*StreamPublisher)(nil)

func NewStreamPublisher(uri, streamName string) (*StreamPublisher, error) {
	env, err := stream.NewEnvironment(stream.NewEnvironmentOptions().SetUri(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	err = env.DeclareStream(streamName, stream.NewStreamOptions().
		SetMaxLengthBytes(stream.ByteCapacity{}.GB(2)))
	if err != nil && !errors.Is(err, stream.StreamAlreadyExists) {
		env.Close()
		return nil, fmt.Errorf("failed to declare stream %s: %w", streamName, err)
	}

	producer, err := env.NewProducer(streamName, stream.NewProducerOptions())
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to create stream producer: %w", err)
	}
	return &StreamPublisher{env: env, producer: producer}, nil
}

func (p *StreamPublisher) Publish(ctx context.Context, event domain.OutboxEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := amqp.NewMessage(body)
	msg.Properties = &amqp.MessageProperties{
		MessageID:   event.ID.String(),
		ContentType: "application/json",
		Subject:     event.EventType,
	}
	if err := p.producer.Send(msg); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

func (p *StreamPublisher) Close() error {
	var errs []error
	if p.producer != nil {
		errs = append(errs, p.producer.Close())
	}
	if p.env != nil {
		errs = append(errs, p.env.Close())
	}
	return errors.Join(errs...)
}
