package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"youapp/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeEvents = "youapp.events"
	QueuePush      = "youapp.push"
)

// Publisher delivers outbox events to an external system.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
	Close() error
}

// RoutingKey maps an event type to a topic key: MESSAGE_CREATED -> message.created.
func RoutingKey(eventType string) string {
	return strings.ToLower(strings.ReplaceAll(eventType, "_", "."))
}

type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

var _ Publisher = (*RabbitMQClient)(nil)

func NewRabbitMQClient(url string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeEvents, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare events exchange: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

func (c *RabbitMQClient) Publish(ctx context.Context, event domain.OutboxEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = c.channel.PublishWithContext(ctx,
		ExchangeEvents,              // exchange
		RoutingKey(event.EventType), // routing key
		false,                       // mandatory
		false,                       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID.String(),
			Timestamp:    event.CreatedAt,
			Type:         event.EventType,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.ID, err)
	}
	return nil
}

// ConsumeEvents declares a durable queue bound to the events exchange with
// bindingKey and consumes it with manual acks.
func (c *RabbitMQClient) ConsumeEvents(queue, bindingKey string) (<-chan amqp.Delivery, error) {
	q, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}

	err = c.channel.QueueBind(
		q.Name,         // queue name
		bindingKey,     // routing key
		ExchangeEvents, // exchange
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	return c.channel.Consume(
		q.Name, "", false, false, false, false, nil,
	)
}

func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
