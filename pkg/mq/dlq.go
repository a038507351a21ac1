package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// DLQExchangeName returns the dead-letter exchange paired with exchange.
func DLQExchangeName(exchange string) string {
	return exchange + ".dlq"
}

// DeclareDLQExchange declares the dead-letter exchange for exchange.
func DeclareDLQExchange(ch *amqp091.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		DLQExchangeName(exchange),
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares and binds a dead-letter queue for routingKey.
func DeclareDLQQueue(ch *amqp091.Channel, exchange, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		fmt.Sprintf("%s.dlq", routingKey),
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, DLQExchangeName(exchange), false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}
	return q, nil
}

// PublishToDLQ publishes payload to the dead-letter exchange with the failure reason in headers.
func (p *Publisher) PublishToDLQ(ctx context.Context, routingKey string, payload any, originalError string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	headers := amqp091.Table{
		"x-original-error": originalError,
		"x-failed-at":      time.Now().UTC().Format(time.RFC3339),
	}
	return p.publish(ctx, DLQExchangeName(p.exchange), routingKey, body, headers)
}
