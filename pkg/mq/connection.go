package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchangeName is the topic exchange reminder events are published to.
// Its dead-letter twin is DLQExchangeName(DefaultExchangeName).
const DefaultExchangeName = "reminders"

// NewConnection dials the broker. Publishers own one connection each.
func NewConnection(url string) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares a durable topic exchange.
func DeclareExchange(ch *amqp091.Channel, name string) error {
	return ch.ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// declareTopology sets up everything a reminder publisher writes to: the
// event exchange, its dead-letter exchange, and a <key>.dlq queue for each
// failure routing key so undelivered reminders are kept for operators.
func declareTopology(ch *amqp091.Channel, exchange string, dlqRoutingKeys []string) error {
	if err := DeclareExchange(ch, exchange); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch, exchange); err != nil {
		return fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	for _, key := range dlqRoutingKeys {
		if _, err := DeclareDLQQueue(ch, exchange, key); err != nil {
			return err
		}
	}
	return nil
}
