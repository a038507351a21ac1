package delivery

import (
	"context"
	"fmt"
	"time"

	contractmq "creatorreminder/contracts/mq"
	"creatorreminder/pkg/trace"
)

// MQSender hands the message to a downstream mail worker over RabbitMQ.
// Success means the broker accepted the message.
type MQSender struct {
	publisher Publisher
	now       func() time.Time
}

func NewMQSender(publisher Publisher) *MQSender {
	return &MQSender{publisher: publisher, now: time.Now}
}

func (s *MQSender) Send(ctx context.Context, to, subject, body string) error {
	payload := contractmq.EmailRequestedPayload{
		To:          to,
		Subject:     subject,
		Body:        body,
		RequestedAt: s.now(),
		TraceID:     trace.FromContext(ctx),
	}
	if err := s.publisher.PublishWithContext(ctx, contractmq.RoutingKeyReminderEmailRequested, payload); err != nil {
		return fmt.Errorf("publish %s: %w", contractmq.RoutingKeyReminderEmailRequested, err)
	}
	return nil
}
