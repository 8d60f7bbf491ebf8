package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event types published to the notification topic. Delivery (email/push) is
// another service's job; this one only announces what happened.
const (
	TopicNotifications    = "payment.notifications"
	EventPaymentConfirmed = "payment.confirmed"
	EventRefundProcessed  = "payment.refund.processed"
)

// PaymentConfirmedEvent announces a settled payment.
type PaymentConfirmedEvent struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	BookingID   uuid.UUID `json:"booking_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RefundProcessedEvent announces a completed refund.
type RefundProcessedEvent struct {
	RefundID    uuid.UUID `json:"refund_id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Notifier is the fire-and-forget notification collaborator. Errors are for
// the caller to log, never to act on.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, evt PaymentConfirmedEvent) error
	SendRefundProcessed(ctx context.Context, evt RefundProcessedEvent) error
}

// KafkaNotifier publishes CloudEvent-enveloped notification events to Kafka.
type KafkaNotifier struct {
	writer *kafkago.Writer
	source string
	logger *zap.Logger
}

// NewKafkaNotifier creates a notifier publishing to the notification topic.
func NewKafkaNotifier(brokers []string, source string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Topic:                  TopicNotifications,
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		source: source,
		logger: logger,
	}
}

func (n *KafkaNotifier) SendPaymentConfirmation(ctx context.Context, evt PaymentConfirmedEvent) error {
	return n.publish(ctx, EventPaymentConfirmed, evt.PaymentID.String(), evt)
}

func (n *KafkaNotifier) SendRefundProcessed(ctx context.Context, evt RefundProcessedEvent) error {
	return n.publish(ctx, EventRefundProcessed, evt.RefundID.String(), evt)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType, key string, data any) error {
	ce, err := NewCloudEvent(n.source, eventType, data)
	if err != nil {
		return err
	}
	value, err := json.Marshal(ce)
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(key),
		Value: value,
	})
}

// Close releases the underlying writer.
func (n *KafkaNotifier) Close() error { return n.writer.Close() }
