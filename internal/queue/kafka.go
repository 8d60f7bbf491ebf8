package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaTransport implements Transport over Kafka topics. Offsets are committed
// only by DeleteMessage, so an uncommitted message is redelivered after a
// restart or consumer-group rebalance, the Kafka analogue of a visibility
// timeout.
type KafkaTransport struct {
	brokers []string
	groupID string
	logger  *zap.Logger

	writer *kafkago.Writer

	mu      sync.Mutex
	readers map[string]*kafkago.Reader
}

// NewKafkaTransport creates a transport over the given brokers. groupID scopes
// the consumer side; producers are unaffected by it.
func NewKafkaTransport(brokers []string, groupID string, logger *zap.Logger) *KafkaTransport {
	return &KafkaTransport{
		brokers: brokers,
		groupID: groupID,
		logger:  logger,
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		readers: map[string]*kafkago.Reader{},
	}
}

// SendMessage publishes a message on the topic.
func (t *KafkaTransport) SendMessage(ctx context.Context, topic string, body []byte) error {
	err := t.writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Value: body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// ReceiveMessages fetches up to max messages, waiting at most wait for the
// first. Fetched messages are not committed; call DeleteMessage after
// processing each one.
func (t *KafkaTransport) ReceiveMessages(ctx context.Context, topic string, max int, wait time.Duration) ([]Message, error) {
	reader := t.readerFor(topic)

	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var messages []Message
	for len(messages) < max {
		msg, err := reader.FetchMessage(fetchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			return messages, fmt.Errorf("failed to fetch from %s: %w", topic, err)
		}
		messages = append(messages, Message{Body: msg.Value, Receipt: msg})
	}
	return messages, nil
}

// DeleteMessage commits the message's offset, acknowledging it.
func (t *KafkaTransport) DeleteMessage(ctx context.Context, topic string, msg Message) error {
	raw, ok := msg.Receipt.(kafkago.Message)
	if !ok {
		return fmt.Errorf("message receipt is not a kafka message")
	}
	reader := t.readerFor(topic)
	if err := reader.CommitMessages(ctx, raw); err != nil {
		return fmt.Errorf("failed to commit offset on %s: %w", topic, err)
	}
	return nil
}

func (t *KafkaTransport) readerFor(topic string) *kafkago.Reader {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.readers[topic]; ok {
		return r
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  t.brokers,
		GroupID:  t.groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	t.readers[topic] = r
	return r
}

// Close releases the writer and all readers.
func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.writer.Close()
	for _, r := range t.readers {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
