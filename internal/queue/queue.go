package queue

import (
	"context"
	"time"
)

// Message is a received queue message. Receipt is transport-specific delivery
// state consumed by DeleteMessage.
type Message struct {
	Body    []byte
	Receipt any
}

// Transport is the at-least-once queue contract the reconciliation loop runs
// on. A message stays deliverable until DeleteMessage acknowledges it, so a
// crash mid-processing leads to redelivery rather than loss.
type Transport interface {
	// SendMessage enqueues a message on the named queue.
	SendMessage(ctx context.Context, queue string, body []byte) error

	// ReceiveMessages long-polls the named queue for up to max messages,
	// waiting at most wait for the first one.
	ReceiveMessages(ctx context.Context, queue string, max int, wait time.Duration) ([]Message, error)

	// DeleteMessage acknowledges a processed message. Unacknowledged messages
	// are redelivered.
	DeleteMessage(ctx context.Context, queue string, msg Message) error
}
