package reconciliation

import (
	"context"
	"encoding/json"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/queue"
	"go.uber.org/zap"
)

// Consumer drains the reconciliation queue, repairing one payment per
// message. A message is acknowledged only after successful processing, so
// transient failures (gateway down, DB conflict) lead to redelivery.
type Consumer struct {
	payments  *application.PaymentService
	transport queue.Transport
	cfg       config.ReconciliationConfig
	logger    *zap.Logger
}

// NewConsumer creates a reconciliation consumer.
func NewConsumer(payments *application.PaymentService, transport queue.Transport, cfg config.ReconciliationConfig, logger *zap.Logger) *Consumer {
	return &Consumer{
		payments:  payments,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run long-polls the queue until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("reconciliation consumer stopping")
			return
		default:
		}

		msgs, err := c.transport.ReceiveMessages(ctx, QueueName, c.cfg.ConsumerMaxMsgs, c.cfg.ConsumerWait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("failed to receive reconcile messages", zap.Error(err))
			continue
		}

		c.handleBatch(ctx, msgs)
	}
}

// handleBatch processes messages in order, acknowledging each on success.
// Offset commits are cumulative per partition, so acknowledging a later
// message would implicitly acknowledge an earlier failed one; on failure the
// rest of the batch is abandoned and redelivered together with it.
func (c *Consumer) handleBatch(ctx context.Context, msgs []queue.Message) {
	for _, msg := range msgs {
		if err := c.process(ctx, msg); err != nil {
			c.logger.Error("failed to reconcile payment, batch will redeliver", zap.Error(err))
			return
		}
		if err := c.transport.DeleteMessage(ctx, QueueName, msg); err != nil {
			c.logger.Error("failed to acknowledge reconcile message", zap.Error(err))
			return
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg queue.Message) error {
	var work ReconcileMessage
	if err := json.Unmarshal(msg.Body, &work); err != nil {
		// Malformed messages can never succeed; drop them.
		c.logger.Warn("dropping malformed reconcile message", zap.Error(err))
		return nil
	}
	return c.payments.ReconcilePayment(ctx, work.PaymentID)
}
