package reconciliation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"github.com/AndesTrek-Travel/service-payments/internal/config"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/queue"
	"go.uber.org/zap"
)

// Producer periodically sweeps the payments table for drift candidates and
// enqueues reconciliation work: stale in-flight payments that may have
// settled remotely without a webhook landing, and orphan rows whose remote
// transaction was never created.
type Producer struct {
	txm       application.TxManager
	transport queue.Transport
	cfg       config.ReconciliationConfig
	logger    *zap.Logger
}

// NewProducer creates a reconciliation producer.
func NewProducer(txm application.TxManager, transport queue.Transport, cfg config.ReconciliationConfig, logger *zap.Logger) *Producer {
	return &Producer{
		txm:       txm,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. One sweep runs
// immediately on startup.
func (p *Producer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reconciliation producer stopping")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Producer) sweep(ctx context.Context) {
	var candidates []*payment.Payment
	err := p.txm.Do(ctx, func(r *application.Repos) error {
		stale, err := r.Payments.FindStale(ctx, p.cfg.LookbackWindow, p.cfg.StaleAfter, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		orphans, err := r.Payments.FindOrphans(ctx, p.cfg.OrphanGrace, p.cfg.BatchSize)
		if err != nil {
			return err
		}
		candidates = append(stale, orphans...)
		return nil
	})
	if err != nil {
		p.logger.Error("reconciliation sweep query failed", zap.Error(err))
		return
	}
	if len(candidates) == 0 {
		return
	}

	enqueued := 0
	for _, candidate := range candidates {
		msg := ReconcileMessage{
			PaymentID: candidate.ID(),
			Provider:  candidate.Provider(),
			Timestamp: time.Now().UTC(),
		}
		body, err := json.Marshal(msg)
		if err != nil {
			p.logger.Error("failed to marshal reconcile message", zap.Error(err))
			continue
		}
		if err := p.transport.SendMessage(ctx, QueueName, body); err != nil {
			p.logger.Error("failed to enqueue reconcile message",
				zap.String("payment_id", candidate.ID().String()),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	p.logger.Info("reconciliation sweep complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("enqueued", enqueued),
	)
}
