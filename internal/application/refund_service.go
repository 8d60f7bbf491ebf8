package application

import (
	"context"
	"fmt"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"github.com/AndesTrek-Travel/service-payments/internal/provider"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateRefundRequest is the DTO for requesting a refund.
type CreateRefundRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Reason      string `json:"reason" binding:"required"`
}

// RefundDTO is the API response DTO for refund data.
type RefundDTO struct {
	ID               uuid.UUID  `json:"id"`
	PaymentID        uuid.UUID  `json:"payment_id"`
	AmountCents      int64      `json:"amount_cents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	Reason           string     `json:"reason"`
	ProviderRefundID string     `json:"provider_refund_id,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RefundService executes refunds against the gateway and keeps the partial
// refund ledger consistent: the processed sum for a payment never exceeds
// the paid amount.
type RefundService struct {
	txm       TxManager
	providers *provider.Factory
	notifier  notify.Notifier
	window    time.Duration
	logger    *zap.Logger
}

// NewRefundService creates a RefundService. window is the post-payment period
// during which refunds are accepted.
func NewRefundService(txm TxManager, providers *provider.Factory, notifier notify.Notifier, window time.Duration, logger *zap.Logger) *RefundService {
	return &RefundService{
		txm:       txm,
		providers: providers,
		notifier:  notifier,
		window:    window,
		logger:    logger,
	}
}

// CreateRefund requests a (possibly partial) refund of a paid payment.
// requestedBy is nil for system-initiated refunds, which also skip the
// ownership check. checkWindow enforces the post-payment refund window;
// admin goodwill refunds may waive it. The ledger check and the pending
// insert share one transaction; the gateway call runs outside it.
func (s *RefundService) CreateRefund(ctx context.Context, paymentID uuid.UUID, requestedBy *uuid.UUID, checkWindow bool, req CreateRefundRequest) (*RefundDTO, error) {
	var (
		p  *payment.Payment
		rf *refund.Refund
	)
	err := s.txm.Do(ctx, func(r *Repos) error {
		found, err := r.Payments.FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if requestedBy != nil {
			b, err := r.Bookings.FindByID(ctx, found.BookingID())
			if err != nil {
				return err
			}
			if !b.IsOwnedBy(*requestedBy) {
				return domainerr.NewNotFoundError("Payment", paymentID.String())
			}
		}
		if found.Status() != payment.StatusPaid {
			return domainerr.NewValidationError("only paid payments can be refunded")
		}

		paidAt := found.PaidAt()
		if paidAt == nil {
			return domainerr.NewInvalidStateError(string(found.Status()), "refundable")
		}
		if checkWindow {
			if elapsed := time.Since(*paidAt); elapsed > s.window {
				return domainerr.NewValidationError(fmt.Sprintf(
					"refund window of %.0fh expired %.0fh ago",
					s.window.Hours(), (elapsed - s.window).Hours()))
			}
		}

		if req.AmountCents > found.AmountCents() {
			return domainerr.NewValidationError("refund amount exceeds payment amount")
		}
		processedSum, err := r.Refunds.SumProcessedByPaymentID(ctx, found.ID())
		if err != nil {
			return err
		}
		if req.AmountCents+processedSum > found.AmountCents() {
			return domainerr.NewConflictError(fmt.Sprintf(
				"refund of %d would exceed refundable balance of %d",
				req.AmountCents, found.AmountCents()-processedSum))
		}

		p = found
		rf = refund.NewRefund(found.ID(), req.AmountCents, found.Currency(), req.Reason, requestedBy)
		return r.Refunds.Save(ctx, rf)
	})
	if err != nil {
		return nil, err
	}

	adapter, err := s.providers.Get(p.Provider())
	if err != nil {
		return nil, err
	}

	refundReq := provider.RefundRequest{
		ProviderPaymentID: p.ProviderPaymentID(),
		AmountCents:       rf.AmountCents(),
		Currency:          rf.Currency(),
		Reason:            rf.Reason(),
	}
	if _, ok := adapter.(provider.Capturer); ok {
		captureID := p.MetadataString(provider.MetadataCaptureID)
		if captureID == "" {
			return nil, s.failRefund(ctx, rf, "payment has no recorded capture to refund against")
		}
		refundReq.CaptureID = captureID
	}

	remote, rerr := adapter.CreateRefund(ctx, refundReq)
	if rerr != nil {
		return nil, s.failRefund(ctx, rf, rerr.Error())
	}

	err = s.txm.Do(ctx, func(r *Repos) error {
		rf.AttachProvider(remote.ProviderRefundID)
		if remote.Status == refund.StatusProcessed {
			if err := rf.MarkProcessed(); err != nil {
				return err
			}
		} else if remote.Status == refund.StatusFailed {
			if err := rf.MarkFailed("provider declined the refund"); err != nil {
				return err
			}
		}
		rf.IncrementVersion()
		return r.Refunds.Update(ctx, rf)
	})
	if err != nil {
		return nil, err
	}

	if rf.Status() == refund.StatusProcessed {
		s.notifyProcessed(ctx, rf)
	}

	s.logger.Info("refund created",
		zap.String("refund_id", rf.ID().String()),
		zap.String("payment_id", p.ID().String()),
		zap.Int64("amount_cents", rf.AmountCents()),
		zap.String("status", string(rf.Status())),
	)
	dto := toRefundDTO(rf)
	return &dto, nil
}

// ListRefunds returns all refunds recorded for a payment.
func (s *RefundService) ListRefunds(ctx context.Context, paymentID uuid.UUID) ([]RefundDTO, error) {
	var dtos []RefundDTO
	err := s.txm.Do(ctx, func(r *Repos) error {
		if _, err := r.Payments.FindByID(ctx, paymentID); err != nil {
			return err
		}
		refunds, err := r.Refunds.ListByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		dtos = make([]RefundDTO, len(refunds))
		for i, rf := range refunds {
			dtos[i] = toRefundDTO(rf)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dtos, nil
}

// ApplyRefundWebhook applies a gateway refund event to the matching refund
// row. Runs inside the webhook transaction; already-processed refunds make
// redelivery a no-op.
func (s *RefundService) ApplyRefundWebhook(ctx context.Context, r *Repos, evt *provider.WebhookEvent) error {
	if evt.ProviderRefundID == "" {
		return domainerr.NewValidationError("refund event carries no refund id")
	}
	rf, err := r.Refunds.FindByProviderRefundID(ctx, evt.ProviderRefundID)
	if err != nil {
		if domainerr.IsNotFound(err) {
			s.logger.Warn("refund event matched no refund",
				zap.String("provider_refund_id", evt.ProviderRefundID),
			)
			return nil
		}
		return err
	}
	if rf.Status() == evt.RefundStatus {
		return nil
	}

	switch evt.RefundStatus {
	case refund.StatusProcessed:
		if err := rf.MarkProcessed(); err != nil {
			return err
		}
	case refund.StatusFailed:
		if err := rf.MarkFailed(evt.EventType); err != nil {
			return err
		}
	default:
		return nil
	}
	rf.IncrementVersion()
	if err := r.Refunds.Update(ctx, rf); err != nil {
		return err
	}

	if rf.Status() == refund.StatusProcessed {
		s.notifyProcessed(ctx, rf)
	}
	return nil
}

// failRefund marks the refund failed with the given reason and returns the
// provider error to surface to the caller.
func (s *RefundService) failRefund(ctx context.Context, rf *refund.Refund, reason string) error {
	uerr := s.txm.Do(ctx, func(r *Repos) error {
		if err := rf.MarkFailed(reason); err != nil {
			return err
		}
		rf.IncrementVersion()
		return r.Refunds.Update(ctx, rf)
	})
	if uerr != nil {
		s.logger.Error("failed to mark refund failed",
			zap.String("refund_id", rf.ID().String()),
			zap.Error(uerr),
		)
	}
	return domainerr.NewProviderError("refund", fmt.Errorf("%s", reason))
}

func (s *RefundService) notifyProcessed(ctx context.Context, rf *refund.Refund) {
	evt := notify.RefundProcessedEvent{
		RefundID:    rf.ID(),
		PaymentID:   rf.PaymentID(),
		AmountCents: rf.AmountCents(),
		Currency:    rf.Currency(),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.SendRefundProcessed(ctx, evt); err != nil {
		s.logger.Error("failed to send refund notification",
			zap.String("refund_id", rf.ID().String()),
			zap.Error(err),
		)
	}
}

func toRefundDTO(rf *refund.Refund) RefundDTO {
	return RefundDTO{
		ID:               rf.ID(),
		PaymentID:        rf.PaymentID(),
		AmountCents:      rf.AmountCents(),
		Currency:         rf.Currency(),
		Status:           string(rf.Status()),
		Reason:           rf.Reason(),
		ProviderRefundID: rf.ProviderRefundID(),
		FailureReason:    rf.FailureReason(),
		ProcessedAt:      rf.ProcessedAt(),
		CreatedAt:        rf.CreatedAt(),
	}
}
