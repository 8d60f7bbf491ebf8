package application

import (
	"context"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/commission"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/notify"
	"go.uber.org/zap"
)

// ConfirmationService runs the side effects of a payment reaching paid:
// booking confirmation, inventory-lock consumption, commission creation,
// coupon marking and the confirmation notification. Triggered from both the
// webhook and reconciliation paths, inside the same transaction as the
// payment status change; the commission and lock guards make redelivery safe.
type ConfirmationService struct {
	coupons         CouponService
	notifier        notify.Notifier
	platformRateBps int64
	logger          *zap.Logger
}

// NewConfirmationService creates a ConfirmationService.
func NewConfirmationService(coupons CouponService, notifier notify.Notifier, platformRateBps int64, logger *zap.Logger) *ConfirmationService {
	return &ConfirmationService{
		coupons:         coupons,
		notifier:        notifier,
		platformRateBps: platformRateBps,
		logger:          logger,
	}
}

// Run applies all confirmation side effects for a payment that just became
// paid. r must be transaction-scoped: the booking flip and the commission
// inserts commit atomically with the payment update.
func (s *ConfirmationService) Run(ctx context.Context, r *Repos, p *payment.Payment) error {
	b, err := r.Bookings.FindByID(ctx, p.BookingID())
	if err != nil {
		return err
	}

	if err := b.Confirm(); err != nil {
		return err
	}
	if err := r.Bookings.Update(ctx, b); err != nil {
		return err
	}

	consumed, err := r.Locks.ConsumeByBookingID(ctx, b.ID())
	if err != nil {
		return err
	}
	if consumed == 0 {
		s.logger.Debug("no unconsumed inventory lock for booking",
			zap.String("booking_id", b.ID().String()),
		)
	}

	platformCents := commission.PlatformCommission(b.TotalCents(), s.platformRateBps)
	if platformCents > 0 {
		rec := commission.NewRecord(b.ID(), p.ID(), commission.KindPlatform, nil, platformCents, b.Currency())
		if _, err := r.Commissions.SaveIdempotent(ctx, rec); err != nil {
			return err
		}
	}

	if b.AgentID() != nil {
		agreement, err := r.Agreements.FindActive(ctx, *b.AgentID(), b.ResortID())
		switch {
		case err == nil:
			agentCents := commission.AgentCommission(b.Guests(), agreement.PerPersonCents)
			if agentCents > 0 {
				rec := commission.NewRecord(b.ID(), p.ID(), commission.KindAgent, b.AgentID(), agentCents, b.Currency())
				if _, err := r.Commissions.SaveIdempotent(ctx, rec); err != nil {
					return err
				}
			}
		case domainerr.IsNotFound(err):
			// Agent without an active agreement earns nothing.
		default:
			return err
		}
	}

	// Coupon marking and notification are best-effort: the booking/payment
	// transition is the correctness-critical effect and must not roll back
	// on collaborator failures.
	if err := s.coupons.MarkCouponsUsedForBooking(ctx, b.ID()); err != nil {
		s.logger.Error("failed to mark coupons used",
			zap.String("booking_id", b.ID().String()),
			zap.Error(err),
		)
	}

	evt := notify.PaymentConfirmedEvent{
		PaymentID:   p.ID(),
		BookingID:   b.ID(),
		AmountCents: p.AmountCents(),
		Currency:    p.Currency(),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.SendPaymentConfirmation(ctx, evt); err != nil {
		s.logger.Error("failed to send payment confirmation notification",
			zap.String("payment_id", p.ID().String()),
			zap.Error(err),
		)
	}

	return nil
}
