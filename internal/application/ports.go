package application

import (
	"context"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/booking"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/capacity"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/commission"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/webhook"
	"github.com/google/uuid"
)

// Repos bundles the repositories participating in a transaction. A TxManager
// hands a transaction-scoped Repos to the callback; everything done through
// it commits or rolls back together.
type Repos struct {
	Payments    payment.Repository
	Refunds     refund.Repository
	Webhooks    webhook.Repository
	Bookings    booking.Repository
	Locks       booking.LockRepository
	Agreements  booking.AgreementRepository
	Commissions commission.Repository
	Capacity    capacity.Repository
}

// TxManager runs a function inside a single database transaction.
type TxManager interface {
	Do(ctx context.Context, fn func(r *Repos) error) error
}

// CouponService marks booking coupons as permanently used once payment
// settles. External collaborator; failures are logged, never propagated.
type CouponService interface {
	MarkCouponsUsedForBooking(ctx context.Context, bookingID uuid.UUID) error
}
