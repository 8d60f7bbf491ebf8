package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Payment aggregates.
type Repository interface {
	// FindByID retrieves a payment by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByIdempotencyKey retrieves a payment by its caller-supplied
	// idempotency key, if one exists.
	FindByIdempotencyKey(ctx context.Context, key string) (*Payment, error)

	// FindActiveByBookingID retrieves a payment in {paid, authorized} for the
	// booking, if one exists.
	FindActiveByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error)

	// FindByBookingID retrieves the latest payment for a booking.
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*Payment, error)

	// FindByProviderPaymentID retrieves a payment by the gateway-assigned id.
	FindByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*Payment, error)

	// FindByProviderReference retrieves a payment by the reference we sent to
	// the gateway.
	FindByProviderReference(ctx context.Context, provider, reference string) (*Payment, error)

	// FindStale lists payments in {pending, authorized} created within the
	// lookback window and not updated for at least staleAfter.
	FindStale(ctx context.Context, lookback, staleAfter time.Duration, limit int) ([]*Payment, error)

	// FindOrphans lists pending payments with no provider payment id older
	// than the grace period (local insert succeeded, remote create did not).
	FindOrphans(ctx context.Context, grace time.Duration, limit int) ([]*Payment, error)

	// ListAll retrieves all payments with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Payment, int64, error)

	// GetRevenueStats returns settled revenue and counts by status (admin).
	GetRevenueStats(ctx context.Context) (totalPaidCents int64, countByStatus map[string]int64, err error)

	// Save persists a new payment aggregate.
	Save(ctx context.Context, p *Payment) error

	// Update persists changes to an existing payment with optimistic locking.
	Update(ctx context.Context, p *Payment) error
}
