package refund

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for Refund aggregates.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Refund, error)

	// FindByProviderRefundID locates a refund by the gateway-assigned id,
	// used by refund webhooks.
	FindByProviderRefundID(ctx context.Context, providerRefundID string) (*Refund, error)

	// ListByPaymentID lists all refunds for a payment.
	ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*Refund, error)

	// SumProcessedByPaymentID returns the total of already processed refund
	// amounts for a payment (the partial-refund ledger).
	SumProcessedByPaymentID(ctx context.Context, paymentID uuid.UUID) (int64, error)

	Save(ctx context.Context, r *Refund) error
	Update(ctx context.Context, r *Refund) error
}
