package refund

import (
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
)

// Status is the canonical refund status vocabulary.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Refund is the aggregate root for a (possibly partial) refund of a payment.
type Refund struct {
	id               uuid.UUID
	paymentID        uuid.UUID
	amountCents      int64
	currency         string
	status           Status
	reason           string
	requestedBy      *uuid.UUID
	providerRefundID string
	failureReason    string
	processedAt      *time.Time
	version          int64
	createdAt        time.Time
	updatedAt        time.Time
}

// NewRefund creates a pending refund request. requestedBy is nil for
// system-initiated refunds (cancellation flows).
func NewRefund(paymentID uuid.UUID, amountCents int64, currency, reason string, requestedBy *uuid.UUID) *Refund {
	now := time.Now().UTC()
	return &Refund{
		id:          uuid.New(),
		paymentID:   paymentID,
		amountCents: amountCents,
		currency:    currency,
		status:      StatusPending,
		reason:      reason,
		requestedBy: requestedBy,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (r *Refund) ID() uuid.UUID { return r.id }
func (r *Refund) PaymentID() uuid.UUID { return r.paymentID }
func (r *Refund) AmountCents() int64 { return r.amountCents }
func (r *Refund) Currency() string { return r.currency }
func (r *Refund) Status() Status { return r.status }
func (r *Refund) Reason() string { return r.reason }
func (r *Refund) RequestedBy() *uuid.UUID { return r.requestedBy }
func (r *Refund) ProviderRefundID() string { return r.providerRefundID }
func (r *Refund) FailureReason() string { return r.failureReason }
func (r *Refund) ProcessedAt() *time.Time { return r.processedAt }
func (r *Refund) Version() int64 { return r.version }
func (r *Refund) CreatedAt() time.Time { return r.createdAt }
func (r *Refund) UpdatedAt() time.Time { return r.updatedAt }

// AttachProvider records the gateway-assigned refund id.
func (r *Refund) AttachProvider(providerRefundID string) {
	r.providerRefundID = providerRefundID
	r.updatedAt = time.Now().UTC()
}

// MarkProcessed finalizes a successful refund. Idempotent.
func (r *Refund) MarkProcessed() error {
	if r.status == StatusProcessed {
		return nil
	}
	if r.status != StatusPending {
		return domainerr.NewInvalidStateError(string(r.status), string(StatusProcessed))
	}
	now := time.Now().UTC()
	r.status = StatusProcessed
	r.processedAt = &now
	r.updatedAt = now
	return nil
}

// MarkFailed records a gateway-side refund failure.
func (r *Refund) MarkFailed(reason string) error {
	if r.status != StatusPending {
		return domainerr.NewInvalidStateError(string(r.status), string(StatusFailed))
	}
	r.status = StatusFailed
	r.failureReason = reason
	r.updatedAt = time.Now().UTC()
	return nil
}

// Cancel voids a pending refund request.
func (r *Refund) Cancel() error {
	if r.status != StatusPending {
		return domainerr.NewInvalidStateError(string(r.status), string(StatusCancelled))
	}
	r.status = StatusCancelled
	r.updatedAt = time.Now().UTC()
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (r *Refund) IncrementVersion() {
	r.version++
	r.updatedAt = time.Now().UTC()
}

// Reconstitute rebuilds a Refund from persisted data.
func Reconstitute(
	id, paymentID uuid.UUID,
	amountCents int64,
	currency string,
	status Status,
	reason string,
	requestedBy *uuid.UUID,
	providerRefundID, failureReason string,
	processedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Refund {
	return &Refund{
		id:               id,
		paymentID:        paymentID,
		amountCents:      amountCents,
		currency:         currency,
		status:           status,
		reason:           reason,
		requestedBy:      requestedBy,
		providerRefundID: providerRefundID,
		failureReason:    failureReason,
		processedAt:      processedAt,
		version:          version,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}
