package payment

import (
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
)

// Status is the canonical payment status vocabulary. Every gateway's native
// vocabulary is mapped onto these by its adapter.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether s counts against the one-active-payment-per-booking
// invariant. Pending attempts do not: an abandoned checkout may be superseded
// by a fresh attempt, and expiry or the orphan sweep cleans it up.
func (s Status) IsActive() bool {
	return s == StatusPaid || s == StatusAuthorized
}

// Payment is the aggregate root for a settlement attempt against a booking.
type Payment struct {
	id                uuid.UUID
	bookingID         uuid.UUID
	provider          string
	providerPaymentID string
	providerReference string
	amountCents       int64
	currency          string
	status            Status
	paymentMethod     string
	idempotencyKey    string
	checkoutURL       string
	expiresAt         time.Time
	authorizedAt      *time.Time
	paidAt            *time.Time
	failedAt          *time.Time
	cancelledAt       *time.Time
	failureReason     string
	providerMetadata  map[string]any
	version           int64
	createdAt         time.Time
	updatedAt         time.Time
}

// NewPayment creates a pending payment for a booking. The provider reference
// defaults to the payment id; adapters send it as the gateway-side reference.
func NewPayment(bookingID uuid.UUID, provider string, amountCents int64, currency, method, idempotencyKey string, expiry time.Duration) *Payment {
	now := time.Now().UTC()
	id := uuid.New()
	return &Payment{
		id:                id,
		bookingID:         bookingID,
		provider:          provider,
		providerReference: id.String(),
		amountCents:       amountCents,
		currency:          currency,
		status:            StatusPending,
		paymentMethod:     method,
		idempotencyKey:    idempotencyKey,
		expiresAt:         now.Add(expiry),
		providerMetadata:  map[string]any{},
		version:           1,
		createdAt:         now,
		updatedAt:         now,
	}
}

func (p *Payment) ID() uuid.UUID { return p.id }
func (p *Payment) BookingID() uuid.UUID { return p.bookingID }
func (p *Payment) Provider() string { return p.provider }
func (p *Payment) ProviderPaymentID() string { return p.providerPaymentID }
func (p *Payment) ProviderReference() string { return p.providerReference }
func (p *Payment) AmountCents() int64 { return p.amountCents }
func (p *Payment) Currency() string { return p.currency }
func (p *Payment) Status() Status { return p.status }
func (p *Payment) PaymentMethod() string { return p.paymentMethod }
func (p *Payment) IdempotencyKey() string { return p.idempotencyKey }
func (p *Payment) CheckoutURL() string { return p.checkoutURL }
func (p *Payment) ExpiresAt() time.Time { return p.expiresAt }
func (p *Payment) AuthorizedAt() *time.Time { return p.authorizedAt }
func (p *Payment) PaidAt() *time.Time { return p.paidAt }
func (p *Payment) FailedAt() *time.Time { return p.failedAt }
func (p *Payment) CancelledAt() *time.Time { return p.cancelledAt }
func (p *Payment) FailureReason() string { return p.failureReason }
func (p *Payment) ProviderMetadata() map[string]any { return p.providerMetadata }
func (p *Payment) Version() int64 { return p.version }
func (p *Payment) CreatedAt() time.Time { return p.createdAt }
func (p *Payment) UpdatedAt() time.Time { return p.updatedAt }

// MetadataString returns a string metadata value, or "" when absent.
func (p *Payment) MetadataString(key string) string {
	if p.providerMetadata == nil {
		return ""
	}
	if v, ok := p.providerMetadata[key].(string); ok {
		return v
	}
	return ""
}

// AttachProvider records the remote transaction created by the gateway.
func (p *Payment) AttachProvider(providerPaymentID, checkoutURL string, metadata map[string]any) {
	p.providerPaymentID = providerPaymentID
	p.checkoutURL = checkoutURL
	if metadata != nil {
		for k, v := range metadata {
			p.providerMetadata[k] = v
		}
	}
	p.updatedAt = time.Now().UTC()
}

// MergeMetadata folds additional gateway metadata into the payment.
func (p *Payment) MergeMetadata(metadata map[string]any) {
	for k, v := range metadata {
		p.providerMetadata[k] = v
	}
	p.updatedAt = time.Now().UTC()
}

// ApplyProviderStatus transitions the payment to the status reported by the
// gateway, stamping the matching terminal timestamp. Both the webhook and
// reconciliation paths converge here.
func (p *Payment) ApplyProviderStatus(status Status, failureReason string) error {
	if p.status == status {
		return nil
	}
	if p.status.IsTerminal() {
		return domainerr.NewInvalidStateError(string(p.status), string(status))
	}
	now := time.Now().UTC()
	switch status {
	case StatusAuthorized:
		p.authorizedAt = &now
	case StatusPaid:
		p.paidAt = &now
	case StatusFailed:
		p.failedAt = &now
		p.failureReason = failureReason
	case StatusCancelled:
		p.cancelledAt = &now
	case StatusExpired, StatusPending:
		// No timestamp column for these.
	default:
		return domainerr.NewValidationError("unknown payment status: " + string(status))
	}
	p.status = status
	p.updatedAt = now
	return nil
}

// Fail marks the payment failed with a reason. Used when the remote create
// call fails after the local row exists.
func (p *Payment) Fail(reason string) error {
	return p.ApplyProviderStatus(StatusFailed, reason)
}

// Cancel transitions the payment to cancelled. Only pending and authorized
// payments may be cancelled.
func (p *Payment) Cancel() error {
	if p.status != StatusPending && p.status != StatusAuthorized {
		return domainerr.NewInvalidStateError(string(p.status), string(StatusCancelled))
	}
	return p.ApplyProviderStatus(StatusCancelled, "")
}

// IsExpired reports whether the advisory expiry has passed for a still
// pending payment.
func (p *Payment) IsExpired() bool {
	return p.status == StatusPending && time.Now().UTC().After(p.expiresAt)
}

// IncrementVersion bumps the version for optimistic locking.
func (p *Payment) IncrementVersion() {
	p.version++
	p.updatedAt = time.Now().UTC()
}

// Reconstitute rebuilds a Payment from persisted data.
func Reconstitute(
	id, bookingID uuid.UUID,
	provider, providerPaymentID, providerReference string,
	amountCents int64,
	currency string,
	status Status,
	paymentMethod, idempotencyKey, checkoutURL string,
	expiresAt time.Time,
	authorizedAt, paidAt, failedAt, cancelledAt *time.Time,
	failureReason string,
	providerMetadata map[string]any,
	version int64,
	createdAt, updatedAt time.Time,
) *Payment {
	if providerMetadata == nil {
		providerMetadata = map[string]any{}
	}
	return &Payment{
		id:                id,
		bookingID:         bookingID,
		provider:          provider,
		providerPaymentID: providerPaymentID,
		providerReference: providerReference,
		amountCents:       amountCents,
		currency:          currency,
		status:            status,
		paymentMethod:     paymentMethod,
		idempotencyKey:    idempotencyKey,
		checkoutURL:       checkoutURL,
		expiresAt:         expiresAt,
		authorizedAt:      authorizedAt,
		paidAt:            paidAt,
		failedAt:          failedAt,
		cancelledAt:       cancelledAt,
		failureReason:     failureReason,
		providerMetadata:  providerMetadata,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}
