package provider

import (
	"context"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
)

// MetadataCaptureID is the payment metadata key under which capture-based
// adapters store the capture id that refunds must target.
const MetadataCaptureID = "capture_id"

// Intent carries everything an adapter needs to create a remote transaction.
type Intent struct {
	Reference      string // our payment id, echoed back by the gateway
	AmountCents    int64
	Currency       string
	Method         string
	CustomerEmail  string
	RedirectURL    string
	IdempotencyKey string
	// MethodData holds per-method fields (card token, PSE bank code, phone
	// number). Interpreted by the adapter's method strategy.
	MethodData map[string]string
}

// Payment is the normalized result of creating or querying a remote
// transaction.
type Payment struct {
	ProviderPaymentID string
	CheckoutURL       string
	Status            payment.Status
	Metadata          map[string]any
}

// RefundRequest carries everything an adapter needs to create a remote refund.
type RefundRequest struct {
	ProviderPaymentID string
	// CaptureID is the capture to refund against, for gateways with an
	// explicit two-phase capture.
	CaptureID   string
	AmountCents int64
	Currency    string
	Reason      string
}

// Refund is the normalized result of a remote refund operation.
type Refund struct {
	ProviderRefundID string
	Status           refund.Status
}

// EventMeta is the pre-validation metadata of a webhook delivery: the natural
// event id used for deduplication and the gateway-reported timestamp used for
// the max-age gate.
type EventMeta struct {
	ID        string
	Timestamp time.Time
}

// WebhookEvent is a validated, normalized webhook payload.
type WebhookEvent struct {
	EventType         string
	ProviderPaymentID string
	Reference         string
	ProviderRefundID  string
	Status            payment.Status
	RefundStatus      refund.Status
	IsRefund          bool
	Metadata          map[string]any
	RawPayload        []byte
}

// Provider is the gateway-neutral contract every adapter implements. Adapters
// perform network calls only; they never touch the database.
type Provider interface {
	// Name returns the provider's registry key.
	Name() string

	// SettlementCurrency returns the fixed currency this gateway settles in.
	SettlementCurrency() string

	// CreatePayment creates the remote transaction for an intent.
	CreatePayment(ctx context.Context, intent Intent) (*Payment, error)

	// GetPaymentStatus queries the gateway for the transaction's current state.
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (*Payment, error)

	// CreateRefund creates a remote refund.
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)

	// GetRefundStatus queries the gateway for a refund's current state.
	GetRefundStatus(ctx context.Context, providerRefundID string) (*Refund, error)

	// ParseEventMeta extracts the natural event id and timestamp from a raw
	// webhook payload without verifying it.
	ParseEventMeta(payload []byte) (EventMeta, error)

	// ValidateWebhook verifies the delivery's signature and normalizes the
	// payload. headers carries gateway-specific signature material.
	ValidateWebhook(ctx context.Context, payload []byte, headers map[string]string) (*WebhookEvent, error)
}

// Capturer is implemented by adapters whose gateway requires an explicit
// second capture step to finalize an authorized charge.
type Capturer interface {
	// CapturePayment finalizes an authorized transaction and returns the
	// capture id refunds must target.
	CapturePayment(ctx context.Context, providerPaymentID string) (captureID string, err error)
}

// Canceller is implemented by adapters that support voiding an uncaptured
// remote transaction.
type Canceller interface {
	CancelPayment(ctx context.Context, providerPaymentID string) error
}
