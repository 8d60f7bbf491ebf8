package webhook

import (
	"context"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
)

// Status tracks the processing lifecycle of a received webhook call.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusProcessed Status = "processed"
	StatusIgnored   Status = "ignored"
	StatusFailed    Status = "failed"
)

// Event is the audit/deduplication record for one inbound webhook delivery.
// The (provider, providerEventID) pair is unique; a second delivery of the
// same event short-circuits before any state is touched.
type Event struct {
	id              uuid.UUID
	provider        string
	providerEventID string
	payload         []byte
	status          Status
	signatureValid  bool
	errorMessage    string
	receivedAt      time.Time
	processedAt     *time.Time
}

// NewEvent records a freshly received webhook delivery.
func NewEvent(provider, providerEventID string, payload []byte) *Event {
	return &Event{
		id:              uuid.New(),
		provider:        provider,
		providerEventID: providerEventID,
		payload:         payload,
		status:          StatusPending,
		receivedAt:      time.Now().UTC(),
	}
}

func (e *Event) ID() uuid.UUID { return e.id }
func (e *Event) Provider() string { return e.provider }
func (e *Event) ProviderEventID() string { return e.providerEventID }
func (e *Event) Payload() []byte { return e.payload }
func (e *Event) Status() Status { return e.status }
func (e *Event) SignatureValid() bool { return e.signatureValid }
func (e *Event) ErrorMessage() string { return e.errorMessage }
func (e *Event) ReceivedAt() time.Time { return e.receivedAt }
func (e *Event) ProcessedAt() *time.Time { return e.processedAt }

// MarkValidated records a passed signature check.
func (e *Event) MarkValidated() {
	e.status = StatusValidated
	e.signatureValid = true
}

// MarkProcessed finalizes a fully applied event.
func (e *Event) MarkProcessed() error {
	return e.finalize(StatusProcessed, "")
}

// MarkIgnored finalizes an event that matched no local payment.
func (e *Event) MarkIgnored(reason string) error {
	return e.finalize(StatusIgnored, reason)
}

// MarkFailed finalizes an event whose processing errored.
func (e *Event) MarkFailed(reason string) error {
	return e.finalize(StatusFailed, reason)
}

func (e *Event) finalize(status Status, message string) error {
	if e.status == StatusProcessed || e.status == StatusIgnored || e.status == StatusFailed {
		return domainerr.NewInvalidStateError(string(e.status), string(status))
	}
	now := time.Now().UTC()
	e.status = status
	e.errorMessage = message
	e.processedAt = &now
	return nil
}

// Reconstitute rebuilds an Event from persisted data.
func Reconstitute(
	id uuid.UUID,
	provider, providerEventID string,
	payload []byte,
	status Status,
	signatureValid bool,
	errorMessage string,
	receivedAt time.Time,
	processedAt *time.Time,
) *Event {
	return &Event{
		id:              id,
		provider:        provider,
		providerEventID: providerEventID,
		payload:         payload,
		status:          status,
		signatureValid:  signatureValid,
		errorMessage:    errorMessage,
		receivedAt:      receivedAt,
		processedAt:     processedAt,
	}
}

// Repository defines the persistence contract for webhook events.
type Repository interface {
	// FindByProviderEventID retrieves the dedup record for a provider event,
	// if one exists.
	FindByProviderEventID(ctx context.Context, provider, providerEventID string) (*Event, error)

	Save(ctx context.Context, e *Event) error
	Update(ctx context.Context, e *Event) error
}
