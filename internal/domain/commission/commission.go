package commission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes platform revenue from agent earnings.
type Kind string

const (
	KindPlatform Kind = "platform"
	KindAgent    Kind = "agent"
)

// PlatformCommission computes the platform's cut of a booking total.
// rateBps is in basis points; the result is floored.
func PlatformCommission(totalCents, rateBps int64) int64 {
	if totalCents <= 0 || rateBps <= 0 {
		return 0
	}
	return totalCents * rateBps / 10000
}

// AgentCommission computes an agent's earnings from per-person rates.
func AgentCommission(guests int, perPersonCents int64) int64 {
	if guests <= 0 || perPersonCents <= 0 {
		return 0
	}
	return int64(guests) * perPersonCents
}

// Record is a per-booking commission row, created exactly once per kind when
// the payment settles.
type Record struct {
	ID          uuid.UUID
	BookingID   uuid.UUID
	PaymentID   uuid.UUID
	Kind        Kind
	AgentID     *uuid.UUID
	AmountCents int64
	Currency    string
	CreatedAt   time.Time
}

// NewRecord builds a commission record ready for its idempotent insert.
func NewRecord(bookingID, paymentID uuid.UUID, kind Kind, agentID *uuid.UUID, amountCents int64, currency string) *Record {
	return &Record{
		ID:          uuid.New(),
		BookingID:   bookingID,
		PaymentID:   paymentID,
		Kind:        kind,
		AgentID:     agentID,
		AmountCents: amountCents,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}
}

// Repository persists commission records. SaveIdempotent must rely on the
// (booking_id, kind) uniqueness guard so repeated paid-event delivery never
// double-charges.
type Repository interface {
	// SaveIdempotent inserts the record, doing nothing if a record with the
	// same booking id and kind already exists. Returns true when inserted.
	SaveIdempotent(ctx context.Context, rec *Record) (bool, error)

	// CountByBookingID returns the number of commission rows for a booking.
	CountByBookingID(ctx context.Context, bookingID uuid.UUID) (int64, error)
}
