package booking

import (
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
)

// Status is the booking lifecycle as seen by the payments service. Bookings
// are created elsewhere; this service only confirms or observes them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Booking is the payment-relevant view of a booking.
type Booking struct {
	id          uuid.UUID
	ownerID     uuid.UUID
	resortID    uuid.UUID
	agentID     *uuid.UUID
	slotID      uuid.UUID
	guests      int
	totalCents  int64
	currency    string
	status      Status
	confirmedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

func (b *Booking) ID() uuid.UUID { return b.id }
func (b *Booking) OwnerID() uuid.UUID { return b.ownerID }
func (b *Booking) ResortID() uuid.UUID { return b.resortID }
func (b *Booking) AgentID() *uuid.UUID { return b.agentID }
func (b *Booking) SlotID() uuid.UUID { return b.slotID }
func (b *Booking) Guests() int { return b.guests }
func (b *Booking) TotalCents() int64 { return b.totalCents }
func (b *Booking) Currency() string { return b.currency }
func (b *Booking) Status() Status { return b.status }
func (b *Booking) ConfirmedAt() *time.Time { return b.confirmedAt }
func (b *Booking) CreatedAt() time.Time { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsOwnedBy reports whether the given user owns this booking.
func (b *Booking) IsOwnedBy(userID uuid.UUID) bool { return b.ownerID == userID }

// Confirm transitions the booking to confirmed when its payment settles.
// Idempotent: confirming a confirmed booking is a no-op.
func (b *Booking) Confirm() error {
	if b.status == StatusConfirmed {
		return nil
	}
	if b.status != StatusPending {
		return domainerr.NewInvalidStateError(string(b.status), string(StatusConfirmed))
	}
	now := time.Now().UTC()
	b.status = StatusConfirmed
	b.confirmedAt = &now
	b.updatedAt = now
	return nil
}

// Reconstitute rebuilds a Booking from persisted data.
func Reconstitute(
	id, ownerID, resortID uuid.UUID,
	agentID *uuid.UUID,
	slotID uuid.UUID,
	guests int,
	totalCents int64,
	currency string,
	status Status,
	confirmedAt *time.Time,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		id:          id,
		ownerID:     ownerID,
		resortID:    resortID,
		agentID:     agentID,
		slotID:      slotID,
		guests:      guests,
		totalCents:  totalCents,
		currency:    currency,
		status:      status,
		confirmedAt: confirmedAt,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// AgentAgreement is the active commission agreement between an agent and a
// resort, read-only from this service's point of view.
type AgentAgreement struct {
	ID             uuid.UUID
	AgentID        uuid.UUID
	ResortID       uuid.UUID
	PerPersonCents int64
	Active         bool
}
