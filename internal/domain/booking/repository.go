package booking

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for bookings.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
}

// LockRepository manages inventory locks, the temporary slot-capacity holds
// created when a booking is placed.
type LockRepository interface {
	// ConsumeByBookingID stamps consumed_at on the booking's inventory lock.
	// Only rows with consumed_at IS NULL are touched, so redelivered paid
	// events are no-ops. Returns the number of rows consumed.
	ConsumeByBookingID(ctx context.Context, bookingID uuid.UUID) (int64, error)
}

// AgreementRepository resolves active agent agreements.
type AgreementRepository interface {
	// FindActive returns the active agreement between agent and resort, or a
	// not-found error.
	FindActive(ctx context.Context, agentID, resortID uuid.UUID) (*AgentAgreement, error)
}
