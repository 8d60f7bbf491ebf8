package capacity

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for capacity slots. Update must
// compare-and-swap on the version column; a concurrent write surfaces as a
// conflict error so the caller can re-fetch and retry.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	Save(ctx context.Context, s *Slot) error
	Update(ctx context.Context, s *Slot) error
}
