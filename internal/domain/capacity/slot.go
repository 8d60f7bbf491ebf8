package capacity

import (
	"fmt"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
)

// Slot is the aggregate root for a bookable time slot's capacity.
// Invariant: 0 <= booked <= total at all times.
type Slot struct {
	id           uuid.UUID
	experienceID uuid.UUID
	date         time.Time
	startTime    string
	endTime      string
	total        int
	booked       int
	active       bool
	version      int64
	createdAt    time.Time
	updatedAt    time.Time
}

// NewSlot creates an active slot with no reservations.
func NewSlot(experienceID uuid.UUID, date time.Time, startTime, endTime string, total int) (*Slot, error) {
	if total < 0 {
		return nil, domainerr.NewValidationError("slot capacity cannot be negative")
	}
	now := time.Now().UTC()
	return &Slot{
		id:           uuid.New(),
		experienceID: experienceID,
		date:         date,
		startTime:    startTime,
		endTime:      endTime,
		total:        total,
		active:       true,
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

func (s *Slot) ID() uuid.UUID { return s.id }
func (s *Slot) ExperienceID() uuid.UUID { return s.experienceID }
func (s *Slot) Date() time.Time { return s.date }
func (s *Slot) StartTime() string { return s.startTime }
func (s *Slot) EndTime() string { return s.endTime }
func (s *Slot) Total() int { return s.total }
func (s *Slot) Booked() int { return s.booked }
func (s *Slot) Active() bool { return s.active }
func (s *Slot) Version() int64 { return s.version }
func (s *Slot) CreatedAt() time.Time { return s.createdAt }
func (s *Slot) UpdatedAt() time.Time { return s.updatedAt }

// Remaining returns the unreserved capacity.
func (s *Slot) Remaining() int { return s.total - s.booked }

// Reserve takes guestCount units of capacity. Rejects inactive slots, slots
// whose date has passed, and requests exceeding remaining capacity.
func (s *Slot) Reserve(guestCount int) error {
	if guestCount <= 0 {
		return domainerr.NewValidationError("guest count must be positive")
	}
	if !s.active {
		return domainerr.NewValidationError("slot is inactive")
	}
	if s.date.Before(time.Now().UTC().Truncate(24 * time.Hour)) {
		return domainerr.NewValidationError("slot date has passed")
	}
	if guestCount > s.Remaining() {
		return domainerr.NewConflictError(fmt.Sprintf(
			"insufficient capacity: requested %d, remaining %d", guestCount, s.Remaining()))
	}
	s.booked += guestCount
	s.updatedAt = time.Now().UTC()
	return nil
}

// Release returns guestCount units of capacity, floored at zero. Over-release
// from compensating actions is tolerated.
func (s *Slot) Release(guestCount int) error {
	if guestCount <= 0 {
		return domainerr.NewValidationError("guest count must be positive")
	}
	s.booked -= guestCount
	if s.booked < 0 {
		s.booked = 0
	}
	s.updatedAt = time.Now().UTC()
	return nil
}

// UpdateTotal changes the slot's total capacity. Rejects reducing total below
// the current booked count.
func (s *Slot) UpdateTotal(newTotal int) error {
	if newTotal < s.booked {
		return domainerr.NewConflictError(fmt.Sprintf(
			"cannot reduce capacity to %d below booked count %d", newTotal, s.booked))
	}
	s.total = newTotal
	s.updatedAt = time.Now().UTC()
	return nil
}

// Deactivate closes the slot for new reservations.
func (s *Slot) Deactivate() {
	s.active = false
	s.updatedAt = time.Now().UTC()
}

// IncrementVersion bumps the version for optimistic locking.
func (s *Slot) IncrementVersion() {
	s.version++
	s.updatedAt = time.Now().UTC()
}

// Reconstitute rebuilds a Slot from persisted data.
func Reconstitute(
	id, experienceID uuid.UUID,
	date time.Time,
	startTime, endTime string,
	total, booked int,
	active bool,
	version int64,
	createdAt, updatedAt time.Time,
) *Slot {
	return &Slot{
		id:           id,
		experienceID: experienceID,
		date:         date,
		startTime:    startTime,
		endTime:      endTime,
		total:        total,
		booked:       booked,
		active:       active,
		version:      version,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}
