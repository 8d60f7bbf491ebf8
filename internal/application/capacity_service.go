package application

import (
	"context"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/capacity"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateSlotRequest is the DTO for creating an availability slot.
type CreateSlotRequest struct {
	ExperienceID  uuid.UUID `json:"experience_id" binding:"required"`
	Date          time.Time `json:"date" binding:"required"`
	StartTime     string    `json:"start_time" binding:"required"`
	EndTime       string    `json:"end_time" binding:"required"`
	TotalCapacity int       `json:"total_capacity" binding:"required,gte=0"`
}

// SlotDTO is the API response DTO for slot data.
type SlotDTO struct {
	ID            uuid.UUID `json:"id"`
	ExperienceID  uuid.UUID `json:"experience_id"`
	Date          time.Time `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	TotalCapacity int       `json:"total_capacity"`
	BookedCount   int       `json:"booked_count"`
	Remaining     int       `json:"remaining"`
	Active        bool      `json:"active"`
}

// CapacityService manages availability slot capacity. Mutations use
// optimistic locking with a single retry: two concurrent reservations for
// the last seats resolve to one winner and one conflict.
type CapacityService struct {
	txm    TxManager
	logger *zap.Logger
}

// NewCapacityService creates a CapacityService.
func NewCapacityService(txm TxManager, logger *zap.Logger) *CapacityService {
	return &CapacityService{txm: txm, logger: logger}
}

// CreateSlot creates a new availability slot.
func (s *CapacityService) CreateSlot(ctx context.Context, req CreateSlotRequest) (*SlotDTO, error) {
	slot, err := capacity.NewSlot(req.ExperienceID, req.Date, req.StartTime, req.EndTime, req.TotalCapacity)
	if err != nil {
		return nil, err
	}
	err = s.txm.Do(ctx, func(r *Repos) error {
		return r.Capacity.Save(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	dto := toSlotDTO(slot)
	return &dto, nil
}

// GetSlot retrieves a slot by ID.
func (s *CapacityService) GetSlot(ctx context.Context, slotID uuid.UUID) (*SlotDTO, error) {
	var dto SlotDTO
	err := s.txm.Do(ctx, func(r *Repos) error {
		slot, err := r.Capacity.FindByID(ctx, slotID)
		if err != nil {
			return err
		}
		dto = toSlotDTO(slot)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

// Reserve takes guestCount units of capacity from a slot.
func (s *CapacityService) Reserve(ctx context.Context, slotID uuid.UUID, guestCount int) (*SlotDTO, error) {
	return s.mutate(ctx, slotID, func(slot *capacity.Slot) error {
		return slot.Reserve(guestCount)
	})
}

// Release returns guestCount units of capacity to a slot.
func (s *CapacityService) Release(ctx context.Context, slotID uuid.UUID, guestCount int) (*SlotDTO, error) {
	return s.mutate(ctx, slotID, func(slot *capacity.Slot) error {
		return slot.Release(guestCount)
	})
}

// UpdateTotal changes a slot's total capacity.
func (s *CapacityService) UpdateTotal(ctx context.Context, slotID uuid.UUID, newTotal int) (*SlotDTO, error) {
	return s.mutate(ctx, slotID, func(slot *capacity.Slot) error {
		return slot.UpdateTotal(newTotal)
	})
}

// Deactivate closes a slot for new reservations.
func (s *CapacityService) Deactivate(ctx context.Context, slotID uuid.UUID) (*SlotDTO, error) {
	return s.mutate(ctx, slotID, func(slot *capacity.Slot) error {
		slot.Deactivate()
		return nil
	})
}

// mutate loads, mutates and version-checked-saves a slot, retrying once on a
// conflict with a fresh read. A genuine capacity conflict fails identically on
// the retry, so the extra read is the only cost.
func (s *CapacityService) mutate(ctx context.Context, slotID uuid.UUID, fn func(*capacity.Slot) error) (*SlotDTO, error) {
	var dto SlotDTO
	attempt := func() error {
		return s.txm.Do(ctx, func(r *Repos) error {
			slot, err := r.Capacity.FindByID(ctx, slotID)
			if err != nil {
				return err
			}
			if err := fn(slot); err != nil {
				return err
			}
			slot.IncrementVersion()
			if err := r.Capacity.Update(ctx, slot); err != nil {
				return err
			}
			dto = toSlotDTO(slot)
			return nil
		})
	}

	err := attempt()
	if err != nil && domainerr.IsConflict(err) {
		s.logger.Debug("slot write conflict, retrying",
			zap.String("slot_id", slotID.String()),
		)
		err = attempt()
	}
	if err != nil {
		return nil, err
	}
	return &dto, nil
}

func toSlotDTO(slot *capacity.Slot) SlotDTO {
	return SlotDTO{
		ID:            slot.ID(),
		ExperienceID:  slot.ExperienceID(),
		Date:          slot.Date(),
		StartTime:     slot.StartTime(),
		EndTime:       slot.EndTime(),
		TotalCapacity: slot.Total(),
		BookedCount:   slot.Booked(),
		Remaining:     slot.Remaining(),
		Active:        slot.Active(),
	}
}
