package repository

import (
	"context"
	"errors"
	"time"

	capacityDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/capacity"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SlotModel is the GORM persistence model for availability slots.
type SlotModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ExperienceID  uuid.UUID `gorm:"type:uuid;not null;index"`
	Date          time.Time `gorm:"type:date;not null;index"`
	StartTime     string    `gorm:"type:varchar(8);not null"`
	EndTime       string    `gorm:"type:varchar(8);not null"`
	TotalCapacity int       `gorm:"not null"`
	BookedCount   int       `gorm:"not null;default:0"`
	Active        bool      `gorm:"not null;default:true"`
	Version       int64     `gorm:"not null;default:1"`
	CreatedAt     time.Time `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (SlotModel) TableName() string {
	return "availability_slots"
}

// CapacityRepositoryImpl is the GORM-based implementation of
// capacity.Repository.
type CapacityRepositoryImpl struct {
	db *gorm.DB
}

// NewCapacityRepository creates a new GORM-based capacity repository.
func NewCapacityRepository(db *gorm.DB) *CapacityRepositoryImpl {
	return &CapacityRepositoryImpl{db: db}
}

func (r *CapacityRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*capacityDomain.Slot, error) {
	var model SlotModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("AvailabilitySlot", id.String())
		}
		return nil, err
	}
	return slotToDomain(&model), nil
}

func (r *CapacityRepositoryImpl) Save(ctx context.Context, s *capacityDomain.Slot) error {
	return r.db.WithContext(ctx).Create(slotToModel(s)).Error
}

// Update compares-and-swaps on the version column. Zero rows affected means a
// concurrent writer won; the caller re-fetches and retries.
func (r *CapacityRepositoryImpl) Update(ctx context.Context, s *capacityDomain.Slot) error {
	model := slotToModel(s)
	previousVersion := s.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&SlotModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerr.NewConflictError("slot was modified by another transaction")
	}
	return nil
}

func slotToDomain(model *SlotModel) *capacityDomain.Slot {
	return capacityDomain.Reconstitute(
		model.ID,
		model.ExperienceID,
		model.Date,
		model.StartTime,
		model.EndTime,
		model.TotalCapacity,
		model.BookedCount,
		model.Active,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

func slotToModel(s *capacityDomain.Slot) *SlotModel {
	return &SlotModel{
		ID:            s.ID(),
		ExperienceID:  s.ExperienceID(),
		Date:          s.Date(),
		StartTime:     s.StartTime(),
		EndTime:       s.EndTime(),
		TotalCapacity: s.Total(),
		BookedCount:   s.Booked(),
		Active:        s.Active(),
		Version:       s.Version(),
		CreatedAt:     s.CreatedAt(),
		UpdatedAt:     s.UpdatedAt(),
	}
}
