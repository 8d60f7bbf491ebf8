package repository

import (
	"context"
	"errors"
	"time"

	bookingDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/booking"
	commissionDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/commission"
	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BookingModel is the GORM persistence model for the bookings table. The
// table is owned by the booking service; this service reads it and flips the
// status on settlement.
type BookingModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	ResortID    uuid.UUID  `gorm:"type:uuid;not null"`
	AgentID     *uuid.UUID `gorm:"type:uuid"`
	SlotID      uuid.UUID  `gorm:"type:uuid;not null"`
	Guests      int        `gorm:"not null"`
	TotalCents  int64      `gorm:"not null"`
	Currency    string     `gorm:"type:varchar(3);not null"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'"`
	ConfirmedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt   time.Time  `gorm:"type:timestamptz;not null;default:now()"`
}

func (BookingModel) TableName() string { return "bookings" }

// InventoryLockModel is the GORM persistence model for slot-capacity holds.
type InventoryLockModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	BookingID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	SlotID     uuid.UUID  `gorm:"type:uuid;not null"`
	Guests     int        `gorm:"not null"`
	ConsumedAt *time.Time `gorm:"type:timestamptz"`
	ReleasedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt  time.Time  `gorm:"type:timestamptz;not null;default:now()"`
}

func (InventoryLockModel) TableName() string { return "inventory_locks" }

// AgentAgreementModel is the GORM persistence model for agent agreements.
type AgentAgreementModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	AgentID        uuid.UUID `gorm:"type:uuid;not null;index"`
	ResortID       uuid.UUID `gorm:"type:uuid;not null;index"`
	PerPersonCents int64     `gorm:"not null"`
	Active         bool      `gorm:"not null;default:true"`
	CreatedAt      time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (AgentAgreementModel) TableName() string { return "agent_agreements" }

// CommissionModel is the GORM persistence model for commission rows.
// (booking_id, kind) is unique so repeated paid events insert at most once.
type CommissionModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	BookingID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_commission_booking_kind"`
	PaymentID   uuid.UUID  `gorm:"type:uuid;not null"`
	Kind        string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_commission_booking_kind"`
	AgentID     *uuid.UUID `gorm:"type:uuid"`
	AmountCents int64      `gorm:"not null"`
	Currency    string     `gorm:"type:varchar(3);not null"`
	CreatedAt   time.Time  `gorm:"type:timestamptz;not null;default:now()"`
}

func (CommissionModel) TableName() string { return "commissions" }

// BookingRepositoryImpl is the GORM-based implementation of
// booking.Repository.
type BookingRepositoryImpl struct {
	db *gorm.DB
}

// NewBookingRepository creates a new GORM-based booking repository.
func NewBookingRepository(db *gorm.DB) *BookingRepositoryImpl {
	return &BookingRepositoryImpl{db: db}
}

func (r *BookingRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Booking", id.String())
		}
		return nil, err
	}
	return bookingDomain.Reconstitute(
		model.ID,
		model.OwnerID,
		model.ResortID,
		model.AgentID,
		model.SlotID,
		model.Guests,
		model.TotalCents,
		model.Currency,
		bookingDomain.Status(model.Status),
		model.ConfirmedAt,
		model.CreatedAt,
		model.UpdatedAt,
	), nil
}

func (r *BookingRepositoryImpl) Update(ctx context.Context, b *bookingDomain.Booking) error {
	return r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ?", b.ID()).
		Updates(map[string]any{
			"status":       string(b.Status()),
			"confirmed_at": b.ConfirmedAt(),
			"updated_at":   b.UpdatedAt(),
		}).Error
}

// LockRepositoryImpl is the GORM-based implementation of
// booking.LockRepository.
type LockRepositoryImpl struct {
	db *gorm.DB
}

// NewLockRepository creates a new GORM-based inventory lock repository.
func NewLockRepository(db *gorm.DB) *LockRepositoryImpl {
	return &LockRepositoryImpl{db: db}
}

// ConsumeByBookingID stamps consumed_at on unconsumed locks only, so repeated
// paid events cannot re-consume.
func (r *LockRepositoryImpl) ConsumeByBookingID(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&InventoryLockModel{}).
		Where("booking_id = ? AND consumed_at IS NULL", bookingID).
		Update("consumed_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

// AgreementRepositoryImpl is the GORM-based implementation of
// booking.AgreementRepository.
type AgreementRepositoryImpl struct {
	db *gorm.DB
}

// NewAgreementRepository creates a new GORM-based agreement repository.
func NewAgreementRepository(db *gorm.DB) *AgreementRepositoryImpl {
	return &AgreementRepositoryImpl{db: db}
}

func (r *AgreementRepositoryImpl) FindActive(ctx context.Context, agentID, resortID uuid.UUID) (*bookingDomain.AgentAgreement, error) {
	var model AgentAgreementModel
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND resort_id = ? AND active = true", agentID, resortID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("AgentAgreement", agentID.String())
		}
		return nil, err
	}
	return &bookingDomain.AgentAgreement{
		ID:             model.ID,
		AgentID:        model.AgentID,
		ResortID:       model.ResortID,
		PerPersonCents: model.PerPersonCents,
		Active:         model.Active,
	}, nil
}

// CommissionRepositoryImpl is the GORM-based implementation of
// commission.Repository.
type CommissionRepositoryImpl struct {
	db *gorm.DB
}

// NewCommissionRepository creates a new GORM-based commission repository.
func NewCommissionRepository(db *gorm.DB) *CommissionRepositoryImpl {
	return &CommissionRepositoryImpl{db: db}
}

// SaveIdempotent inserts with ON CONFLICT (booking_id, kind) DO NOTHING.
func (r *CommissionRepositoryImpl) SaveIdempotent(ctx context.Context, rec *commissionDomain.Record) (bool, error) {
	model := &CommissionModel{
		ID:          rec.ID,
		BookingID:   rec.BookingID,
		PaymentID:   rec.PaymentID,
		Kind:        string(rec.Kind),
		AgentID:     rec.AgentID,
		AmountCents: rec.AmountCents,
		Currency:    rec.Currency,
		CreatedAt:   rec.CreatedAt,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "booking_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *CommissionRepositoryImpl) CountByBookingID(ctx context.Context, bookingID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CommissionModel{}).
		Where("booking_id = ?", bookingID).
		Count(&count).Error
	return count, err
}
