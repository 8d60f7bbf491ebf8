package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	refundDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/refund"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RefundModel is the GORM persistence model for the refunds table.
type RefundModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	PaymentID        uuid.UUID  `gorm:"type:uuid;index;not null"`
	AmountCents      int64      `gorm:"not null"`
	Currency         string     `gorm:"type:varchar(3);not null"`
	Status           string     `gorm:"type:varchar(20);not null;default:'pending'"`
	Reason           string     `gorm:"type:text"`
	RequestedBy      *uuid.UUID `gorm:"type:uuid"`
	ProviderRefundID string     `gorm:"type:varchar(255);index"`
	FailureReason    string     `gorm:"type:text"`
	ProcessedAt      *time.Time `gorm:"type:timestamptz"`
	Version          int64      `gorm:"not null;default:1"`
	CreatedAt        time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt        time.Time  `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (RefundModel) TableName() string {
	return "refunds"
}

// RefundRepositoryImpl is the GORM-based implementation of refund.Repository.
type RefundRepositoryImpl struct {
	db *gorm.DB
}

// NewRefundRepository creates a new GORM-based refund repository.
func NewRefundRepository(db *gorm.DB) *RefundRepositoryImpl {
	return &RefundRepositoryImpl{db: db}
}

func (r *RefundRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*refundDomain.Refund, error) {
	var model RefundModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Refund", id.String())
		}
		return nil, err
	}
	return refundToDomain(&model), nil
}

func (r *RefundRepositoryImpl) FindByProviderRefundID(ctx context.Context, providerRefundID string) (*refundDomain.Refund, error) {
	var model RefundModel
	if err := r.db.WithContext(ctx).Where("provider_refund_id = ?", providerRefundID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Refund", providerRefundID)
		}
		return nil, err
	}
	return refundToDomain(&model), nil
}

func (r *RefundRepositoryImpl) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*refundDomain.Refund, error) {
	var models []RefundModel
	if err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	refunds := make([]*refundDomain.Refund, len(models))
	for i := range models {
		refunds[i] = refundToDomain(&models[i])
	}
	return refunds, nil
}

func (r *RefundRepositoryImpl) SumProcessedByPaymentID(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).Model(&RefundModel{}).
		Where("payment_id = ? AND status = ?", paymentID, string(refundDomain.StatusProcessed)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *RefundRepositoryImpl) Save(ctx context.Context, ref *refundDomain.Refund) error {
	return r.db.WithContext(ctx).Create(refundToModel(ref)).Error
}

func (r *RefundRepositoryImpl) Update(ctx context.Context, ref *refundDomain.Refund) error {
	model := refundToModel(ref)
	previousVersion := ref.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&RefundModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerr.NewConflictError("refund was modified by another transaction")
	}
	return nil
}

func refundToDomain(model *RefundModel) *refundDomain.Refund {
	return refundDomain.Reconstitute(
		model.ID,
		model.PaymentID,
		model.AmountCents,
		model.Currency,
		refundDomain.Status(model.Status),
		model.Reason,
		model.RequestedBy,
		model.ProviderRefundID,
		model.FailureReason,
		model.ProcessedAt,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	)
}

func refundToModel(r *refundDomain.Refund) *RefundModel {
	return &RefundModel{
		ID:               r.ID(),
		PaymentID:        r.PaymentID(),
		AmountCents:      r.AmountCents(),
		Currency:         r.Currency(),
		Status:           string(r.Status()),
		Reason:           r.Reason(),
		RequestedBy:      r.RequestedBy(),
		ProviderRefundID: r.ProviderRefundID(),
		FailureReason:    r.FailureReason(),
		ProcessedAt:      r.ProcessedAt(),
		Version:          r.Version(),
		CreatedAt:        r.CreatedAt(),
		UpdatedAt:        r.UpdatedAt(),
	}
}
