package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	paymentDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/payment"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentModel is the GORM persistence model for the payments table.
type PaymentModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	BookingID         uuid.UUID  `gorm:"type:uuid;index;not null"`
	Provider          string     `gorm:"type:varchar(20);not null"`
	ProviderPaymentID string     `gorm:"type:varchar(255);index"`
	ProviderReference string     `gorm:"type:varchar(255);index"`
	AmountCents       int64      `gorm:"not null"`
	Currency          string     `gorm:"type:varchar(3);not null"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending'"`
	PaymentMethod     string     `gorm:"type:varchar(50)"`
	IdempotencyKey    string     `gorm:"type:varchar(255);uniqueIndex;not null"`
	CheckoutURL       string     `gorm:"type:text"`
	ExpiresAt         time.Time  `gorm:"type:timestamptz;not null"`
	AuthorizedAt      *time.Time `gorm:"type:timestamptz"`
	PaidAt            *time.Time `gorm:"type:timestamptz"`
	FailedAt          *time.Time `gorm:"type:timestamptz"`
	CancelledAt       *time.Time `gorm:"type:timestamptz"`
	FailureReason     string     `gorm:"type:text"`
	ProviderMetadata  []byte     `gorm:"type:jsonb"`
	Version           int64      `gorm:"not null;default:1"`
	CreatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	UpdatedAt         time.Time  `gorm:"type:timestamptz;not null;default:now()"`
}

// TableName specifies the table name for GORM.
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentRepositoryImpl is the GORM-based implementation of
// payment.Repository.
type PaymentRepositoryImpl struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new GORM-based payment repository.
func NewPaymentRepository(db *gorm.DB) *PaymentRepositoryImpl {
	return &PaymentRepositoryImpl{db: db}
}

func (r *PaymentRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*paymentDomain.Payment, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *PaymentRepositoryImpl) FindByIdempotencyKey(ctx context.Context, key string) (*paymentDomain.Payment, error) {
	return r.findOne(ctx, "idempotency_key = ?", key)
}

func (r *PaymentRepositoryImpl) FindActiveByBookingID(ctx context.Context, bookingID uuid.UUID) (*paymentDomain.Payment, error) {
	return r.findOne(ctx, "booking_id = ? AND status IN ?", bookingID,
		[]string{string(paymentDomain.StatusPaid), string(paymentDomain.StatusAuthorized)})
}

func (r *PaymentRepositoryImpl) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*paymentDomain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Payment", bookingID.String())
		}
		return nil, err
	}
	return paymentToDomain(&model)
}

func (r *PaymentRepositoryImpl) FindByProviderPaymentID(ctx context.Context, provider, providerPaymentID string) (*paymentDomain.Payment, error) {
	return r.findOne(ctx, "provider = ? AND provider_payment_id = ?", provider, providerPaymentID)
}

func (r *PaymentRepositoryImpl) FindByProviderReference(ctx context.Context, provider, reference string) (*paymentDomain.Payment, error) {
	return r.findOne(ctx, "provider = ? AND provider_reference = ?", provider, reference)
}

func (r *PaymentRepositoryImpl) FindStale(ctx context.Context, lookback, staleAfter time.Duration, limit int) ([]*paymentDomain.Payment, error) {
	now := time.Now().UTC()
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(paymentDomain.StatusPending), string(paymentDomain.StatusAuthorized)}).
		Where("provider_payment_id <> ''").
		Where("created_at > ?", now.Add(-lookback)).
		Where("updated_at < ?", now.Add(-staleAfter)).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return paymentsToDomain(models)
}

func (r *PaymentRepositoryImpl) FindOrphans(ctx context.Context, grace time.Duration, limit int) ([]*paymentDomain.Payment, error) {
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(paymentDomain.StatusPending)).
		Where("provider_payment_id = ''").
		Where("created_at < ?", time.Now().UTC().Add(-grace)).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return paymentsToDomain(models)
}

func (r *PaymentRepositoryImpl) ListAll(ctx context.Context, page, limit int) ([]*paymentDomain.Payment, int64, error) {
	var total int64
	r.db.WithContext(ctx).Model(&PaymentModel{}).Count(&total)

	var models []PaymentModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).Order("created_at DESC").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	payments, err := paymentsToDomain(models)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *PaymentRepositoryImpl) GetRevenueStats(ctx context.Context) (int64, map[string]int64, error) {
	var totalPaid int64
	r.db.WithContext(ctx).Model(&PaymentModel{}).
		Where("status = ?", string(paymentDomain.StatusPaid)).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&totalPaid)

	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&PaymentModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return 0, nil, err
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return totalPaid, counts, nil
}

func (r *PaymentRepositoryImpl) Save(ctx context.Context, p *paymentDomain.Payment) error {
	model, err := paymentToModel(p)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domainerr.NewConflictError("payment already exists for idempotency key")
		}
		return err
	}
	return nil
}

func (r *PaymentRepositoryImpl) Update(ctx context.Context, p *paymentDomain.Payment) error {
	model, err := paymentToModel(p)
	if err != nil {
		return err
	}
	previousVersion := p.Version() - 1

	result := r.db.WithContext(ctx).
		Model(&PaymentModel{}).
		Where("id = ? AND version = ?", model.ID, previousVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerr.NewConflictError("payment was modified by another transaction")
	}
	return nil
}

func (r *PaymentRepositoryImpl) findOne(ctx context.Context, query string, args ...any) (*paymentDomain.Payment, error) {
	var model PaymentModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("Payment", query)
		}
		return nil, err
	}
	return paymentToDomain(&model)
}

func paymentsToDomain(models []PaymentModel) ([]*paymentDomain.Payment, error) {
	payments := make([]*paymentDomain.Payment, len(models))
	for i := range models {
		p, err := paymentToDomain(&models[i])
		if err != nil {
			return nil, err
		}
		payments[i] = p
	}
	return payments, nil
}

func paymentToDomain(model *PaymentModel) (*paymentDomain.Payment, error) {
	var metadata map[string]any
	if len(model.ProviderMetadata) > 0 {
		if err := json.Unmarshal(model.ProviderMetadata, &metadata); err != nil {
			return nil, err
		}
	}
	return paymentDomain.Reconstitute(
		model.ID,
		model.BookingID,
		model.Provider,
		model.ProviderPaymentID,
		model.ProviderReference,
		model.AmountCents,
		model.Currency,
		paymentDomain.Status(model.Status),
		model.PaymentMethod,
		model.IdempotencyKey,
		model.CheckoutURL,
		model.ExpiresAt,
		model.AuthorizedAt,
		model.PaidAt,
		model.FailedAt,
		model.CancelledAt,
		model.FailureReason,
		metadata,
		model.Version,
		model.CreatedAt,
		model.UpdatedAt,
	), nil
}

func paymentToModel(p *paymentDomain.Payment) (*PaymentModel, error) {
	metadata, err := json.Marshal(p.ProviderMetadata())
	if err != nil {
		return nil, err
	}
	return &PaymentModel{
		ID:                p.ID(),
		BookingID:         p.BookingID(),
		Provider:          p.Provider(),
		ProviderPaymentID: p.ProviderPaymentID(),
		ProviderReference: p.ProviderReference(),
		AmountCents:       p.AmountCents(),
		Currency:          p.Currency(),
		Status:            string(p.Status()),
		PaymentMethod:     p.PaymentMethod(),
		IdempotencyKey:    p.IdempotencyKey(),
		CheckoutURL:       p.CheckoutURL(),
		ExpiresAt:         p.ExpiresAt(),
		AuthorizedAt:      p.AuthorizedAt(),
		PaidAt:            p.PaidAt(),
		FailedAt:          p.FailedAt(),
		CancelledAt:       p.CancelledAt(),
		FailureReason:     p.FailureReason(),
		ProviderMetadata:  metadata,
		Version:           p.Version(),
		CreatedAt:         p.CreatedAt(),
		UpdatedAt:         p.UpdatedAt(),
	}, nil
}
