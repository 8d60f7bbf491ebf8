package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AndesTrek-Travel/service-payments/internal/domain/domainerr"
	webhookDomain "github.com/AndesTrek-Travel/service-payments/internal/domain/webhook"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEventModel is the GORM persistence model for the webhook_events
// table. (provider, provider_event_id) is the dedup key.
type WebhookEventModel struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Provider        string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_webhook_provider_event"`
	ProviderEventID string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_webhook_provider_event"`
	Payload         []byte     `gorm:"type:jsonb"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending'"`
	SignatureValid  bool       `gorm:"not null;default:false"`
	ErrorMessage    string     `gorm:"type:text"`
	ReceivedAt      time.Time  `gorm:"type:timestamptz;not null;default:now()"`
	ProcessedAt     *time.Time `gorm:"type:timestamptz"`
}

// TableName specifies the table name for GORM.
func (WebhookEventModel) TableName() string {
	return "webhook_events"
}

// WebhookRepositoryImpl is the GORM-based implementation of
// webhook.Repository.
type WebhookRepositoryImpl struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new GORM-based webhook event repository.
func NewWebhookRepository(db *gorm.DB) *WebhookRepositoryImpl {
	return &WebhookRepositoryImpl{db: db}
}

func (r *WebhookRepositoryImpl) FindByProviderEventID(ctx context.Context, provider, providerEventID string) (*webhookDomain.Event, error) {
	var model WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerr.NewNotFoundError("WebhookEvent", providerEventID)
		}
		return nil, err
	}
	return webhookToDomain(&model), nil
}

func (r *WebhookRepositoryImpl) Save(ctx context.Context, e *webhookDomain.Event) error {
	if err := r.db.WithContext(ctx).Create(webhookToModel(e)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent duplicate delivery; the unique index is the guard.
			return domainerr.NewConflictError("webhook event already recorded")
		}
		return err
	}
	return nil
}

func (r *WebhookRepositoryImpl) Update(ctx context.Context, e *webhookDomain.Event) error {
	return r.db.WithContext(ctx).
		Model(&WebhookEventModel{}).
		Where("id = ?", e.ID()).
		Select("*").
		Omit("id", "received_at").
		Updates(webhookToModel(e)).Error
}

func webhookToDomain(model *WebhookEventModel) *webhookDomain.Event {
	return webhookDomain.Reconstitute(
		model.ID,
		model.Provider,
		model.ProviderEventID,
		model.Payload,
		webhookDomain.Status(model.Status),
		model.SignatureValid,
		model.ErrorMessage,
		model.ReceivedAt,
		model.ProcessedAt,
	)
}

func webhookToModel(e *webhookDomain.Event) *WebhookEventModel {
	return &WebhookEventModel{
		ID:              e.ID(),
		Provider:        e.Provider(),
		ProviderEventID: e.ProviderEventID(),
		Payload:         e.Payload(),
		Status:          string(e.Status()),
		SignatureValid:  e.SignatureValid(),
		ErrorMessage:    e.ErrorMessage(),
		ReceivedAt:      e.ReceivedAt(),
		ProcessedAt:     e.ProcessedAt(),
	}
}
