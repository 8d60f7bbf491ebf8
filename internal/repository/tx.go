package repository

import (
	"context"

	"github.com/AndesTrek-Travel/service-payments/internal/application"
	"gorm.io/gorm"
)

// NewRepos builds the repository bundle over the given DB handle, which may
// be a transaction.
func NewRepos(db *gorm.DB) *application.Repos {
	return &application.Repos{
		Payments:    NewPaymentRepository(db),
		Refunds:     NewRefundRepository(db),
		Webhooks:    NewWebhookRepository(db),
		Bookings:    NewBookingRepository(db),
		Locks:       NewLockRepository(db),
		Agreements:  NewAgreementRepository(db),
		Commissions: NewCommissionRepository(db),
		Capacity:    NewCapacityRepository(db),
	}
}

// TxManager implements application.TxManager over a GORM transaction.
type TxManager struct {
	db *gorm.DB
}

// NewTxManager creates a transaction manager.
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Do runs fn inside a single database transaction with transaction-scoped
// repositories.
func (m *TxManager) Do(ctx context.Context, fn func(r *application.Repos) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepos(tx))
	})
}
