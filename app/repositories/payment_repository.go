package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
)

// PaymentRepository handles database operations for the Payment ledger.
// Ledger rows are append-then-update only; nothing here deletes.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

// Create appends a new ledger row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// Save persists changes to an existing ledger row.
func (r *PaymentRepository) Save(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

// FindByProviderRef finds the ledger row for a provider transaction
// reference. This is the idempotency lookup for webhook redelivery.
func (r *PaymentRepository) FindByProviderRef(ctx context.Context, provider, transactionID string) (models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("provider = ? AND transaction_id = ?", provider, transactionID).
		First(&payment).Error
	return payment, err
}

// FindSuccessByOrder returns the successful ledger row for an order, if any.
// At most one exists.
func (r *PaymentRepository) FindSuccessByOrder(ctx context.Context, orderID string) (models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, models.PaymentSuccess).
		First(&payment).Error
	return payment, err
}

// ListByOrder returns every ledger row for an order, oldest first.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}
