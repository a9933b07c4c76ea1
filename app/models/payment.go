package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Payment is one attempt to collect payment for an order. Rows are created in
// pending state by the intent orchestrator and transitioned in place by the
// reconciliation engine; they are never deleted — the table is the audit
// trail for reconciliation.
//
// An order may accumulate many pending/failed rows across retries, but at
// most one row ever reaches success.
type Payment struct {
	ID      string `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID string `gorm:"type:char(36);not null;index" json:"order_id"`
	UserID  uint   `gorm:"not null;index" json:"user_id"`

	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Provider string          `gorm:"size:20;not null" json:"provider"`
	Status   string          `gorm:"size:20;not null;default:pending" json:"status"`

	// TransactionID is the provider-side reference for this attempt: the
	// intent id for card-network providers, the paymentID for wallet
	// providers. It is the idempotent lookup key for reconciliation.
	TransactionID *string `gorm:"size:255;index" json:"transaction_id"`

	// RawResponse is the provider payload stored verbatim for replay.
	RawResponse string `gorm:"type:text" json:"raw_response"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
