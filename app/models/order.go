package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fulfilment statuses for Order.Status.
const (
	OrderPending    = "pending"
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
)

// Payment statuses shared by Order.PaymentStatus and Payment.Status.
// pending→success and pending→failed happen exactly once per order; success
// is terminal and never reverts.
const (
	PaymentPending = "pending"
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

// Order is a customer order with its embedded shipping address.
type Order struct {
	ID     string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID uint   `gorm:"not null;index" json:"userId"`

	Total decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total"`

	Status          string  `gorm:"size:20;not null;default:pending;index" json:"status"`
	PaymentProvider string  `gorm:"size:20" json:"paymentProvider"`
	PaymentStatus   string  `gorm:"size:20;not null;default:pending" json:"paymentStatus"`
	TransactionID   *string `gorm:"size:100" json:"transactionId"`

	Street  string `gorm:"size:255" json:"-"`
	City    string `gorm:"size:100" json:"-"`
	State   string `gorm:"size:100" json:"-"`
	ZipCode string `gorm:"size:20"  json:"-"`
	Country string `gorm:"size:100" json:"-"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// ShippingAddress is the nested address shape used on the wire.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required,max=255"`
	City    string `json:"city" validate:"required,max=100"`
	State   string `json:"state" validate:"required,max=100"`
	Zip     string `json:"zip" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
}

// Address returns the order's shipping address in wire form.
func (o *Order) Address() ShippingAddress {
	return ShippingAddress{
		Street:  o.Street,
		City:    o.City,
		State:   o.State,
		Zip:     o.ZipCode,
		Country: o.Country,
	}
}

// OrderItem is a line item. Product name, image, and price are snapshotted at
// order time so historical orders are immutable to catalogue changes; the
// product reference itself is weak and nulled when the product is removed.
type OrderItem struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	OrderID   string `gorm:"type:char(36);not null;index" json:"-"`
	ProductID *uint  `gorm:"index;constraint:OnDelete:SET NULL" json:"product"`

	ProductName  string `gorm:"size:255;not null" json:"product_name"`
	ProductImage string `gorm:"size:500" json:"product_image"`

	Quantity int             `gorm:"not null;default:1" json:"quantity"`
	Price    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Subtotal decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"subtotal"`
}

// BeforeSave recomputes the derived subtotal on every write. It is never
// settable independently.
func (i *OrderItem) BeforeSave(*gorm.DB) error {
	i.Subtotal = i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
	return nil
}
