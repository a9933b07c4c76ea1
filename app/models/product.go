package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a product in the catalogue.
//
// Stock is mutated only through ProductRepository.ReserveStock, which issues
// an atomic relative UPDATE. Application code never computes a new stock
// value in memory and writes it back.
type Product struct {
	gorm.Model
	Name        string          `gorm:"size:255;not null;index" json:"name"`
	Description string          `gorm:"type:text"               json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Stock       int             `gorm:"not null;default:0"      json:"stock"`
	ImageURL    string          `gorm:"size:500"                json:"image_url"`
	SKU         string          `gorm:"size:100;uniqueIndex"    json:"sku"`
	CategoryID  *uint           `gorm:"index"                   json:"category_id"`
}

// Category is a node in the catalogue tree. ParentID is nil for roots.
type Category struct {
	gorm.Model
	Name     string `gorm:"size:255;not null" json:"name"`
	Slug     string `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	ParentID *uint  `gorm:"index" json:"parent_id"`
}
