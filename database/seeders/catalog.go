package seeders

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/app/models"
	"github.com/shashiranjanraj/vastra/pkg/auth"
)

func init() {
	Register("users", SeedUsers)
	Register("catalog", SeedCatalog)
}

// SeedUsers inserts a staff account and a demo customer.
func SeedUsers(db *gorm.DB) error {
	hash, err := auth.HashPassword("password")
	if err != nil {
		return err
	}

	users := []models.User{
		{Name: "Admin", Email: "admin@vastra.test", Password: hash, Staff: true},
		{Name: "Demo Customer", Email: "demo@vastra.test", Password: hash},
	}
	for i := range users {
		if err := db.Where("email = ?", users[i].Email).
			FirstOrCreate(&users[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// SeedCatalog inserts a small category tree and a few products.
func SeedCatalog(db *gorm.DB) error {
	clothing := models.Category{Name: "Clothing", Slug: "clothing"}
	if err := db.Where("slug = ?", clothing.Slug).FirstOrCreate(&clothing).Error; err != nil {
		return err
	}

	sarees := models.Category{Name: "Sarees", Slug: "sarees", ParentID: &clothing.ID}
	if err := db.Where("slug = ?", sarees.Slug).FirstOrCreate(&sarees).Error; err != nil {
		return err
	}

	products := []models.Product{
		{
			Name:       "Banarasi Silk Saree",
			Price:      decimal.NewFromFloat(149.99),
			Stock:      25,
			SKU:        "SAREE-BNR-001",
			CategoryID: &sarees.ID,
		},
		{
			Name:       "Cotton Kurta",
			Price:      decimal.NewFromFloat(39.50),
			Stock:      100,
			SKU:        "KURTA-CTN-001",
			CategoryID: &clothing.ID,
		},
	}
	for i := range products {
		if err := db.Where("sku = ?", products[i].SKU).
			FirstOrCreate(&products[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
