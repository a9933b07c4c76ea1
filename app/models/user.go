package models

import "gorm.io/gorm"

// User is the primary user model. Registration and OTP flows live in a
// separate service; this backend only authenticates against existing rows.
type User struct {
	gorm.Model
	Name     string `gorm:"size:255;not null" json:"name"`
	Email    string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password string `gorm:"size:255;not null" json:"-"` // bcrypt hash, never serialised
	Staff    bool   `gorm:"default:false" json:"staff"`
}
