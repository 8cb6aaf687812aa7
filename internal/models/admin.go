package models

import "time"

// Admin is an operator allowed to configure competitions and prizes.
type Admin struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Bcrypt hash.

	Active bool `gorm:"not null;default:true"` // Whether the admin can sign in.

	TOTPSecret string `gorm:"type:text"` // TOTP secret; when set, prize unlocks require a code.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
