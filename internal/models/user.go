package models

import "time"

// User maps an identity-provider subject to the internal id used by wallets and entries.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	ExternalID string `gorm:"type:varchar(255);not null;uniqueIndex"` // Identity-provider subject.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
