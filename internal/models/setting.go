package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a runtime-tunable key with a JSON value, loaded into the settings snapshot.
type Setting struct {
	Key       string         `gorm:"type:varchar(255);primaryKey"` // Setting key.
	Value     datatypes.JSON `gorm:"type:jsonb"`                   // JSON-encoded value.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime"`      // Last update timestamp.
}
