package models

import "time"

// Prize lock states.
const (
	PrizeLockLocked   = "locked"
	PrizeLockUnlocked = "unlocked"
)

// PrizeLock gates prize configuration edits once a competition has claimed winners.
// A missing row means locked.
type PrizeLock struct {
	CompetitionID uint64 `gorm:"primaryKey;autoIncrement:false"` // Owning competition.

	State        string  `gorm:"type:varchar(16);not null;default:'locked'"` // locked/unlocked.
	Reason       string  `gorm:"type:text"`                                  // Reason given for the last transition.
	ActorAdminID *uint64 // Admin that made the last transition.

	ChangedAt time.Time `gorm:"not null"` // Last transition time.
}

// PrizeLockEvent is the audit trail of prize lock transitions.
type PrizeLockEvent struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompetitionID uint64 `gorm:"not null;index"`            // Competition affected.
	FromState     string `gorm:"type:varchar(16);not null"` // State before.
	ToState       string `gorm:"type:varchar(16);not null"` // State after.
	Reason        string `gorm:"type:text;not null"`        // Operator supplied reason.
	ActorAdminID  uint64 `gorm:"not null;index"`            // Acting admin.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Transition time.
}
