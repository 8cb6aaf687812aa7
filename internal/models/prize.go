package models

import "time"

// PhaseRaffle marks a prize drawn from the whole ticket range.
const PhaseRaffle = 0

// Winning ticket status values.
const (
	WinningTicketAvailable = "available"
	WinningTicketClaimed   = "claimed"
)

// Prize is a reward attached to a competition.
type Prize struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompetitionID uint64 `gorm:"not null;index"`     // Owning competition.
	ProductRef    string `gorm:"type:text"`          // Product reference in the content service.
	Title         string `gorm:"type:text;not null"` // Display title.

	TotalQuantity int64 `gorm:"not null;default:1"` // Units available to win.
	WonQuantity   int64 `gorm:"not null;default:0"` // Units already claimed.

	Phase        int    `gorm:"not null;default:0"`     // 1..3 partitions the ticket range, 0 means raffle.
	IsInstantWin bool   `gorm:"not null;default:false"` // Won at purchase time.
	PrizeGroup   string `gorm:"type:text"`              // Free-form grouping label.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// WinningTicket pre-designates a ticket number as winning a prize.
type WinningTicket struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompetitionID uint64 `gorm:"not null;uniqueIndex:uk_winning_ticket"` // Competition scope.
	TicketNumber  int64  `gorm:"not null;uniqueIndex:uk_winning_ticket"` // Winning number.
	PrizeID       uint64 `gorm:"not null;index"`                         // Prize won by this number.

	Status string `gorm:"type:varchar(16);not null;default:'available';index"` // available/claimed.

	EntryID   *uint64    `gorm:"index"` // Claiming entry.
	UserID    *uint64    `gorm:"index"` // Claiming user.
	ClaimedAt *time.Time // Claim timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Seed timestamp.
}
