package models

import "time"

// Competition status values.
const (
	CompetitionStatusDraft  = "draft"
	CompetitionStatusActive = "active"
	CompetitionStatusEnded  = "ended"
)

// Competition is a time-boxed draw that sells numbered tickets.
type Competition struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Title    string `gorm:"type:text;not null"`                     // Display title.
	CMSRef   string `gorm:"type:text"`                              // Content service reference for marketing data.
	Currency string `gorm:"type:varchar(8);not null;default:'GBP'"` // ISO currency of TicketPrice.

	TicketPrice  int64 `gorm:"not null"`               // Price per ticket in minor units.
	TotalTickets int64 `gorm:"not null"`               // Ticket capacity.
	TicketsSold  int64 `gorm:"not null;default:0"`     // Denormalized sold counter.
	IsRaffle     bool  `gorm:"not null;default:false"` // Raffle competitions use the full ticket range for every prize.

	Status  string    `gorm:"type:varchar(16);not null;default:'draft';index"` // draft/active/ended.
	StartAt time.Time `gorm:"not null"`                                        // First instant entries are accepted.
	EndAt   time.Time `gorm:"not null"`                                        // Last instant entries are accepted.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// AcceptsEntries reports whether the competition is active and open at now.
func (c *Competition) AcceptsEntries(now time.Time) bool {
	if c == nil || c.Status != CompetitionStatusActive {
		return false
	}
	if now.Before(c.StartAt) || now.After(c.EndAt) {
		return false
	}
	return true
}

// Remaining returns the number of unsold tickets.
func (c *Competition) Remaining() int64 {
	if c == nil || c.TicketsSold >= c.TotalTickets {
		return 0
	}
	return c.TotalTickets - c.TicketsSold
}

// TicketCounter is the per-competition sequence row. LastTicketNumber only grows.
type TicketCounter struct {
	CompetitionID    uint64    `gorm:"primaryKey;autoIncrement:false"` // Owning competition.
	LastTicketNumber int64     `gorm:"not null;default:0"`             // Highest issued ticket number.
	UpdatedAt        time.Time `gorm:"not null;autoUpdateTime"`        // Last reservation time.
}
