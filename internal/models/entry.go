package models

import (
	"time"

	"gorm.io/datatypes"
)

// Entry status values.
const (
	EntryStatusActive  = "active"
	EntryStatusUsed    = "used"
	EntryStatusExpired = "expired"
)

// CompetitionEntry records one purchase of a ticket block for one competition.
type CompetitionEntry struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompetitionID uint64 `gorm:"not null;index"` // Competition the tickets belong to.
	UserID        uint64 `gorm:"not null;index"` // Purchasing user.

	TicketNumbers datatypes.JSONSlice[int64] `gorm:"not null"` // Ordered ticket numbers.
	FirstTicket   int64                      `gorm:"not null"` // Lowest ticket number in the block.
	LastTicket    int64                      `gorm:"not null"` // Highest ticket number in the block.

	Status string `gorm:"type:varchar(16);not null;default:'active'"` // active/used/expired.

	WalletTransactionID  *uint64 `gorm:"index"` // Funding wallet debit, if any.
	PaymentTransactionID *uint64 `gorm:"index"` // Funding card charge, if any.
	OrderID              *uint64 `gorm:"index"` // Owning order, if any.

	PurchasedAt time.Time `gorm:"not null;index"` // Purchase timestamp.
}

// EntryTicket is the competition-scoped uniqueness guard for issued ticket numbers.
type EntryTicket struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CompetitionID uint64 `gorm:"not null;uniqueIndex:uk_entry_ticket"` // Competition scope.
	TicketNumber  int64  `gorm:"not null;uniqueIndex:uk_entry_ticket"` // Issued ticket number.
	EntryID       uint64 `gorm:"not null;index"`                       // Owning entry.
}
