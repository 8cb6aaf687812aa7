package models

import "time"

// Wallet transaction directions.
const (
	WalletDirectionCredit = "credit"
	WalletDirectionDebit  = "debit"
)

// Wallet transaction reasons.
const (
	WalletReasonTopUp      = "top_up"
	WalletReasonCheckout   = "checkout"
	WalletReasonRefund     = "refund"
	WalletReasonAdjustment = "adjustment"
)

// Wallet holds stored credit for a user. Balance never goes below zero.
type Wallet struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;uniqueIndex"` // Owning user.
	Balance int64  `gorm:"not null;default:0"`   // Balance in minor units.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// WalletTransaction is an immutable ledger line.
type WalletTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID    uint64 `gorm:"not null;index"`            // Wallet owner.
	Amount    int64  `gorm:"not null"`                  // Positive amount in minor units.
	Direction string `gorm:"type:varchar(8);not null"`  // credit/debit.
	Reason    string `gorm:"type:varchar(16);not null"` // top_up/checkout/refund/adjustment.

	BalanceAfter    int64   `gorm:"not null"` // Balance right after this line.
	OrderID         *uint64 `gorm:"index"`    // Related order, if any.
	NumberOfTickets *int64  // Ticket count the line paid for, if any.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
