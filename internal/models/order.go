package models

import (
	"time"

	"gorm.io/datatypes"
)

// Order status values.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodWallet = "wallet"
	PaymentMethodCard   = "card"
	PaymentMethodHybrid = "hybrid"
)

// Order is the outcome of one checkout attempt.
type Order struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CheckoutID    string `gorm:"type:varchar(64);not null;uniqueIndex"`             // Checkout attempt id.
	UserID        uint64 `gorm:"not null;index"`                                    // Purchasing user.
	Currency      string `gorm:"type:varchar(8);not null"`                          // ISO currency.
	Status        string `gorm:"type:varchar(16);not null;default:'pending';index"` // pending/completed/failed.
	PaymentMethod string `gorm:"type:varchar(16);not null"`                         // wallet/card/hybrid.

	TotalTickets   int64 `gorm:"not null;default:0"` // Tickets issued across all lines.
	WalletAmount   int64 `gorm:"not null;default:0"` // Amount debited from the wallet.
	PaymentAmount  int64 `gorm:"not null;default:0"` // Amount charged to the card.
	TotalAmount    int64 `gorm:"not null;default:0"` // Amount due for the cart.
	RefundedAmount int64 `gorm:"not null;default:0"` // Amount credited back for failed lines.

	OrderSummary  datatypes.JSONType[OrderSummary] // Structured per-line breakdown.
	AffiliateCode *string                          `gorm:"type:text;index"` // Optional affiliate tag.

	WalletTransactionID  *uint64 // Wallet debit backing the order.
	PaymentTransactionID *uint64 // Card authorization backing the order.

	CreatedAt   time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt   time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	CompletedAt *time.Time // Time the order left pending.
}

// OrderSummary is the structured breakdown stored on an order.
type OrderSummary struct {
	Lines           []OrderSummaryLine `json:"lines"`
	UnsettledAmount int64              `json:"unsettled_amount,omitempty"`
	Message         string             `json:"message,omitempty"`
}

// OrderSummaryLine describes one cart line of an order.
type OrderSummaryLine struct {
	CompetitionID  uint64             `json:"competition_id"`
	Quantity       int64              `json:"quantity"`
	UnitPrice      int64              `json:"unit_price"`
	LineTotal      int64              `json:"line_total"`
	Success        bool               `json:"success"`
	EntryID        *uint64            `json:"entry_id,omitempty"`
	TicketNumbers  []int64            `json:"ticket_numbers,omitempty"`
	WinningTickets []WinningTicketRef `json:"winning_tickets,omitempty"`
	ErrorKind      string             `json:"error_kind,omitempty"`
	Message        string             `json:"message,omitempty"`
	Refunded       bool               `json:"refunded,omitempty"`
}

// WinningTicketRef names a claimed winning ticket.
type WinningTicketRef struct {
	TicketNumber int64  `json:"ticket_number"`
	PrizeID      uint64 `json:"prize_id"`
}
