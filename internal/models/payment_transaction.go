package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment transaction kinds.
const (
	PaymentKindAuthorization = "authorization"
	PaymentKindRefund        = "refund"
)

// PaymentTransaction records one call to the external card gateway.
type PaymentTransaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Kind       string `gorm:"type:varchar(16);not null;default:'authorization'"` // authorization/refund.
	CheckoutID string `gorm:"type:varchar(64);not null;index"`                   // Checkout attempt id, also the idempotency key.
	PaymentID  string `gorm:"type:text"`                                         // Gateway-side payment id.
	UserID     uint64 `gorm:"not null;index"`                                    // Paying user.

	Amount   int64  `gorm:"not null"`                 // Amount in minor units.
	Currency string `gorm:"type:varchar(8);not null"` // ISO currency.

	StatusCode        string `gorm:"type:varchar(32)"`       // Opaque gateway status code.
	StatusDescription string `gorm:"type:text"`              // Gateway status description.
	Succeeded         bool   `gorm:"not null;default:false"` // Whether the status code denotes success.

	RequestPayload  datatypes.JSON `gorm:"type:jsonb"` // Raw request sent to the gateway.
	ResponsePayload datatypes.JSON `gorm:"type:jsonb"` // Raw gateway response.

	OrderID *uint64 `gorm:"index"` // Related order.
	EntryID *uint64 `gorm:"index"` // Related entry, when a charge funds a single entry.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}
