package settings

import (
	"encoding/json"
	"fmt"
)

// DB config keys and defaults for runtime-tunable settings.
const (
	// CheckoutMaxQuantityPerLineKey caps the tickets one cart line may request.
	CheckoutMaxQuantityPerLineKey = "CHECKOUT_MAX_QUANTITY_PER_LINE"
	// DefaultCheckoutMaxQuantityPerLine is the fallback per-line cap.
	DefaultCheckoutMaxQuantityPerLine = 1000
	// PendingOrderTTLSecondsKey is how long an order may stay pending before the reaper fails it.
	PendingOrderTTLSecondsKey = "PENDING_ORDER_TTL_SECONDS"
	// DefaultPendingOrderTTLSeconds is the fallback pending order TTL.
	DefaultPendingOrderTTLSeconds = 900
	// PaymentPayloadRetentionDaysKey controls how long raw gateway payloads are kept.
	PaymentPayloadRetentionDaysKey = "PAYMENT_PAYLOAD_RETENTION_DAYS"
	// DefaultPaymentPayloadRetentionDays is the fallback payload retention; 0 keeps forever.
	DefaultPaymentPayloadRetentionDays = 90
)

var knownIntKeys = map[string]bool{
	CheckoutMaxQuantityPerLineKey:  true,
	PendingOrderTTLSecondsKey:      true,
	PaymentPayloadRetentionDaysKey: true,
}

// ValidateIntValue checks that key is a runtime integer setting and raw holds a
// non-negative integer in any form DBConfigInt accepts.
func ValidateIntValue(key string, raw json.RawMessage) error {
	if !knownIntKeys[key] {
		return fmt.Errorf("settings: unknown key %q", key)
	}
	n, ok := parseInt(raw)
	if !ok || n < 0 {
		return fmt.Errorf("settings: %s must be a non-negative integer", key)
	}
	return nil
}
