package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amounts are stored as integer minor units (pence).

var (
	// ErrNegativeAmount is returned when converting a negative amount.
	ErrNegativeAmount = errors.New("money: negative amount")
	// ErrSubPenny is returned when a pounds value has more than two decimal places.
	ErrSubPenny = errors.New("money: amount has fractional pence")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxTotal = decimal.NewFromInt(1 << 62)
)

// PenceToPounds converts minor units to a pounds decimal.
func PenceToPounds(pence int64) decimal.Decimal {
	return decimal.New(pence, -2)
}

// PoundsToPence converts a pounds decimal to minor units.
func PoundsToPence(pounds decimal.Decimal) (int64, error) {
	if pounds.IsNegative() {
		return 0, ErrNegativeAmount
	}
	pence := pounds.Mul(hundred)
	if !pence.Equal(pence.Truncate(0)) {
		return 0, ErrSubPenny
	}
	return pence.IntPart(), nil
}

// ParsePounds parses a pounds string such as "12.50" or "£3" into pence.
func ParsePounds(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "£")
	if trimmed == "" {
		return 0, fmt.Errorf("money: empty amount")
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", raw, err)
	}
	return PoundsToPence(parsed)
}

// FormatPounds renders pence as a pounds string with the currency symbol.
func FormatPounds(pence int64) string {
	return "£" + PenceToPounds(pence).StringFixed(2)
}

// LineTotal returns price * quantity, rejecting overflow.
func LineTotal(unitPrice int64, quantity int) (int64, error) {
	if unitPrice < 0 || quantity < 0 {
		return 0, ErrNegativeAmount
	}
	total := decimal.NewFromInt(unitPrice).Mul(decimal.NewFromInt(int64(quantity)))
	if !total.IsInteger() || total.GreaterThan(maxTotal) {
		return 0, fmt.Errorf("money: line total out of range")
	}
	return total.IntPart(), nil
}

// Sum adds amounts under the same bound as LineTotal.
func Sum(amounts ...int64) (int64, error) {
	total := decimal.Zero
	for _, amount := range amounts {
		if amount < 0 {
			return 0, ErrNegativeAmount
		}
		total = total.Add(decimal.NewFromInt(amount))
	}
	if total.GreaterThan(maxTotal) {
		return 0, fmt.Errorf("money: total out of range")
	}
	return total.IntPart(), nil
}
