package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the ticket engine.
type Kind string

// Error kinds reported to callers and logged as error classes.
const (
	// KindCapacityExceeded means the competition cannot supply the requested tickets.
	KindCapacityExceeded Kind = "capacity_exceeded"
	// KindContentionRetry means a lock or compare-and-set kept failing after retries.
	KindContentionRetry Kind = "contention_retry"
	// KindInsufficientFunds means the wallet balance cannot cover a debit.
	KindInsufficientFunds Kind = "insufficient_funds"
	// KindGatewayDeclined means the payment gateway rejected the charge.
	KindGatewayDeclined Kind = "gateway_declined"
	// KindGatewayTimeout means the payment gateway did not answer in time.
	KindGatewayTimeout Kind = "gateway_timeout"
	// KindIntegrityViolation means a uniqueness or single-claim guarantee was about to break.
	KindIntegrityViolation Kind = "integrity_violation"
	// KindInvalidArgument means the caller supplied unusable input.
	KindInvalidArgument Kind = "invalid_argument"
	// KindNotFound means a referenced record does not exist.
	KindNotFound Kind = "not_found"
	// KindCompetitionClosed means the competition is not accepting entries.
	KindCompetitionClosed Kind = "competition_closed"
	// KindPrizeConfigLocked means prize configuration is frozen by the prize lock.
	KindPrizeConfigLocked Kind = "prize_config_locked"
	// KindUnauthorized means the actor may not perform the operation.
	KindUnauthorized Kind = "unauthorized"
	// KindInternal is used for unexpected failures such as an unavailable database.
	KindInternal Kind = "internal"
)

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New builds a classified error with a message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first classified error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the caller-facing message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) && classified.Message != "" {
		return classified.Message
	}
	return "internal error"
}

// IsBusiness reports whether err is an expected business outcome rather than
// an infrastructure failure.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindInternal, "":
		return false
	default:
		return true
	}
}
