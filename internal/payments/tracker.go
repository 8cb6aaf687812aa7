// Package payments records card charges authorized by the external gateway.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultSuccessCode is the gateway status code that denotes an approved charge.
const DefaultSuccessCode = "000.000.000"

// Tracker persists PaymentTransaction rows.
type Tracker struct {
	db          *gorm.DB
	successCode string
}

// NewTracker returns a Tracker. successCode is the only status code treated as approval.
func NewTracker(conn *gorm.DB, successCode string) *Tracker {
	successCode = strings.TrimSpace(successCode)
	if successCode == "" {
		successCode = DefaultSuccessCode
	}
	return &Tracker{db: conn, successCode: successCode}
}

// Succeeded reports whether a gateway status code denotes approval.
func (t *Tracker) Succeeded(statusCode string) bool {
	return strings.TrimSpace(statusCode) == t.successCode
}

// RecordInput is the data captured for one gateway call.
type RecordInput struct {
	Kind       string
	CheckoutID string
	UserID     uint64
	Amount     int64
	Currency   string
	Result     *AuthorizeResult
	OrderID    *uint64
}

// Record stores the outcome of a gateway call, approved or not.
func (t *Tracker) Record(ctx context.Context, in RecordInput) (*models.PaymentTransaction, error) {
	if in.CheckoutID == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "checkout id is required")
	}
	if in.Kind == "" {
		in.Kind = models.PaymentKindAuthorization
	}
	row := &models.PaymentTransaction{
		Kind:       in.Kind,
		CheckoutID: in.CheckoutID,
		UserID:     in.UserID,
		Amount:     in.Amount,
		Currency:   in.Currency,
		OrderID:    in.OrderID,
	}
	if in.Result != nil {
		row.PaymentID = in.Result.PaymentID
		row.StatusCode = in.Result.StatusCode
		row.StatusDescription = in.Result.StatusDescription
		row.Succeeded = t.Succeeded(in.Result.StatusCode)
		if len(in.Result.RequestPayload) > 0 {
			row.RequestPayload = datatypes.JSON(in.Result.RequestPayload)
		}
		if len(in.Result.ResponsePayload) > 0 {
			row.ResponsePayload = datatypes.JSON(in.Result.ResponsePayload)
		}
		if in.Result.CheckoutID != "" && in.Result.CheckoutID != in.CheckoutID {
			row.StatusDescription = strings.TrimSpace(row.StatusDescription + " (gateway checkout " + in.Result.CheckoutID + ")")
		}
	}
	if errCreate := t.db.WithContext(ctx).Create(row).Error; errCreate != nil {
		return nil, fmt.Errorf("payments: record: %w", errCreate)
	}
	return row, nil
}

// AttachOrder links a payment transaction to its order.
func (t *Tracker) AttachOrder(ctx context.Context, paymentTransactionID, orderID uint64) error {
	res := t.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ?", paymentTransactionID).
		Update("order_id", orderID)
	if res.Error != nil {
		return fmt.Errorf("payments: attach order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindNotFound, "payment transaction %d not found", paymentTransactionID)
	}
	return nil
}

// ListForOrder returns the payment transactions of an order in creation order.
func (t *Tracker) ListForOrder(ctx context.Context, orderID uint64) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	if errFind := t.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("payments: list for order: %w", errFind)
	}
	return rows, nil
}

// FindByCheckoutID returns the latest authorization recorded for a checkout attempt.
func (t *Tracker) FindByCheckoutID(ctx context.Context, checkoutID string) (*models.PaymentTransaction, error) {
	var row models.PaymentTransaction
	errFind := t.db.WithContext(ctx).
		Where("checkout_id = ? AND kind = ?", checkoutID, models.PaymentKindAuthorization).
		Order("id DESC").
		Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "no payment for checkout %s", checkoutID)
	}
	if errFind != nil {
		return nil, fmt.Errorf("payments: find by checkout: %w", errFind)
	}
	return &row, nil
}

// PurgePayloads clears raw gateway payloads older than cutoff, at most limit rows per call.
func (t *Tracker) PurgePayloads(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	res := t.db.WithContext(ctx).Exec(`
		UPDATE payment_transactions
		SET request_payload = NULL, response_payload = NULL
		WHERE id IN (
			SELECT id FROM payment_transactions
			WHERE created_at < ? AND (request_payload IS NOT NULL OR response_payload IS NOT NULL)
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, cutoff, limit)
	if res.Error != nil {
		return 0, fmt.Errorf("payments: purge payloads: %w", res.Error)
	}
	return res.RowsAffected, nil
}
