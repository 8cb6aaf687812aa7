// Package wallet keeps per-user stored credit with a non-negative balance.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Meta describes why a ledger line was written.
type Meta struct {
	Reason          string
	OrderID         *uint64
	NumberOfTickets *int64
}

// Ledger applies credits and debits to wallets and records each as a transaction line.
type Ledger struct {
	db     *gorm.DB
	policy retry.Policy
	now    func() time.Time
}

// NewLedger returns a Ledger backed by conn.
func NewLedger(conn *gorm.DB, policy retry.Policy) *Ledger {
	return &Ledger{db: conn, policy: policy, now: time.Now}
}

// Credit adds amount to the user's wallet, creating the wallet on first use.
func (l *Ledger) Credit(ctx context.Context, userID uint64, amount int64, meta Meta) (*models.WalletTransaction, error) {
	return l.inTx(ctx, "wallet.credit", func(tx *gorm.DB) (*models.WalletTransaction, error) {
		return l.CreditTx(tx, userID, amount, meta)
	})
}

// Debit removes amount from the user's wallet, or fails with insufficient_funds and
// changes nothing.
func (l *Ledger) Debit(ctx context.Context, userID uint64, amount int64, meta Meta) (*models.WalletTransaction, error) {
	return l.inTx(ctx, "wallet.debit", func(tx *gorm.DB) (*models.WalletTransaction, error) {
		return l.DebitTx(tx, userID, amount, meta)
	})
}

// Balance returns the current balance, 0 when the user has no wallet.
func (l *Ledger) Balance(ctx context.Context, userID uint64) (int64, error) {
	return balanceTx(l.db.WithContext(ctx), userID)
}

// CreditTx is Credit within an existing transaction.
func (l *Ledger) CreditTx(tx *gorm.DB, userID uint64, amount int64, meta Meta) (*models.WalletTransaction, error) {
	if errValidate := validate(userID, amount); errValidate != nil {
		return nil, errValidate
	}
	if meta.Reason == "" {
		meta.Reason = models.WalletReasonTopUp
	}

	w := models.Wallet{UserID: userID}
	if errCreate := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error; errCreate != nil {
		return nil, fmt.Errorf("wallet: ensure wallet: %w", errCreate)
	}
	if errUpdate := tx.Model(&models.Wallet{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": l.now().UTC(),
		}).Error; errUpdate != nil {
		return nil, fmt.Errorf("wallet: credit: %w", errUpdate)
	}
	return l.record(tx, userID, amount, models.WalletDirectionCredit, meta)
}

// DebitTx is Debit within an existing transaction. The balance check and the write
// are a single conditional update, so concurrent debits cannot overdraw.
func (l *Ledger) DebitTx(tx *gorm.DB, userID uint64, amount int64, meta Meta) (*models.WalletTransaction, error) {
	if errValidate := validate(userID, amount); errValidate != nil {
		return nil, errValidate
	}
	if meta.Reason == "" {
		meta.Reason = models.WalletReasonCheckout
	}

	res := tx.Model(&models.Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_at": l.now().UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("wallet: debit: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		balance, errBalance := balanceTx(tx, userID)
		if errBalance != nil {
			return nil, errBalance
		}
		return nil, apperrors.New(apperrors.KindInsufficientFunds,
			"wallet balance %d is less than %d", balance, amount)
	}
	return l.record(tx, userID, amount, models.WalletDirectionDebit, meta)
}

// Transactions lists a user's ledger lines, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID uint64, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.WalletTransaction
	if errFind := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("wallet: list transactions: %w", errFind)
	}
	return rows, nil
}

func (l *Ledger) record(tx *gorm.DB, userID uint64, amount int64, direction string, meta Meta) (*models.WalletTransaction, error) {
	balance, errBalance := balanceTx(tx, userID)
	if errBalance != nil {
		return nil, errBalance
	}
	line := &models.WalletTransaction{
		UserID:          userID,
		Amount:          amount,
		Direction:       direction,
		Reason:          meta.Reason,
		BalanceAfter:    balance,
		OrderID:         meta.OrderID,
		NumberOfTickets: meta.NumberOfTickets,
	}
	if errCreate := tx.Create(line).Error; errCreate != nil {
		return nil, fmt.Errorf("wallet: record transaction: %w", errCreate)
	}
	return line, nil
}

func (l *Ledger) inTx(ctx context.Context, op string, fn func(tx *gorm.DB) (*models.WalletTransaction, error)) (*models.WalletTransaction, error) {
	var line *models.WalletTransaction
	errDo := retry.Do(ctx, l.policy, op, db.IsContention, func(ctx context.Context) error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			out, errFn := fn(tx)
			if errFn != nil {
				return errFn
			}
			line = out
			return nil
		})
	})
	if errDo != nil {
		return nil, errDo
	}
	return line, nil
}

func balanceTx(tx *gorm.DB, userID uint64) (int64, error) {
	var w models.Wallet
	errFind := tx.Where("user_id = ?", userID).Take(&w).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if errFind != nil {
		return 0, fmt.Errorf("wallet: read balance: %w", errFind)
	}
	return w.Balance, nil
}

// BalanceTx reads the balance inside an existing transaction.
func BalanceTx(tx *gorm.DB, userID uint64) (int64, error) {
	return balanceTx(tx, userID)
}

func validate(userID uint64, amount int64) error {
	if userID == 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "user id is required")
	}
	if amount <= 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "amount must be positive, got %d", amount)
	}
	return nil
}
