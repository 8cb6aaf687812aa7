// Package maintenance runs the background housekeeping loop: it refreshes runtime
// settings, closes out abandoned pending orders and purges old gateway payloads.
package maintenance

import (
	"context"
	"time"

	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultInterval        = time.Minute
	defaultBatchSize       = 500
	maxPurgeBatchesPerRun  = 200
	abandonedOrderMessage  = "checkout abandoned while pending"
	reconcileOrderMessage  = "checkout abandoned after payment, needs reconciliation"
	completedOrderFallback = "checkout completed"
)

// Reaper periodically closes stale pending orders and purges payment payloads.
type Reaper struct {
	db         *gorm.DB
	payments   *payments.Tracker
	interval   time.Duration
	batchSize  int
	pendingTTL time.Duration
	now        func() time.Time
}

// NewReaper returns a Reaper. interval <= 0 uses one minute.
func NewReaper(db *gorm.DB, tracker *payments.Tracker, interval time.Duration) *Reaper {
	if db == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Reaper{
		db:        db,
		payments:  tracker,
		interval:  interval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

// SetPendingOrderTTL sets the fallback pending-order TTL used when no runtime setting
// overrides it.
func (r *Reaper) SetPendingOrderTTL(ttl time.Duration) {
	if r == nil || ttl <= 0 {
		return
	}
	r.pendingTTL = ttl
}

// Start launches the loop in a background goroutine.
func (r *Reaper) Start(ctx context.Context) {
	if r == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go r.run(ctx)
	log.Infof("maintenance reaper started (interval=%s)", r.interval)
}

func (r *Reaper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		r.runOnce(ctx)
		timer := time.NewTimer(r.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context) {
	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, r.db); errRefresh != nil {
		log.WithError(errRefresh).Warn("maintenance: refresh settings failed")
	}
	if _, errReap := r.ReapPendingOrders(ctx); errReap != nil {
		log.WithError(errReap).Warn("maintenance: reap pending orders failed")
	}
	r.purgePayloads(ctx)
}

// ReapPendingOrders closes orders pending for longer than the configured TTL. Orders
// that already produced entries become completed; the rest fail, and any money they
// collected is recorded as unsettled.
func (r *Reaper) ReapPendingOrders(ctx context.Context) (int, error) {
	fallback := settings.DefaultPendingOrderTTLSeconds
	if r.pendingTTL > 0 {
		fallback = int(r.pendingTTL / time.Second)
	}
	ttlSeconds := settings.IntOr(settings.PendingOrderTTLSecondsKey, fallback)
	if ttlSeconds <= 0 {
		return 0, nil
	}
	cutoff := r.now().UTC().Add(-time.Duration(ttlSeconds) * time.Second)

	var stale []models.Order
	if errFind := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderStatusPending, cutoff).
		Order("id ASC").
		Limit(r.batchSize).
		Find(&stale).Error; errFind != nil {
		return 0, errFind
	}

	reaped := 0
	for i := range stale {
		if ctx.Err() != nil {
			return reaped, ctx.Err()
		}
		ok, errClose := r.closeOrder(ctx, &stale[i])
		if errClose != nil {
			log.WithError(errClose).WithField("order_id", stale[i].ID).Warn("maintenance: close stale order failed")
			continue
		}
		if ok {
			reaped++
		}
	}
	if reaped > 0 {
		log.Infof("maintenance: closed %d stale pending orders (cutoff=%s)", reaped, cutoff.Format(time.RFC3339))
	}
	return reaped, nil
}

func (r *Reaper) closeOrder(ctx context.Context, order *models.Order) (bool, error) {
	var closed bool
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entryRows []models.CompetitionEntry
		if errFind := tx.Where("order_id = ?", order.ID).Order("id ASC").Find(&entryRows).Error; errFind != nil {
			return errFind
		}

		summary := models.OrderSummary{}
		status := models.OrderStatusFailed
		var tickets int64
		if len(entryRows) > 0 {
			status = models.OrderStatusCompleted
			summary.Message = completedOrderFallback
			for _, entry := range entryRows {
				entryID := entry.ID
				numbers := []int64(entry.TicketNumbers)
				tickets += int64(len(numbers))
				summary.Lines = append(summary.Lines, models.OrderSummaryLine{
					CompetitionID: entry.CompetitionID,
					Success:       true,
					EntryID:       &entryID,
					TicketNumbers: numbers,
				})
			}
		} else {
			collected, errCollected := collectedFor(tx, order.ID)
			if errCollected != nil {
				return errCollected
			}
			summary.Message = abandonedOrderMessage
			if collected > 0 {
				summary.Message = reconcileOrderMessage
				summary.UnsettledAmount = collected
			}
		}

		completedAt := r.now().UTC()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]any{
				"status":        status,
				"total_tickets": tickets,
				"order_summary": datatypes.NewJSONType(summary),
				"completed_at":  &completedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		closed = res.RowsAffected > 0
		if closed && summary.UnsettledAmount > 0 {
			log.WithFields(log.Fields{
				"order_id":    order.ID,
				"checkout_id": order.CheckoutID,
				"unsettled":   summary.UnsettledAmount,
			}).Warn("maintenance: abandoned order collected money without entries")
		}
		return nil
	})
	return closed, errTx
}

// collectedFor sums money taken for an order that was not refunded: wallet debits net of
// refunds plus successful card authorizations.
func collectedFor(tx *gorm.DB, orderID uint64) (int64, error) {
	var walletNet struct{ Debits, Credits int64 }
	if errWallet := tx.Model(&models.WalletTransaction{}).
		Select(
			"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS debits, "+
				"COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE 0 END), 0) AS credits",
			models.WalletDirectionDebit, models.WalletDirectionCredit,
		).
		Where("order_id = ?", orderID).
		Scan(&walletNet).Error; errWallet != nil {
		return 0, errWallet
	}
	var card int64
	if errCard := tx.Model(&models.PaymentTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND succeeded = ? AND kind = ?", orderID, true, models.PaymentKindAuthorization).
		Scan(&card).Error; errCard != nil {
		return 0, errCard
	}
	collected := walletNet.Debits - walletNet.Credits + card
	if collected < 0 {
		return 0, nil
	}
	return collected, nil
}

func (r *Reaper) purgePayloads(ctx context.Context) {
	if r.payments == nil {
		return
	}
	retentionDays := settings.IntOr(settings.PaymentPayloadRetentionDaysKey, settings.DefaultPaymentPayloadRetentionDays)
	if retentionDays <= 0 {
		return
	}
	cutoff := r.now().UTC().AddDate(0, 0, -retentionDays)

	var total int64
	for i := 0; i < maxPurgeBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return
		}
		n, errPurge := r.payments.PurgePayloads(ctx, cutoff, r.batchSize)
		if errPurge != nil {
			log.WithError(errPurge).Warn("maintenance: purge payloads failed")
			break
		}
		if n <= 0 {
			break
		}
		total += n
	}
	if total > 0 {
		log.Infof("maintenance: purged payloads of %d payment transactions (cutoff=%s retention_days=%d)", total, cutoff.Format(time.RFC3339), retentionDays)
	}
}
