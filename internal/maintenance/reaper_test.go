package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/rafflehq/ticket-engine/internal/db/dbtest"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	"github.com/rafflehq/ticket-engine/internal/settings"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"gorm.io/gorm"
)

func pendingOrder(t *testing.T, conn *gorm.DB, userID uint64, checkoutID string, age time.Duration) models.Order {
	t.Helper()
	order := models.Order{
		CheckoutID:    checkoutID,
		UserID:        userID,
		Currency:      "GBP",
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodWallet,
		TotalAmount:   200,
		CreatedAt:     time.Now().UTC().Add(-age),
	}
	if err := conn.Create(&order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func reload(t *testing.T, conn *gorm.DB, id uint64) models.Order {
	t.Helper()
	var order models.Order
	if err := conn.Where("id = ?", id).Take(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func TestReapPendingOrders(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	if err := settings.RefreshDBConfigSnapshot(ctx, conn); err != nil {
		t.Fatalf("refresh settings: %v", err)
	}
	user := dbtest.User(t, conn, "user-1")
	competition := dbtest.Competition(t, conn, 10, 100)

	abandoned := pendingOrder(t, conn, user.ID, "chk-abandoned", time.Hour)
	charged := pendingOrder(t, conn, user.ID, "chk-charged", time.Hour)
	allocated := pendingOrder(t, conn, user.ID, "chk-allocated", time.Hour)
	fresh := pendingOrder(t, conn, user.ID, "chk-fresh", time.Minute)

	ledger := wallet.NewLedger(conn, retry.DefaultPolicy())
	if _, err := ledger.Credit(ctx, user.ID, 500, wallet.Meta{Reason: models.WalletReasonTopUp}); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := ledger.Debit(ctx, user.ID, 200, wallet.Meta{Reason: models.WalletReasonCheckout, OrderID: &charged.ID}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	r, err := sequencer.New(conn).Reserve(ctx, competition.ID, 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := entries.NewStore(conn).CreateEntry(ctx, competition.ID, user.ID, r.Numbers(), entries.FundingRefs{OrderID: &allocated.ID}); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	reaper := NewReaper(conn, payments.NewTracker(conn, ""), time.Minute)
	n, err := reaper.ReapPendingOrders(ctx)
	if err != nil {
		t.Fatalf("reap: %v", err)
	}
	if n != 3 {
		t.Fatalf("reaped = %d, want 3", n)
	}

	if got := reload(t, conn, abandoned.ID); got.Status != models.OrderStatusFailed || got.OrderSummary.Data().UnsettledAmount != 0 {
		t.Fatalf("abandoned = %+v", got)
	}
	if got := reload(t, conn, charged.ID); got.Status != models.OrderStatusFailed || got.OrderSummary.Data().UnsettledAmount != 200 {
		t.Fatalf("charged = %+v", got)
	}
	got := reload(t, conn, allocated.ID)
	if got.Status != models.OrderStatusCompleted || got.TotalTickets != 2 || len(got.OrderSummary.Data().Lines) != 1 {
		t.Fatalf("allocated = %+v", got)
	}
	if got := reload(t, conn, fresh.ID); got.Status != models.OrderStatusPending {
		t.Fatalf("fresh order reaped: %+v", got)
	}

	if n, err := reaper.ReapPendingOrders(ctx); err != nil || n != 0 {
		t.Fatalf("second pass reaped %d, err %v", n, err)
	}
}

func TestPurgePayloadsHonoursRetention(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	if err := settings.Put(ctx, conn, settings.PaymentPayloadRetentionDaysKey, []byte(`{"value": 30}`)); err != nil {
		t.Fatalf("put setting: %v", err)
	}

	old := models.PaymentTransaction{
		CheckoutID:      "chk-old",
		UserID:          1,
		Amount:          100,
		Currency:        "GBP",
		RequestPayload:  []byte(`{"amount":100}`),
		ResponsePayload: []byte(`{"ok":true}`),
		CreatedAt:       time.Now().UTC().AddDate(0, 0, -45),
	}
	recent := old
	recent.CheckoutID = "chk-recent"
	recent.CreatedAt = time.Now().UTC().AddDate(0, 0, -5)
	for _, row := range []*models.PaymentTransaction{&old, &recent} {
		if err := conn.Create(row).Error; err != nil {
			t.Fatalf("create payment: %v", err)
		}
	}

	reaper := NewReaper(conn, payments.NewTracker(conn, ""), time.Minute)
	reaper.purgePayloads(ctx)

	var rows []models.PaymentTransaction
	if err := conn.Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(rows[0].RequestPayload) != 0 || len(rows[0].ResponsePayload) != 0 {
		t.Fatalf("old payload kept: %s", rows[0].RequestPayload)
	}
	if len(rows[1].RequestPayload) == 0 {
		t.Fatalf("recent payload purged")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	conn := dbtest.Open(t)
	reaper := NewReaper(conn, nil, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("reaper did not stop")
	}
	if NewReaper(nil, nil, 0) != nil {
		t.Fatalf("nil db should yield nil reaper")
	}
}
