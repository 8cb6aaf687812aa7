package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db/dbtest"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"github.com/rafflehq/ticket-engine/internal/winning"
	"gorm.io/gorm"
)

type fakeGateway struct {
	statusCode  string
	block       bool
	onAuthorize func()
	calls       atomic.Int32
	lastAmount  atomic.Int64
}

func (g *fakeGateway) Authorize(ctx context.Context, req payments.AuthorizeRequest) (*payments.AuthorizeResult, error) {
	g.calls.Add(1)
	g.lastAmount.Store(req.Amount)
	if g.onAuthorize != nil {
		g.onAuthorize()
	}
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	code := g.statusCode
	if code == "" {
		code = payments.DefaultSuccessCode
	}
	return &payments.AuthorizeResult{
		CheckoutID:        "gw-" + req.IdempotencyKey,
		PaymentID:         "pay-" + req.IdempotencyKey,
		StatusCode:        code,
		StatusDescription: "gateway says " + code,
		RequestPayload:    []byte(`{"amount":1}`),
		ResponsePayload:   []byte(`{"ok":true}`),
	}, nil
}

type harness struct {
	conn    *gorm.DB
	coord   *Coordinator
	ledger  *wallet.Ledger
	seq     *sequencer.Sequencer
	gateway *fakeGateway
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	seq := sequencer.New(conn)
	ledger := wallet.NewLedger(conn, retry.DefaultPolicy())
	gw := &fakeGateway{}
	if cfg.GatewayTimeout == 0 {
		cfg.GatewayTimeout = time.Second
	}
	coord := New(conn, Deps{
		Sequencer: seq,
		Entries:   entries.NewStore(conn),
		Wallet:    ledger,
		Payments:  payments.NewTracker(conn, payments.DefaultSuccessCode),
		Gateway:   gw,
	}, cfg)
	return &harness{conn: conn, coord: coord, ledger: ledger, seq: seq, gateway: gw}
}

func (h *harness) topUp(t *testing.T, userID uint64, amount int64) {
	t.Helper()
	if _, err := h.ledger.Credit(context.Background(), userID, amount, wallet.Meta{Reason: models.WalletReasonTopUp}); err != nil {
		t.Fatalf("top up: %v", err)
	}
}

func (h *harness) balance(t *testing.T, userID uint64) int64 {
	t.Helper()
	balance, err := h.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (h *harness) entryCount(t *testing.T, competitionID uint64) int64 {
	t.Helper()
	var n int64
	if err := h.conn.Model(&models.CompetitionEntry{}).Where("competition_id = ?", competitionID).Count(&n).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}

func (h *harness) order(t *testing.T, orderID uint64) models.Order {
	t.Helper()
	var order models.Order
	if err := h.conn.Where("id = ?", orderID).Take(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	return order
}

func TestCheckoutHybridSplitsWalletAndCard(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	competition := dbtest.Competition(t, h.conn, 100, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 300)

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 5}},
		PaymentMethod: models.PaymentMethodHybrid,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !res.Success || res.Status != models.OrderStatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	if res.WalletAmount != 300 || res.CardAmount != 200 || res.TotalAmount != 500 {
		t.Fatalf("split wallet=%d card=%d total=%d", res.WalletAmount, res.CardAmount, res.TotalAmount)
	}
	if got := h.gateway.lastAmount.Load(); got != 200 {
		t.Fatalf("gateway amount = %d, want 200", got)
	}
	if got := h.balance(t, user.ID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
	if got := res.Results[0].TicketNumbers; len(got) != 5 || got[0] != 1 || got[4] != 5 {
		t.Fatalf("tickets = %v", got)
	}

	order := h.order(t, res.OrderID)
	if order.WalletTransactionID == nil || order.PaymentTransactionID == nil {
		t.Fatalf("order funding refs missing: %+v", order)
	}
	if order.TotalTickets != 5 || order.CompletedAt == nil {
		t.Fatalf("order = %+v", order)
	}
	var entry models.CompetitionEntry
	if err := h.conn.Where("id = ?", *res.Results[0].EntryID).Take(&entry).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if entry.OrderID == nil || *entry.OrderID != order.ID {
		t.Fatalf("entry order ref = %v", entry.OrderID)
	}
}

func TestCheckoutHybridDeclineLeavesNoTrace(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	h.gateway.statusCode = "800.100.151"
	competition := dbtest.Competition(t, h.conn, 100, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 300)

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 5}},
		PaymentMethod: models.PaymentMethodHybrid,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.ErrorKind != apperrors.KindGatewayDeclined || res.Status != models.OrderStatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if got := h.balance(t, user.ID); got != 300 {
		t.Fatalf("balance = %d, want 300", got)
	}
	if got := h.entryCount(t, competition.ID); got != 0 {
		t.Fatalf("entries = %d", got)
	}
	last, err := h.seq.LastIssued(context.Background(), competition.ID)
	if err != nil {
		t.Fatalf("last issued: %v", err)
	}
	if last != 0 {
		t.Fatalf("counter moved to %d", last)
	}
	payment, err := payments.NewTracker(h.conn, "").FindByCheckoutID(context.Background(), res.CheckoutID)
	if err != nil {
		t.Fatalf("find payment: %v", err)
	}
	if payment == nil || payment.Succeeded || payment.StatusCode != "800.100.151" {
		t.Fatalf("payment = %+v", payment)
	}
}

func TestCheckoutGatewayTimeout(t *testing.T) {
	h := newHarness(t, Config{GatewayTimeout: 50 * time.Millisecond})
	h.gateway.block = true
	competition := dbtest.Competition(t, h.conn, 10, 100)
	user := dbtest.User(t, h.conn, "user-1")

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 2}},
		PaymentMethod: models.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.ErrorKind != apperrors.KindGatewayTimeout {
		t.Fatalf("result = %+v", res)
	}
	if got := h.entryCount(t, competition.ID); got != 0 {
		t.Fatalf("entries = %d", got)
	}
	if h.order(t, res.OrderID).Status != models.OrderStatusFailed {
		t.Fatalf("order not failed")
	}
}

func TestCheckoutWalletInsufficientFunds(t *testing.T) {
	h := newHarness(t, Config{})
	competition := dbtest.Competition(t, h.conn, 10, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 150)

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 2}},
		PaymentMethod: models.PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.ErrorKind != apperrors.KindInsufficientFunds {
		t.Fatalf("result = %+v", res)
	}
	if got := h.balance(t, user.ID); got != 150 {
		t.Fatalf("balance = %d", got)
	}
	if h.gateway.calls.Load() != 0 {
		t.Fatalf("gateway called for wallet checkout")
	}
}

func TestConcurrentCheckoutsForLastTickets(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	competition := dbtest.Competition(t, h.conn, 10, 100)
	if _, err := h.seq.Reserve(context.Background(), competition.ID, 2); err != nil {
		t.Fatalf("pre-sell: %v", err)
	}
	users := []models.User{dbtest.User(t, h.conn, "user-a"), dbtest.User(t, h.conn, "user-b")}
	for _, u := range users {
		h.topUp(t, u.ID, 1000)
	}

	results := make([]*Result, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, userID uint64) {
			defer wg.Done()
			res, err := h.coord.Checkout(context.Background(), Request{
				UserID:        userID,
				Lines:         []Line{{CompetitionID: competition.ID, Quantity: 5}},
				PaymentMethod: models.PaymentMethodWallet,
			})
			if err != nil {
				t.Errorf("checkout %d: %v", i, err)
				return
			}
			results[i] = res
		}(i, u.ID)
	}
	wg.Wait()

	winners := 0
	for i, res := range results {
		if res == nil {
			t.Fatalf("missing result %d", i)
		}
		if res.Success {
			winners++
			if got := h.balance(t, users[i].ID); got != 500 {
				t.Fatalf("winner balance = %d", got)
			}
			continue
		}
		if res.Results[0].ErrorKind != apperrors.KindCapacityExceeded {
			t.Fatalf("loser line = %+v", res.Results[0])
		}
		if got := h.balance(t, users[i].ID); got != 1000 {
			t.Fatalf("loser balance = %d, want 1000", got)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d", winners)
	}
	last, _ := h.seq.LastIssued(context.Background(), competition.ID)
	if last != 7 {
		t.Fatalf("last issued = %d, want 7", last)
	}
}

func TestCheckoutRefundsLineSoldOutDuringPayment(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	competition := dbtest.Competition(t, h.conn, 5, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.gateway.onAuthorize = func() {
		if _, err := h.seq.Reserve(context.Background(), competition.ID, 4); err != nil {
			t.Errorf("competing reserve: %v", err)
		}
	}

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 3}},
		PaymentMethod: models.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.Status != models.OrderStatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if res.RefundedAmount != 300 {
		t.Fatalf("refunded = %d", res.RefundedAmount)
	}
	if got := h.balance(t, user.ID); got != 300 {
		t.Fatalf("wallet after refund = %d", got)
	}
	summary := h.order(t, res.OrderID).OrderSummary.Data()
	if len(summary.Lines) != 1 || !summary.Lines[0].Refunded || summary.UnsettledAmount != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestCheckoutRecordsUnsettledWithoutWalletRefund(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: false})
	competition := dbtest.Competition(t, h.conn, 5, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.gateway.onAuthorize = func() {
		if _, err := h.seq.Reserve(context.Background(), competition.ID, 5); err != nil {
			t.Errorf("competing reserve: %v", err)
		}
	}

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 1}},
		PaymentMethod: models.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.RefundedAmount != 0 {
		t.Fatalf("result = %+v", res)
	}
	if got := h.balance(t, user.ID); got != 0 {
		t.Fatalf("wallet = %d", got)
	}
	if got := h.order(t, res.OrderID).OrderSummary.Data().UnsettledAmount; got != 100 {
		t.Fatalf("unsettled = %d", got)
	}
}

func TestCheckoutHybridWalletFailureRefundsCardShareOnce(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	first := dbtest.Competition(t, h.conn, 100, 100)
	second := dbtest.Competition(t, h.conn, 100, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 300)
	h.gateway.onAuthorize = func() {
		if _, err := h.ledger.Debit(context.Background(), user.ID, 300, wallet.Meta{Reason: models.WalletReasonAdjustment}); err != nil {
			t.Errorf("drain wallet: %v", err)
		}
	}

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID: user.ID,
		Lines: []Line{
			{CompetitionID: first.ID, Quantity: 2},
			{CompetitionID: second.ID, Quantity: 2},
		},
		PaymentMethod: models.PaymentMethodHybrid,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.Status != models.OrderStatusFailed {
		t.Fatalf("result = %+v", res)
	}
	if res.RefundedAmount != 100 {
		t.Fatalf("refunded = %d, want the card share 100", res.RefundedAmount)
	}
	if got := h.balance(t, user.ID); got != 100 {
		t.Fatalf("wallet = %d, want 100", got)
	}
	summary := h.order(t, res.OrderID).OrderSummary.Data()
	if len(summary.Lines) != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if !summary.Lines[0].Refunded || summary.Lines[1].Refunded {
		t.Fatalf("refunded flags = %v, %v", summary.Lines[0].Refunded, summary.Lines[1].Refunded)
	}
}

func TestCheckoutRejectsCartTotalOverflow(t *testing.T) {
	h := newHarness(t, Config{})
	first := dbtest.Competition(t, h.conn, 100, 1<<61)
	second := dbtest.Competition(t, h.conn, 100, 1<<61)
	user := dbtest.User(t, h.conn, "user-1")

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID: user.ID,
		Lines: []Line{
			{CompetitionID: first.ID, Quantity: 2},
			{CompetitionID: second.ID, Quantity: 2},
		},
		PaymentMethod: models.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.ErrorKind != apperrors.KindInvalidArgument {
		t.Fatalf("result = %+v", res)
	}
	if got := h.gateway.calls.Load(); got != 0 {
		t.Fatalf("gateway called %d times", got)
	}
	var orders int64
	if err := h.conn.Model(&models.Order{}).Count(&orders).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 0 {
		t.Fatalf("orders = %d, want none", orders)
	}
}

func TestCheckoutPartialCartCompletesOrder(t *testing.T) {
	h := newHarness(t, Config{RefundFailedLinesToWallet: true})
	open := dbtest.Competition(t, h.conn, 10, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 1000)

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID: user.ID,
		Lines: []Line{
			{CompetitionID: open.ID, Quantity: 2},
			{CompetitionID: 9999, Quantity: 1},
		},
		PaymentMethod: models.PaymentMethodWallet,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.Status != models.OrderStatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	if !res.Results[0].Success || res.Results[1].ErrorKind != apperrors.KindNotFound {
		t.Fatalf("lines = %+v", res.Results)
	}
	if res.TotalAmount != 200 {
		t.Fatalf("charged %d for unpriced line", res.TotalAmount)
	}
	if got := h.balance(t, user.ID); got != 800 {
		t.Fatalf("balance = %d", got)
	}
}

func TestCheckoutReplaysSameCheckoutID(t *testing.T) {
	h := newHarness(t, Config{})
	competition := dbtest.Competition(t, h.conn, 10, 100)
	user := dbtest.User(t, h.conn, "user-1")
	req := Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 2}},
		PaymentMethod: models.PaymentMethodCard,
		CheckoutID:    "chk-replay",
	}

	first, err := h.coord.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := h.coord.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if h.gateway.calls.Load() != 1 {
		t.Fatalf("gateway calls = %d", h.gateway.calls.Load())
	}
	if second.OrderID != first.OrderID || !second.Success || len(second.Results) != 1 {
		t.Fatalf("replay = %+v", second)
	}
	if got := second.Results[0].TicketNumbers; len(got) != 2 || got[0] != 1 {
		t.Fatalf("replayed tickets = %v", got)
	}
	if got := h.entryCount(t, competition.ID); got != 1 {
		t.Fatalf("entries = %d", got)
	}

	other := dbtest.User(t, h.conn, "user-2")
	req.UserID = other.ID
	stolen, err := h.coord.Checkout(context.Background(), req)
	if err != nil {
		t.Fatalf("foreign replay: %v", err)
	}
	if stolen.Success || stolen.ErrorKind != apperrors.KindInvalidArgument {
		t.Fatalf("foreign replay = %+v", stolen)
	}
}

func TestCheckoutReportsWinningTickets(t *testing.T) {
	h := newHarness(t, Config{})
	competition := dbtest.Competition(t, h.conn, 9, 100)
	user := dbtest.User(t, h.conn, "user-1")
	h.topUp(t, user.ID, 600)

	reg := winning.NewRegistry(h.conn)
	prize, err := reg.CreatePrize(context.Background(), competition.ID, winning.PrizeInput{Title: "Car", TotalQuantity: 1, Phase: 2})
	if err != nil {
		t.Fatalf("create prize: %v", err)
	}
	if _, err := reg.Seed(context.Background(), prize.ID, []int64{5}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	buy := func() *Result {
		res, err := h.coord.Checkout(context.Background(), Request{
			UserID:        user.ID,
			Lines:         []Line{{CompetitionID: competition.ID, Quantity: 3}},
			PaymentMethod: models.PaymentMethodWallet,
		})
		if err != nil {
			t.Fatalf("checkout: %v", err)
		}
		return res
	}
	if first := buy(); len(first.Results[0].WinningTickets) != 0 {
		t.Fatalf("first block won %v", first.Results[0].WinningTickets)
	}
	second := buy()
	won := second.Results[0].WinningTickets
	if len(won) != 1 || won[0].TicketNumber != 5 || won[0].PrizeID != prize.ID {
		t.Fatalf("won = %+v", won)
	}

	var ticket models.WinningTicket
	if err := h.conn.Where("prize_id = ? AND ticket_number = ?", prize.ID, 5).Take(&ticket).Error; err != nil {
		t.Fatalf("load winning ticket: %v", err)
	}
	if ticket.Status != models.WinningTicketClaimed || ticket.UserID == nil || *ticket.UserID != user.ID {
		t.Fatalf("ticket = %+v", ticket)
	}
	if err := reg.EnsureEditable(context.Background(), competition.ID); !apperrors.Is(err, apperrors.KindPrizeConfigLocked) {
		t.Fatalf("prize config editable after claim: %v", err)
	}
}

func TestCheckoutRejectsInvalidRequests(t *testing.T) {
	h := newHarness(t, Config{})
	competition := dbtest.Competition(t, h.conn, 10, 100)
	user := dbtest.User(t, h.conn, "user-1")

	tests := []struct {
		name string
		req  Request
		kind apperrors.Kind
	}{
		{name: "no user", req: Request{Lines: []Line{{CompetitionID: competition.ID, Quantity: 1}}, PaymentMethod: models.PaymentMethodCard}, kind: apperrors.KindUnauthorized},
		{name: "empty cart", req: Request{UserID: user.ID, PaymentMethod: models.PaymentMethodCard}, kind: apperrors.KindInvalidArgument},
		{name: "bad method", req: Request{UserID: user.ID, Lines: []Line{{CompetitionID: competition.ID, Quantity: 1}}, PaymentMethod: "cash"}, kind: apperrors.KindInvalidArgument},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := h.coord.Checkout(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("checkout: %v", err)
			}
			if res.Success || res.ErrorKind != tc.kind {
				t.Fatalf("result = %+v", res)
			}
		})
	}

	res, err := h.coord.Checkout(context.Background(), Request{
		UserID:        user.ID,
		Lines:         []Line{{CompetitionID: competition.ID, Quantity: 0}, {CompetitionID: competition.ID, Quantity: 11}},
		PaymentMethod: models.PaymentMethodCard,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if res.Success || res.Status != models.OrderStatusFailed || res.Results[1].ErrorKind != apperrors.KindCapacityExceeded {
		t.Fatalf("result = %+v", res)
	}
	if h.gateway.calls.Load() != 0 {
		t.Fatalf("gateway charged for unpriceable cart")
	}
}
