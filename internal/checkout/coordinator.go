// Package checkout turns a cart into ticket entries, paying with wallet credit, a
// card authorization, or both.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/money"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/retry"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	"github.com/rafflehq/ticket-engine/internal/settings"
	"github.com/rafflehq/ticket-engine/internal/settlement"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultGatewayTimeout = 15 * time.Second
	defaultGuardTTL       = 2 * time.Minute
	defaultCurrency       = "GBP"
)

// Line is one cart line.
type Line struct {
	CompetitionID uint64 `json:"competition_id"`
	Quantity      int64  `json:"quantity"`
}

// Request is a checkout attempt.
type Request struct {
	UserID        uint64
	Lines         []Line
	PaymentMethod string
	// CheckoutID identifies the attempt. Resubmitting the same id replays the stored
	// outcome instead of charging again. Generated when empty.
	CheckoutID    string
	AffiliateCode string
}

// LineResult is the per-line outcome.
type LineResult struct {
	CompetitionID  uint64                    `json:"competition_id"`
	Success        bool                      `json:"success"`
	EntryID        *uint64                   `json:"entry_id,omitempty"`
	TicketNumbers  []int64                   `json:"ticket_numbers,omitempty"`
	WinningTickets []models.WinningTicketRef `json:"winning_tickets,omitempty"`
	Message        string                    `json:"message"`
	ErrorKind      apperrors.Kind            `json:"error_kind,omitempty"`
}

// Result is the outcome of a checkout. Success is true only when every line succeeded.
type Result struct {
	Success        bool           `json:"success"`
	Message        string         `json:"message"`
	ErrorKind      apperrors.Kind `json:"error_kind,omitempty"`
	OrderID        uint64         `json:"order_id,omitempty"`
	CheckoutID     string         `json:"checkout_id"`
	Status         string         `json:"status,omitempty"`
	WalletAmount   int64          `json:"wallet_amount"`
	CardAmount     int64          `json:"card_amount"`
	TotalAmount    int64          `json:"total_amount"`
	RefundedAmount int64          `json:"refunded_amount"`
	Results        []LineResult   `json:"results"`
}

// Guard serializes concurrent submissions of the same checkout id.
type Guard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool)
}

// Config tunes the coordinator.
type Config struct {
	Currency                  string
	GatewayTimeout            time.Duration
	MaxQuantityPerLine        int64
	RefundFailedLinesToWallet bool
	Retry                     retry.Policy
	GuardTTL                  time.Duration
}

// Deps are the collaborators of the coordinator.
type Deps struct {
	Sequencer *sequencer.Sequencer
	Entries   *entries.Store
	Wallet    *wallet.Ledger
	Payments  *payments.Tracker
	Gateway   payments.Gateway
	Detector  *settlement.Detector
	Guard     Guard
}

// Coordinator runs checkouts.
type Coordinator struct {
	db   *gorm.DB
	deps Deps
	cfg  Config
	now  func() time.Time
}

// New returns a Coordinator.
func New(conn *gorm.DB, deps Deps, cfg Config) *Coordinator {
	if cfg.Currency == "" {
		cfg.Currency = defaultCurrency
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = defaultGuardTTL
	}
	if deps.Detector == nil {
		deps.Detector = settlement.NewDetector()
	}
	return &Coordinator{db: conn, deps: deps, cfg: cfg, now: time.Now}
}

// pricedLine is a cart line after validation.
type pricedLine struct {
	index     int
	line      Line
	unitPrice int64
	total     int64
}

// Checkout runs one checkout attempt. Business failures such as a sold out competition,
// a declined card or missing funds are reported in the Result; an error is returned
// only for unexpected infrastructure failures.
func (c *Coordinator) Checkout(ctx context.Context, req Request) (*Result, error) {
	checkoutID := strings.TrimSpace(req.CheckoutID)
	if checkoutID == "" {
		checkoutID = uuid.NewString()
	}
	logger := log.WithFields(log.Fields{
		"checkout_id": checkoutID,
		"user_id":     req.UserID,
		"method":      req.PaymentMethod,
	})

	if errValidate := validateRequest(req); errValidate != nil {
		return rejected(checkoutID, errValidate), nil
	}

	release, acquired := c.guard().Acquire(ctx, "checkout:"+checkoutID, c.cfg.GuardTTL)
	if !acquired {
		return rejected(checkoutID, apperrors.New(apperrors.KindInvalidArgument, "this checkout is already being processed")), nil
	}
	defer release()

	if existing, errFind := c.findOrder(ctx, checkoutID); errFind != nil {
		return nil, errFind
	} else if existing != nil {
		logger.Info("checkout: replaying stored order")
		return replay(existing, req.UserID), nil
	}

	results := make([]LineResult, len(req.Lines))
	priced, errPrice := c.priceLines(ctx, req.Lines, results)
	if errPrice != nil {
		return nil, errPrice
	}

	lineTotals := make([]int64, 0, len(priced))
	for _, p := range priced {
		lineTotals = append(lineTotals, p.total)
	}
	totalDue, errSum := money.Sum(lineTotals...)
	if errSum != nil {
		return rejected(checkoutID, apperrors.Wrap(apperrors.KindInvalidArgument, errSum, "cart total out of range")), nil
	}

	order := &models.Order{
		CheckoutID:    checkoutID,
		UserID:        req.UserID,
		Currency:      c.cfg.Currency,
		Status:        models.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		TotalAmount:   totalDue,
	}
	if code := strings.TrimSpace(req.AffiliateCode); code != "" {
		order.AffiliateCode = &code
	}
	if errCreate := c.db.WithContext(ctx).Create(order).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			existing, errFind := c.findOrder(ctx, checkoutID)
			if errFind != nil || existing == nil {
				return nil, fmt.Errorf("checkout: load concurrent order: %w", errFind)
			}
			return replay(existing, req.UserID), nil
		}
		return nil, fmt.Errorf("checkout: create order: %w", errCreate)
	}
	logger = logger.WithField("order_id", order.ID)

	if len(priced) == 0 {
		return c.finish(ctx, order, results, nil, nil, "no cart line could be purchased")
	}

	walletAmount, cardAmount, errSplit := c.split(ctx, req, totalDue)
	if errSplit != nil {
		if apperrors.IsBusiness(errSplit) {
			failAll(results, priced, errSplit)
			return c.finish(ctx, order, results, errSplit, nil, "")
		}
		return nil, errSplit
	}
	order.WalletAmount = walletAmount
	order.PaymentAmount = cardAmount

	if cardAmount > 0 {
		payment, errAuth := c.authorize(ctx, order, cardAmount)
		if payment != nil {
			order.PaymentTransactionID = &payment.ID
		}
		if errAuth != nil {
			if !apperrors.IsBusiness(errAuth) {
				return nil, errAuth
			}
			logger.WithField("error_class", apperrors.KindOf(errAuth)).WithError(errAuth).Warn("checkout: card not authorized")
			order.WalletAmount = 0
			order.PaymentAmount = 0
			failAll(results, priced, errAuth)
			return c.finish(ctx, order, results, errAuth, nil, "")
		}
	}

	if walletAmount > 0 {
		tickets := totalTickets(priced)
		debit, errDebit := c.deps.Wallet.Debit(ctx, req.UserID, walletAmount, wallet.Meta{
			Reason:          models.WalletReasonCheckout,
			OrderID:         &order.ID,
			NumberOfTickets: &tickets,
		})
		if errDebit != nil {
			if !apperrors.IsBusiness(errDebit) && cardAmount == 0 {
				return nil, errDebit
			}
			logger.WithField("error_class", apperrors.KindOf(errDebit)).WithError(errDebit).Warn("checkout: wallet debit failed")
			order.WalletAmount = 0
			failAll(results, priced, errDebit)
			var owed map[int]int64
			if cardAmount > 0 {
				// Only the card share was collected.
				owed = map[int]int64{priced[0].index: cardAmount}
			}
			return c.finish(ctx, order, results, errDebit, owed, "")
		}
		order.WalletTransactionID = &debit.ID
	}

	refs := entries.FundingRefs{
		WalletTransactionID:  order.WalletTransactionID,
		PaymentTransactionID: order.PaymentTransactionID,
		OrderID:              &order.ID,
	}
	owed := make(map[int]int64)
	for _, p := range priced {
		lineResult, errLine := c.purchaseLine(ctx, req.UserID, p, refs)
		if errLine != nil {
			owed[p.index] = p.total
			kind := apperrors.KindOf(errLine)
			fields := log.Fields{"competition_id": p.line.CompetitionID, "error_class": kind}
			if kind == apperrors.KindIntegrityViolation {
				fields["severity"] = "fatal-class"
			}
			if apperrors.IsBusiness(errLine) {
				logger.WithFields(fields).WithError(errLine).Warn("checkout: line failed after payment")
			} else {
				logger.WithFields(fields).WithError(errLine).Error("checkout: line failed after payment")
			}
			results[p.index] = failedLine(p.line.CompetitionID, errLine)
			continue
		}
		results[p.index] = *lineResult
	}

	return c.finish(ctx, order, results, nil, owed, "")
}

func (c *Coordinator) guard() Guard {
	if c.deps.Guard == nil {
		return noopGuard{}
	}
	return c.deps.Guard
}

// priceLines validates each line against its competition and prices it. Lines that fail
// here are never charged.
func (c *Coordinator) priceLines(ctx context.Context, lines []Line, results []LineResult) ([]pricedLine, error) {
	maxQty := int64(settings.IntOr(settings.CheckoutMaxQuantityPerLineKey, int(c.cfg.MaxQuantityPerLine)))
	if maxQty <= 0 {
		maxQty = settings.DefaultCheckoutMaxQuantityPerLine
	}
	now := c.now()

	var priced []pricedLine
	for i, line := range lines {
		if line.Quantity <= 0 {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindInvalidArgument, "quantity must be positive"))
			continue
		}
		if line.Quantity > maxQty {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindInvalidArgument, "at most %d tickets per line", maxQty))
			continue
		}
		var competition models.Competition
		errFind := c.db.WithContext(ctx).Where("id = ?", line.CompetitionID).Take(&competition).Error
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindNotFound, "competition %d not found", line.CompetitionID))
			continue
		}
		if errFind != nil {
			return nil, fmt.Errorf("checkout: load competition: %w", errFind)
		}
		if !competition.AcceptsEntries(now) {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindCompetitionClosed, "competition is not accepting entries"))
			continue
		}
		if !strings.EqualFold(competition.Currency, c.cfg.Currency) {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindInvalidArgument, "competition is priced in %s", competition.Currency))
			continue
		}
		if competition.Remaining() < line.Quantity {
			results[i] = failedLine(line.CompetitionID, apperrors.New(apperrors.KindCapacityExceeded,
				"only %d tickets remain", competition.Remaining()))
			continue
		}
		total, errTotal := money.LineTotal(competition.TicketPrice, int(line.Quantity))
		if errTotal != nil {
			results[i] = failedLine(line.CompetitionID, apperrors.Wrap(apperrors.KindInvalidArgument, errTotal, "cannot price line"))
			continue
		}
		priced = append(priced, pricedLine{index: i, line: line, unitPrice: competition.TicketPrice, total: total})
	}
	return priced, nil
}

// split decides how much of totalDue comes from the wallet and how much from the card.
func (c *Coordinator) split(ctx context.Context, req Request, totalDue int64) (walletAmount, cardAmount int64, err error) {
	switch req.PaymentMethod {
	case models.PaymentMethodCard:
		return 0, totalDue, nil
	case models.PaymentMethodWallet:
		balance, errBalance := c.deps.Wallet.Balance(ctx, req.UserID)
		if errBalance != nil {
			return 0, 0, errBalance
		}
		if balance < totalDue {
			return 0, 0, apperrors.New(apperrors.KindInsufficientFunds,
				"wallet balance %s does not cover %s", money.FormatPounds(balance), money.FormatPounds(totalDue))
		}
		return totalDue, 0, nil
	case models.PaymentMethodHybrid:
		balance, errBalance := c.deps.Wallet.Balance(ctx, req.UserID)
		if errBalance != nil {
			return 0, 0, errBalance
		}
		walletAmount = min(balance, totalDue)
		return walletAmount, totalDue - walletAmount, nil
	default:
		return 0, 0, apperrors.New(apperrors.KindInvalidArgument, "unsupported payment method %q", req.PaymentMethod)
	}
}

// authorize charges the card under a deadline, using the checkout id as idempotency
// key, and records the attempt whatever the outcome.
func (c *Coordinator) authorize(ctx context.Context, order *models.Order, amount int64) (*models.PaymentTransaction, error) {
	if c.deps.Gateway == nil {
		return nil, apperrors.New(apperrors.KindGatewayDeclined, "card payments are not available")
	}
	authCtx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	result, errAuth := c.deps.Gateway.Authorize(authCtx, payments.AuthorizeRequest{
		Amount:         amount,
		Currency:       order.Currency,
		IdempotencyKey: order.CheckoutID,
		UserID:         order.UserID,
	})
	cancel()

	if errAuth != nil {
		errAuth = classifyGatewayError(errAuth)
		result = &payments.AuthorizeResult{
			StatusCode:        string(apperrors.KindOf(errAuth)),
			StatusDescription: errAuth.Error(),
		}
	}

	payment, errRecord := c.deps.Payments.Record(ctx, payments.RecordInput{
		Kind:       models.PaymentKindAuthorization,
		CheckoutID: order.CheckoutID,
		UserID:     order.UserID,
		Amount:     amount,
		Currency:   order.Currency,
		Result:     result,
		OrderID:    &order.ID,
	})
	if errRecord != nil {
		return nil, errRecord
	}
	if errAuth != nil {
		return payment, errAuth
	}
	if !payment.Succeeded {
		description := strings.TrimSpace(result.StatusDescription)
		if description == "" {
			description = "payment declined"
		}
		return payment, apperrors.New(apperrors.KindGatewayDeclined, "%s (%s)", description, result.StatusCode)
	}
	return payment, nil
}

// purchaseLine reserves, records and settles one line in its own transaction, retried
// on lock contention.
func (c *Coordinator) purchaseLine(ctx context.Context, userID uint64, p pricedLine, refs entries.FundingRefs) (*LineResult, error) {
	var out *LineResult
	errDo := retry.Do(ctx, c.cfg.Retry, "checkout.line", db.IsContention, func(ctx context.Context) error {
		return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			reserved, errReserve := c.deps.Sequencer.ReserveTx(tx, p.line.CompetitionID, p.line.Quantity)
			if errReserve != nil {
				return errReserve
			}
			entry, errEntry := c.deps.Entries.CreateEntryTx(tx, p.line.CompetitionID, userID, reserved.Numbers(), refs)
			if errEntry != nil {
				return errEntry
			}
			won := c.deps.Detector.Detect(tx, entry)
			entryID := entry.ID
			message := fmt.Sprintf("%d tickets allocated", reserved.Count())
			if len(won) > 0 {
				message = fmt.Sprintf("%s, %d winning", message, len(won))
			}
			out = &LineResult{
				CompetitionID:  p.line.CompetitionID,
				Success:        true,
				EntryID:        &entryID,
				TicketNumbers:  reserved.Numbers(),
				WinningTickets: won,
				Message:        message,
			}
			return nil
		})
	})
	if errDo != nil {
		return nil, errDo
	}
	return out, nil
}

// finish compensates money collected for lines that did not settle, keyed by line
// index, then moves the order out of pending and builds the result.
func (c *Coordinator) finish(ctx context.Context, order *models.Order, results []LineResult, orderErr error, owedByLine map[int]int64, message string) (*Result, error) {
	logger := log.WithFields(log.Fields{"checkout_id": order.CheckoutID, "order_id": order.ID})

	var owed, unsettled int64
	for _, amount := range owedByLine {
		owed += amount
	}
	if owed > 0 {
		if c.cfg.RefundFailedLinesToWallet {
			_, errCredit := c.deps.Wallet.Credit(ctx, order.UserID, owed, wallet.Meta{
				Reason:  models.WalletReasonRefund,
				OrderID: &order.ID,
			})
			if errCredit != nil {
				logger.WithError(errCredit).WithField("amount", owed).Error("checkout: refund to wallet failed, left unsettled")
				unsettled = owed
			} else {
				order.RefundedAmount = owed
			}
		} else {
			unsettled = owed
			logger.WithField("amount", owed).Warn("checkout: amount charged for failed lines needs manual reconciliation")
		}
	}

	succeeded := 0
	var tickets int64
	summary := models.OrderSummary{UnsettledAmount: unsettled}
	for i, r := range results {
		if r.Success {
			succeeded++
			tickets += int64(len(r.TicketNumbers))
		}
		summary.Lines = append(summary.Lines, summaryLine(r, owedByLine[i] > 0 && order.RefundedAmount > 0))
	}

	status := models.OrderStatusCompleted
	if succeeded == 0 {
		status = models.OrderStatusFailed
	}
	if message == "" {
		message = resultMessage(orderErr, succeeded, len(results))
	}
	summary.Message = message
	completedAt := c.now().UTC()

	order.Status = status
	order.TotalTickets = tickets
	order.OrderSummary = datatypes.NewJSONType(summary)
	order.CompletedAt = &completedAt
	res := c.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Updates(map[string]any{
			"status":                 order.Status,
			"total_tickets":          order.TotalTickets,
			"wallet_amount":          order.WalletAmount,
			"payment_amount":         order.PaymentAmount,
			"refunded_amount":        order.RefundedAmount,
			"order_summary":          order.OrderSummary,
			"wallet_transaction_id":  order.WalletTransactionID,
			"payment_transaction_id": order.PaymentTransactionID,
			"completed_at":           order.CompletedAt,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("checkout: finalize order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		logger.Warn("checkout: order left pending state before finalize")
	}

	logger.WithFields(log.Fields{
		"status":    status,
		"succeeded": succeeded,
		"lines":     len(results),
		"refunded":  order.RefundedAmount,
		"unsettled": unsettled,
	}).Info("checkout: finished")

	out := &Result{
		Success:        succeeded == len(results) && orderErr == nil,
		Message:        message,
		OrderID:        order.ID,
		CheckoutID:     order.CheckoutID,
		Status:         status,
		WalletAmount:   order.WalletAmount,
		CardAmount:     order.PaymentAmount,
		TotalAmount:    order.TotalAmount,
		RefundedAmount: order.RefundedAmount,
		Results:        results,
	}
	if orderErr != nil {
		out.ErrorKind = apperrors.KindOf(orderErr)
	}
	return out, nil
}

func (c *Coordinator) findOrder(ctx context.Context, checkoutID string) (*models.Order, error) {
	var order models.Order
	errFind := c.db.WithContext(ctx).Where("checkout_id = ?", checkoutID).Take(&order).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if errFind != nil {
		return nil, fmt.Errorf("checkout: find order: %w", errFind)
	}
	return &order, nil
}

// classifyGatewayError maps unclassified gateway failures onto the gateway error kinds.
func classifyGatewayError(err error) error {
	switch apperrors.KindOf(err) {
	case apperrors.KindGatewayTimeout, apperrors.KindGatewayDeclined:
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindGatewayTimeout, err, "payment gateway did not respond in time")
	}
	return apperrors.Wrap(apperrors.KindGatewayDeclined, err, "payment gateway error")
}

func validateRequest(req Request) error {
	if req.UserID == 0 {
		return apperrors.New(apperrors.KindUnauthorized, "unknown user")
	}
	if len(req.Lines) == 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "cart is empty")
	}
	switch req.PaymentMethod {
	case models.PaymentMethodWallet, models.PaymentMethodCard, models.PaymentMethodHybrid:
	default:
		return apperrors.New(apperrors.KindInvalidArgument, "unsupported payment method %q", req.PaymentMethod)
	}
	return nil
}

func rejected(checkoutID string, err error) *Result {
	return &Result{
		Success:    false,
		Message:    apperrors.Message(err),
		ErrorKind:  apperrors.KindOf(err),
		CheckoutID: checkoutID,
		Results:    []LineResult{},
	}
}

// replay rebuilds a Result from a stored order.
func replay(order *models.Order, userID uint64) *Result {
	if order.UserID != userID {
		return rejected(order.CheckoutID, apperrors.New(apperrors.KindInvalidArgument, "checkout id already used"))
	}
	summary := order.OrderSummary.Data()
	out := &Result{
		Success:        order.Status == models.OrderStatusCompleted,
		Message:        summary.Message,
		OrderID:        order.ID,
		CheckoutID:     order.CheckoutID,
		Status:         order.Status,
		WalletAmount:   order.WalletAmount,
		CardAmount:     order.PaymentAmount,
		TotalAmount:    order.TotalAmount,
		RefundedAmount: order.RefundedAmount,
		Results:        make([]LineResult, 0, len(summary.Lines)),
	}
	if order.Status == models.OrderStatusPending {
		out.Message = "checkout is still being processed"
	}
	for _, line := range summary.Lines {
		if !line.Success {
			out.Success = false
		}
		out.Results = append(out.Results, LineResult{
			CompetitionID:  line.CompetitionID,
			Success:        line.Success,
			EntryID:        line.EntryID,
			TicketNumbers:  line.TicketNumbers,
			WinningTickets: line.WinningTickets,
			Message:        line.Message,
			ErrorKind:      apperrors.Kind(line.ErrorKind),
		})
	}
	return out
}

func summaryLine(r LineResult, refunded bool) models.OrderSummaryLine {
	return models.OrderSummaryLine{
		CompetitionID:  r.CompetitionID,
		Success:        r.Success,
		EntryID:        r.EntryID,
		TicketNumbers:  r.TicketNumbers,
		WinningTickets: r.WinningTickets,
		ErrorKind:      string(r.ErrorKind),
		Message:        r.Message,
		Refunded:       refunded,
	}
}

func failedLine(competitionID uint64, err error) LineResult {
	return LineResult{
		CompetitionID: competitionID,
		Success:       false,
		Message:       apperrors.Message(err),
		ErrorKind:     apperrors.KindOf(err),
	}
}

func failAll(results []LineResult, priced []pricedLine, err error) {
	for _, p := range priced {
		results[p.index] = failedLine(p.line.CompetitionID, err)
	}
}

func totalTickets(priced []pricedLine) int64 {
	var n int64
	for _, p := range priced {
		n += p.line.Quantity
	}
	return n
}

func resultMessage(orderErr error, succeeded, total int) string {
	switch {
	case orderErr != nil:
		return apperrors.Message(orderErr)
	case succeeded == total:
		return "checkout completed"
	case succeeded == 0:
		return "no cart line could be purchased"
	default:
		return fmt.Sprintf("%d of %d cart lines completed", succeeded, total)
	}
}

type noopGuard struct{}

func (noopGuard) Acquire(context.Context, string, time.Duration) (func(), bool) {
	return func() {}, true
}
