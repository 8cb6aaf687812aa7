package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/entries"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/money"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"gorm.io/gorm"
)

// AccountHandler serves the signed-in user's entries, orders and wallet.
type AccountHandler struct {
	db      *gorm.DB
	entries *entries.Store
	wallet  *wallet.Ledger
}

// NewAccountHandler wires an account handler.
func NewAccountHandler(db *gorm.DB, store *entries.Store, ledger *wallet.Ledger) *AccountHandler {
	return &AccountHandler{db: db, entries: store, wallet: ledger}
}

// entryView is the storefront shape of an entry.
type entryView struct {
	ID            uint64    `json:"id"`
	CompetitionID uint64    `json:"competition_id"`
	TicketNumbers []int64   `json:"ticket_numbers"`
	Status        string    `json:"status"`
	OrderID       *uint64   `json:"order_id,omitempty"`
	PurchasedAt   time.Time `json:"purchased_at"`
}

func toEntryView(entry models.CompetitionEntry) entryView {
	return entryView{
		ID:            entry.ID,
		CompetitionID: entry.CompetitionID,
		TicketNumbers: []int64(entry.TicketNumbers),
		Status:        entry.Status,
		OrderID:       entry.OrderID,
		PurchasedAt:   entry.PurchasedAt,
	}
}

// Entries lists the user's entries, optionally filtered by competition_id.
func (h *AccountHandler) Entries(c *gin.Context) {
	var competitionID uint64
	if raw := strings.TrimSpace(c.Query("competition_id")); raw != "" {
		parsed, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition_id"})
			return
		}
		competitionID = parsed
	}

	rows, errList := h.entries.ListForUser(c.Request.Context(), getUserID(c))
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	out := make([]entryView, 0, len(rows))
	for _, row := range rows {
		if competitionID != 0 && row.CompetitionID != competitionID {
			continue
		}
		out = append(out, toEntryView(row))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// Order returns one of the user's orders with its summary.
func (h *AccountHandler) Order(c *gin.Context) {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var order models.Order
	errFind := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", orderID, getUserID(c)).
		Take(&order).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":              order.ID,
		"checkout_id":     order.CheckoutID,
		"status":          order.Status,
		"payment_method":  order.PaymentMethod,
		"currency":        order.Currency,
		"total_amount":    order.TotalAmount,
		"total_display":   money.FormatPounds(order.TotalAmount),
		"wallet_amount":   order.WalletAmount,
		"card_amount":     order.PaymentAmount,
		"refunded_amount": order.RefundedAmount,
		"total_tickets":   order.TotalTickets,
		"summary":         order.OrderSummary.Data(),
		"created_at":      order.CreatedAt,
		"completed_at":    order.CompletedAt,
	})
}

// Wallet returns the balance and recent ledger lines.
func (h *AccountHandler) Wallet(c *gin.Context) {
	userID := getUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	balance, errBalance := h.wallet.Balance(c.Request.Context(), userID)
	if errBalance != nil {
		apihttp.AbortWithError(c, errBalance)
		return
	}
	rows, errList := h.wallet.Transactions(c.Request.Context(), userID, limit)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	lines := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, gin.H{
			"id":                row.ID,
			"amount":            row.Amount,
			"direction":         row.Direction,
			"reason":            row.Reason,
			"balance_after":     row.BalanceAfter,
			"order_id":          row.OrderID,
			"number_of_tickets": row.NumberOfTickets,
			"created_at":        row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":         balance,
		"balance_display": money.FormatPounds(balance),
		"transactions":    lines,
	})
}
