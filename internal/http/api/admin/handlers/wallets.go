package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/money"
	"github.com/rafflehq/ticket-engine/internal/wallet"
)

// WalletHandler lets operators inspect and top up user wallets.
type WalletHandler struct {
	ledger *wallet.Ledger
}

// NewWalletHandler constructs a WalletHandler.
func NewWalletHandler(ledger *wallet.Ledger) *WalletHandler {
	return &WalletHandler{ledger: ledger}
}

// Get returns a user's balance and recent transactions.
func (h *WalletHandler) Get(c *gin.Context) {
	userID, errParse := parseUintParam(c.Param("user_id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	limit := 100
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, errLimit := strconv.Atoi(raw)
		if errLimit != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	ctx := c.Request.Context()
	balance, errBalance := h.ledger.Balance(ctx, userID)
	if errBalance != nil {
		apihttp.AbortWithError(c, errBalance)
		return
	}
	txns, errTxns := h.ledger.Transactions(ctx, userID, limit)
	if errTxns != nil {
		apihttp.AbortWithError(c, errTxns)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":         userID,
		"balance":         balance,
		"balance_display": money.FormatPounds(balance),
		"transactions":    txns,
	})
}

// creditRequest is a manual wallet top-up.
type creditRequest struct {
	Amount string `json:"amount"` // Pounds, e.g. "10.00".
	Reason string `json:"reason"` // Ledger reason; defaults to admin_credit.
}

// Credit adds funds to a user's wallet.
func (h *WalletHandler) Credit(c *gin.Context) {
	userID, errParse := parseUintParam(c.Param("user_id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var body creditRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	amount, errAmount := money.ParsePounds(body.Amount)
	if errAmount != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "admin_credit"
	}
	txn, errCredit := h.ledger.Credit(c.Request.Context(), userID, amount, wallet.Meta{Reason: reason})
	if errCredit != nil {
		apihttp.AbortWithError(c, errCredit)
		return
	}
	adminID, _ := readAdminIDFromContext(c)
	logging.WithRequest(c).WithField("user_id", userID).WithField("admin_id", adminID).
		WithField("amount", amount).Info("wallet credited by admin")
	c.JSON(http.StatusCreated, txn)
}
