package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"gorm.io/gorm"
)

// OrderHandler exposes orders and gateway records for reconciliation.
type OrderHandler struct {
	db      *gorm.DB
	tracker *payments.Tracker
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(db *gorm.DB, tracker *payments.Tracker) *OrderHandler {
	return &OrderHandler{db: db, tracker: tracker}
}

// Get returns any order with its payment transactions.
func (h *OrderHandler) Get(c *gin.Context) {
	orderID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	ctx := c.Request.Context()
	var order models.Order
	errFind := h.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	txns, errList := h.tracker.ListForOrder(ctx, order.ID)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":                order,
		"summary":              order.OrderSummary.Data(),
		"payment_transactions": txns,
	})
}

// PaymentByCheckout returns the latest card authorization for a checkout id.
func (h *OrderHandler) PaymentByCheckout(c *gin.Context) {
	checkoutID := strings.TrimSpace(c.Param("checkout_id"))
	if checkoutID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing checkout id"})
		return
	}
	txn, errFind := h.tracker.FindByCheckoutID(c.Request.Context(), checkoutID)
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	c.JSON(http.StatusOK, txn)
}
