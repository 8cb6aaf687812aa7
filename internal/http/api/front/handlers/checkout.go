package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/checkout"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/money"
	log "github.com/sirupsen/logrus"
)

// CheckoutHandler runs cart checkouts for the signed-in user.
type CheckoutHandler struct {
	coordinator *checkout.Coordinator
}

// NewCheckoutHandler wires a checkout handler.
func NewCheckoutHandler(coordinator *checkout.Coordinator) *CheckoutHandler {
	return &CheckoutHandler{coordinator: coordinator}
}

// checkoutRequest is the cart submitted by the storefront.
type checkoutRequest struct {
	Lines         []checkout.Line `json:"lines"`          // Cart lines.
	PaymentMethod string          `json:"payment_method"` // wallet/card/hybrid.
	CheckoutID    string          `json:"checkout_id"`    // Optional client-generated attempt id.
	AffiliateCode string          `json:"affiliate_code"` // Optional affiliate tag.
}

// checkoutResponse adds display amounts to the checkout result.
type checkoutResponse struct {
	*checkout.Result
	TotalDisplay string `json:"total_display"`
}

// Checkout submits the cart. The Idempotency-Key header is used as checkout id when
// the body does not carry one.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var body checkoutRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	checkoutID := strings.TrimSpace(body.CheckoutID)
	if checkoutID == "" {
		checkoutID = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	if len(checkoutID) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "checkout_id is too long"})
		return
	}

	res, errCheckout := h.coordinator.Checkout(c.Request.Context(), checkout.Request{
		UserID:        getUserID(c),
		Lines:         body.Lines,
		PaymentMethod: strings.ToLower(strings.TrimSpace(body.PaymentMethod)),
		CheckoutID:    checkoutID,
		AffiliateCode: body.AffiliateCode,
	})
	if errCheckout != nil {
		apihttp.AbortWithError(c, errCheckout)
		return
	}

	logging.WithRequest(c).WithFields(log.Fields{
		"checkout_id": res.CheckoutID,
		"order_id":    res.OrderID,
		"success":     res.Success,
	}).Info("checkout handled")

	c.JSON(checkoutStatus(res), checkoutResponse{Result: res, TotalDisplay: money.FormatPounds(res.TotalAmount)})
}

// checkoutStatus is 200 when at least one line completed, otherwise the status of the
// failure that stopped the order.
func checkoutStatus(res *checkout.Result) int {
	if res.Status == models.OrderStatusCompleted {
		return http.StatusOK
	}
	if res.ErrorKind != "" {
		return apihttp.StatusForKind(res.ErrorKind)
	}
	for _, line := range res.Results {
		if !line.Success && line.ErrorKind != "" {
			return apihttp.StatusForKind(line.ErrorKind)
		}
	}
	return http.StatusUnprocessableEntity
}
