package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/winning"
)

// maxSeedNumbers caps a single winning-ticket seeding request.
const maxSeedNumbers = 10000

// PrizeHandler manages prizes and their winning tickets.
type PrizeHandler struct {
	registry *winning.Registry
}

// NewPrizeHandler constructs a PrizeHandler.
func NewPrizeHandler(registry *winning.Registry) *PrizeHandler {
	return &PrizeHandler{registry: registry}
}

// prizeRequest is the create and update payload for a prize.
type prizeRequest struct {
	ProductRef    string `json:"product_ref"`    // Content service product reference.
	Title         string `json:"title"`          // Display title.
	TotalQuantity int64  `json:"total_quantity"` // Number of winning tickets this prize may hold.
	Phase         int    `json:"phase"`          // 0 for the whole range, 1..3 for a third of it.
	IsInstantWin  bool   `json:"is_instant_win"` // Whether a match is reported at checkout.
	PrizeGroup    string `json:"prize_group"`    // Optional grouping label.
}

func (p prizeRequest) input() winning.PrizeInput {
	return winning.PrizeInput{
		ProductRef:    strings.TrimSpace(p.ProductRef),
		Title:         strings.TrimSpace(p.Title),
		TotalQuantity: p.TotalQuantity,
		Phase:         p.Phase,
		IsInstantWin:  p.IsInstantWin,
		PrizeGroup:    strings.TrimSpace(p.PrizeGroup),
	}
}

// List returns the prizes of a competition.
func (h *PrizeHandler) List(c *gin.Context) {
	competitionID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return
	}
	prizes, errList := h.registry.ListPrizes(c.Request.Context(), competitionID)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"prizes": prizes})
}

// Create adds a prize to a competition.
func (h *PrizeHandler) Create(c *gin.Context) {
	competitionID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return
	}
	var body prizeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	prize, errCreate := h.registry.CreatePrize(c.Request.Context(), competitionID, body.input())
	if errCreate != nil {
		apihttp.AbortWithError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, prize)
}

// Update replaces a prize's configuration.
func (h *PrizeHandler) Update(c *gin.Context) {
	prizeID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prize id"})
		return
	}
	var body prizeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	prize, errUpdate := h.registry.UpdatePrize(c.Request.Context(), prizeID, body.input())
	if errUpdate != nil {
		apihttp.AbortWithError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, prize)
}

// ListWinningTickets returns the winning tickets seeded for a prize.
func (h *PrizeHandler) ListWinningTickets(c *gin.Context) {
	prizeID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prize id"})
		return
	}
	tickets, errList := h.registry.ListWinningTickets(c.Request.Context(), prizeID)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winning_tickets": tickets})
}

// seedRequest lists ticket numbers to mark as winners.
type seedRequest struct {
	TicketNumbers []int64 `json:"ticket_numbers"`
}

// Seed marks ticket numbers as winning tickets of a prize.
func (h *PrizeHandler) Seed(c *gin.Context) {
	prizeID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid prize id"})
		return
	}
	var body seedRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.TicketNumbers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ticket_numbers is required"})
		return
	}
	if len(body.TicketNumbers) > maxSeedNumbers {
		c.JSON(http.StatusBadRequest, gin.H{"error": "too many ticket_numbers"})
		return
	}
	seeded, errSeed := h.registry.Seed(c.Request.Context(), prizeID, body.TicketNumbers)
	if errSeed != nil {
		apihttp.AbortWithError(c, errSeed)
		return
	}
	adminID, _ := readAdminIDFromContext(c)
	logging.WithRequest(c).WithField("prize_id", prizeID).WithField("admin_id", adminID).
		WithField("count", len(seeded)).Info("winning tickets seeded")
	c.JSON(http.StatusCreated, gin.H{"winning_tickets": seeded})
}
