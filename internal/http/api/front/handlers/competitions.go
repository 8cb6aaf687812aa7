package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/content"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/money"
	"github.com/rafflehq/ticket-engine/internal/winning"
	"gorm.io/gorm"
)

// CompetitionHandler serves public competition data.
type CompetitionHandler struct {
	db       *gorm.DB
	registry *winning.Registry
	content  *content.Client
}

// NewCompetitionHandler wires a competition handler. contentClient may be nil.
func NewCompetitionHandler(db *gorm.DB, registry *winning.Registry, contentClient *content.Client) *CompetitionHandler {
	return &CompetitionHandler{db: db, registry: registry, content: contentClient}
}

// Get returns a competition with its sale progress.
func (h *CompetitionHandler) Get(c *gin.Context) {
	competition, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":                competition.ID,
		"title":             competition.Title,
		"currency":          competition.Currency,
		"ticket_price":      competition.TicketPrice,
		"price_display":     money.FormatPounds(competition.TicketPrice),
		"total_tickets":     competition.TotalTickets,
		"tickets_sold":      competition.TicketsSold,
		"remaining":         competition.Remaining(),
		"is_raffle":         competition.IsRaffle,
		"status":            competition.Status,
		"accepting_entries": competition.AcceptsEntries(time.Now()),
		"start_at":          competition.StartAt,
		"end_at":            competition.EndAt,
	})
}

// prizeView is a prize plus optional CMS metadata.
type prizeView struct {
	ID            uint64                 `json:"id"`
	Title         string                 `json:"title"`
	TotalQuantity int64                  `json:"total_quantity"`
	WonQuantity   int64                  `json:"won_quantity"`
	Phase         int                    `json:"phase"`
	IsInstantWin  bool                   `json:"is_instant_win"`
	PrizeGroup    string                 `json:"prize_group,omitempty"`
	Metadata      *content.PrizeMetadata `json:"metadata,omitempty"`
}

// Prizes lists the prizes of a competition. Winning ticket numbers are never exposed.
func (h *CompetitionHandler) Prizes(c *gin.Context) {
	competition, ok := h.load(c)
	if !ok {
		return
	}
	prizes, errList := h.registry.ListPrizes(c.Request.Context(), competition.ID)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	out := make([]prizeView, 0, len(prizes))
	for _, prize := range prizes {
		view := prizeView{
			ID:            prize.ID,
			Title:         prize.Title,
			TotalQuantity: prize.TotalQuantity,
			WonQuantity:   prize.WonQuantity,
			Phase:         prize.Phase,
			IsInstantWin:  prize.IsInstantWin,
			PrizeGroup:    prize.PrizeGroup,
		}
		if meta, found := h.content.PrizeMetadata(c.Request.Context(), prize.ProductRef); found {
			view.Metadata = meta
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": competition.ID, "prizes": out})
}

func (h *CompetitionHandler) load(c *gin.Context) (*models.Competition, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return nil, false
	}
	var competition models.Competition
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ? AND status <> ?", id, models.CompetitionStatusDraft).Take(&competition).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "competition not found"})
		return nil, false
	}
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return nil, false
	}
	return &competition, true
}
