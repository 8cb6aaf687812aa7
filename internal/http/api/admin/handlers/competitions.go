package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/entries"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/money"
	"gorm.io/gorm"
)

// CompetitionHandler handles admin competition operations.
type CompetitionHandler struct {
	db      *gorm.DB       // Database handle for competition rows.
	entries *entries.Store // Entry store for listings and status changes.
}

// NewCompetitionHandler wires a competition handler.
func NewCompetitionHandler(db *gorm.DB, store *entries.Store) *CompetitionHandler {
	return &CompetitionHandler{db: db, entries: store}
}

// createCompetitionRequest captures the payload for creating a competition.
type createCompetitionRequest struct {
	Title        string    `json:"title"`         // Display title.
	CMSRef       string    `json:"cms_ref"`       // Optional content reference.
	Currency     string    `json:"currency"`      // ISO currency; defaults to GBP.
	TicketPrice  string    `json:"ticket_price"`  // Price per ticket in pounds, e.g. "0.99".
	TotalTickets int64     `json:"total_tickets"` // Ticket capacity.
	IsRaffle     bool      `json:"is_raffle"`     // Whether every prize draws from the whole range.
	Status       string    `json:"status"`        // draft or active; defaults to draft.
	StartAt      time.Time `json:"start_at"`      // Entry window start.
	EndAt        time.Time `json:"end_at"`        // Entry window end.
}

// Create validates input and persists a new competition.
func (h *CompetitionHandler) Create(c *gin.Context) {
	var body createCompetitionRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
		return
	}
	price, errPrice := money.ParsePounds(body.TicketPrice)
	if errPrice != nil || price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket_price"})
		return
	}
	if body.TotalTickets <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "total_tickets must be positive"})
		return
	}
	if body.StartAt.IsZero() || body.EndAt.IsZero() || !body.EndAt.After(body.StartAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_at must be after start_at"})
		return
	}
	status := strings.TrimSpace(body.Status)
	if status == "" {
		status = models.CompetitionStatusDraft
	}
	if status != models.CompetitionStatusDraft && status != models.CompetitionStatusActive {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be draft or active"})
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(body.Currency))
	if currency == "" {
		currency = "GBP"
	}

	competition := models.Competition{
		Title:        title,
		CMSRef:       strings.TrimSpace(body.CMSRef),
		Currency:     currency,
		TicketPrice:  price,
		TotalTickets: body.TotalTickets,
		IsRaffle:     body.IsRaffle,
		Status:       status,
		StartAt:      body.StartAt.UTC(),
		EndAt:        body.EndAt.UTC(),
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&competition).Error; errCreate != nil {
		apihttp.AbortWithError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, competition)
}

// End closes a competition to new entries and expires its active entries.
func (h *CompetitionHandler) End(c *gin.Context) {
	id, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Competition{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.CompetitionStatusEnded, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apihttp.AbortWithError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "competition not found"})
		return
	}
	expired, errExpire := h.entries.ExpireCompetition(c.Request.Context(), id)
	if errExpire != nil {
		apihttp.AbortWithError(c, errExpire)
		return
	}
	adminID, _ := readAdminIDFromContext(c)
	logging.WithRequest(c).WithField("competition_id", id).WithField("admin_id", adminID).Info("competition ended")
	c.JSON(http.StatusOK, gin.H{"ok": true, "expired_entries": expired})
}

// Entries lists every committed entry of a competition in ticket order.
func (h *CompetitionHandler) Entries(c *gin.Context) {
	id, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return
	}
	var competition models.Competition
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&competition).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "competition not found"})
		return
	}
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	rows, errList := h.entries.ListForCompetition(c.Request.Context(), id)
	if errList != nil {
		apihttp.AbortWithError(c, errList)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"competition_id": id,
		"tickets_sold":   competition.TicketsSold,
		"entries":        rows,
	})
}

// markEntryRequest moves an entry to used or expired.
type markEntryRequest struct {
	Status string `json:"status"`
}

// MarkEntry changes the status of an active entry.
func (h *CompetitionHandler) MarkEntry(c *gin.Context) {
	id, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}
	var body markEntryRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if _, errGet := h.entries.Get(c.Request.Context(), id); errGet != nil {
		apihttp.AbortWithError(c, errGet)
		return
	}
	if errMark := h.entries.MarkStatus(c.Request.Context(), id, strings.TrimSpace(body.Status)); errMark != nil {
		apihttp.AbortWithError(c, errMark)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
