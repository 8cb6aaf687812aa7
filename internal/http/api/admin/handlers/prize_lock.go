package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/winning"
)

// PrizeLockHandler exposes the prize configuration lock of a competition.
type PrizeLockHandler struct {
	registry *winning.Registry
}

// NewPrizeLockHandler constructs a PrizeLockHandler.
func NewPrizeLockHandler(registry *winning.Registry) *PrizeLockHandler {
	return &PrizeLockHandler{registry: registry}
}

// lockRequest is the body for lock transitions.
type lockRequest struct {
	Reason   string `json:"reason"`    // Mandatory for unlock.
	TOTPCode string `json:"totp_code"` // Required for unlock when the admin has TOTP enabled.
}

// Get returns the current lock state and its audit trail.
func (h *PrizeLockHandler) Get(c *gin.Context) {
	competitionID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return
	}
	ctx := c.Request.Context()
	state, errState := h.registry.LockState(ctx, competitionID)
	if errState != nil {
		apihttp.AbortWithError(c, errState)
		return
	}
	events, errEvents := h.registry.LockEvents(ctx, competitionID)
	if errEvents != nil {
		apihttp.AbortWithError(c, errEvents)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competition_id": competitionID, "state": state, "events": events})
}

// Unlock reopens prize configuration for editing.
func (h *PrizeLockHandler) Unlock(c *gin.Context) {
	competitionID, adminID, body, ok := h.readTransition(c)
	if !ok {
		return
	}
	lock, errUnlock := h.registry.Unlock(c.Request.Context(), winning.UnlockInput{
		CompetitionID: competitionID,
		AdminID:       adminID,
		Reason:        body.Reason,
		TOTPCode:      body.TOTPCode,
	})
	if errUnlock != nil {
		apihttp.AbortWithError(c, errUnlock)
		return
	}
	c.JSON(http.StatusOK, lock)
}

// Lock closes prize configuration again.
func (h *PrizeLockHandler) Lock(c *gin.Context) {
	competitionID, adminID, body, ok := h.readTransition(c)
	if !ok {
		return
	}
	lock, errLock := h.registry.Lock(c.Request.Context(), competitionID, adminID, body.Reason)
	if errLock != nil {
		apihttp.AbortWithError(c, errLock)
		return
	}
	c.JSON(http.StatusOK, lock)
}

func (h *PrizeLockHandler) readTransition(c *gin.Context) (uint64, uint64, lockRequest, bool) {
	var body lockRequest
	competitionID, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid competition id"})
		return 0, 0, body, false
	}
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return 0, 0, body, false
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return 0, 0, body, false
	}
	return competitionID, adminID, body, true
}
