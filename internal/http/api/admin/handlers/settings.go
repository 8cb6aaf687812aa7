package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/settings"
	"gorm.io/gorm"
)

// SettingsHandler reads and writes runtime settings.
type SettingsHandler struct {
	db *gorm.DB
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(db *gorm.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

// List returns the stored settings and the time the in-memory snapshot was last changed.
func (h *SettingsHandler) List(c *gin.Context) {
	var rows []models.Setting
	if errFind := h.db.WithContext(c.Request.Context()).Order("key ASC").Find(&rows).Error; errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"key":        row.Key,
			"value":      json.RawMessage(row.Value),
			"updated_at": row.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"settings":            out,
		"snapshot_updated_at": settings.DBConfigUpdatedAt(),
	})
}

// putSettingRequest wraps the new JSON value.
type putSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// Put stores a setting and refreshes the snapshot.
func (h *SettingsHandler) Put(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	var body putSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil || len(body.Value) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errValidate := settings.ValidateIntValue(key, body.Value); errValidate != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
		return
	}
	if errPut := settings.Put(c.Request.Context(), h.db, key, body.Value); errPut != nil {
		apihttp.AbortWithError(c, errPut)
		return
	}
	adminID, _ := readAdminIDFromContext(c)
	logging.WithRequest(c).WithField("key", key).WithField("admin_id", adminID).Info("setting updated")
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
