package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/db"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/security"
	"gorm.io/gorm"
)

// minPasswordLength is the shortest accepted admin password.
const minPasswordLength = 8

// AdminHandler manages operator accounts.
type AdminHandler struct {
	db *gorm.DB
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// adminView is the API shape of an admin; the password hash and TOTP secret never leave the server.
func adminView(admin models.Admin) gin.H {
	return gin.H{
		"id":           admin.ID,
		"username":     admin.Username,
		"active":       admin.Active,
		"totp_enabled": admin.TOTPSecret != "",
		"created_at":   admin.CreatedAt,
	}
}

// createAdminRequest defines the request body for admin creation.
type createAdminRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Create creates a new admin account.
func (h *AdminHandler) Create(c *gin.Context) {
	var body createAdminRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	password := strings.TrimSpace(body.Password)
	if len(password) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is too short"})
		return
	}
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	admin := models.Admin{Username: username, Password: hash, Active: true}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&admin).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		apihttp.AbortWithError(c, errCreate)
		return
	}
	actorID, _ := readAdminIDFromContext(c)
	logging.WithRequest(c).WithField("admin_id", admin.ID).WithField("actor_id", actorID).Info("admin created")
	c.JSON(http.StatusCreated, adminView(admin))
}

// List returns admin accounts, optionally filtered by username substring.
func (h *AdminHandler) List(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.Admin{})
	if usernameQ := strings.TrimSpace(c.Query("username")); usernameQ != "" {
		q = q.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(usernameQ)+"%")
	}
	var rows []models.Admin
	if errFind := q.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, adminView(row))
	}
	c.JSON(http.StatusOK, gin.H{"admins": out})
}

// Disable deactivates an admin account. Admins cannot disable themselves.
func (h *AdminHandler) Disable(c *gin.Context) {
	h.setActive(c, false)
}

// Enable reactivates an admin account.
func (h *AdminHandler) Enable(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AdminHandler) setActive(c *gin.Context, active bool) {
	id, errParse := parseUintParam(c.Param("id"))
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if actorID, _ := readAdminIDFromContext(c); !active && actorID == id {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot disable yourself"})
		return
	}
	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", id).
		Updates(map[string]any{"active": active, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		apihttp.AbortWithError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword updates the signed-in admin's password after checking the old one.
func (h *AdminHandler) ChangePassword(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	newPassword := strings.TrimSpace(body.NewPassword)
	if len(newPassword) < minPasswordLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is too short"})
		return
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).Select("id", "password").Where("id = ?", adminID).Take(&admin).Error; errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return
	}
	if !security.CheckPassword(admin.Password, strings.TrimSpace(body.OldPassword)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	hash, errHash := security.HashPassword(newPassword)
	if errHash != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", adminID).
		Updates(map[string]any{"password": hash, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		apihttp.AbortWithError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
