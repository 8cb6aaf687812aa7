package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	apihttp "github.com/rafflehq/ticket-engine/internal/http"
	"github.com/rafflehq/ticket-engine/internal/logging"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/security"
	"gorm.io/gorm"
)

// pendingSecretTTL bounds how long an unconfirmed TOTP secret is kept.
const pendingSecretTTL = 10 * time.Minute

// MFAHandler manages TOTP enrollment for admins. An enrolled admin needs a code to sign
// in and to unlock prize configuration.
type MFAHandler struct {
	db      *gorm.DB
	pending *secretStore
}

// NewMFAHandler constructs an MFAHandler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db, pending: newSecretStore()}
}

// secretEntry stores a TOTP secret with expiry.
type secretEntry struct {
	secret  string
	expires time.Time
}

// secretStore keeps unconfirmed TOTP secrets in memory.
type secretStore struct {
	mu    sync.Mutex
	items map[uint64]secretEntry
}

func newSecretStore() *secretStore {
	return &secretStore{items: make(map[uint64]secretEntry)}
}

// Set stores a secret with expiry.
func (s *secretStore) Set(adminID uint64, secret string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[adminID] = secretEntry{secret: secret, expires: time.Now().Add(pendingSecretTTL)}
}

// Get returns a secret if present and not expired.
func (s *secretStore) Get(adminID uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[adminID]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.items, adminID)
		return "", false
	}
	return entry.secret, true
}

// Delete removes a secret entry.
func (s *secretStore) Delete(adminID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, adminID)
}

// loadAdmin reads the signed-in admin, answering the request itself on failure.
func (h *MFAHandler) loadAdmin(c *gin.Context) (*models.Admin, bool) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return nil, false
	}
	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", adminID).Take(&admin).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, false
	}
	if errFind != nil {
		apihttp.AbortWithError(c, errFind)
		return nil, false
	}
	return &admin, true
}

// Status reports whether the admin has TOTP enabled.
func (h *MFAHandler) Status(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": strings.TrimSpace(admin.TOTPSecret) != ""})
}

// PrepareTOTP generates a new TOTP secret and QR code pending confirmation.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	secret, url, errGenerate := security.GenerateTOTPSecret(admin.Username)
	if errGenerate != nil {
		logging.WithRequest(c).WithError(errGenerate).Error("mfa: generate totp secret")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	h.pending.Set(admin.ID, secret)

	qrImage := ""
	if key, errKey := otp.NewKeyFromURL(url); errKey == nil {
		if img, errImage := key.Image(220, 220); errImage == nil {
			var buf bytes.Buffer
			if errEncode := png.Encode(&buf, img); errEncode == nil {
				qrImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
			}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      secret,
		"otpauth_url": url,
		"qr_image":    qrImage,
	})
}

// totpCodeRequest carries a six digit TOTP code.
type totpCodeRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP validates a code against the pending secret and enables TOTP.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	adminID, ok := readAdminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	code := strings.TrimSpace(body.Code)
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	secret, found := h.pending.Get(adminID)
	if !found {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		return
	}
	if !security.ValidateTOTP(secret, code) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", adminID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		apihttp.AbortWithError(c, errUpdate)
		return
	}
	h.pending.Delete(adminID)
	logging.WithRequest(c).WithField("admin_id", adminID).Info("admin enabled totp")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP removes the admin's TOTP secret. The current code is required.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if admin.TOTPSecret == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	if !security.ValidateTOTP(admin.TOTPSecret, strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		apihttp.AbortWithError(c, errUpdate)
		return
	}
	h.pending.Delete(admin.ID)
	logging.WithRequest(c).WithField("admin_id", admin.ID).Warn("admin disabled totp")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
