package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/config"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/http/api/admin/handlers"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/payments"
	"github.com/rafflehq/ticket-engine/internal/security"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"github.com/rafflehq/ticket-engine/internal/winning"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the services behind the admin API.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Registry *winning.Registry
	Entries  *entries.Store
	Wallet   *wallet.Ledger
	Payments *payments.Tracker
	Redis    *redis.Client
}

// RegisterAdminRoutes registers /healthz and the admin routes under /v0/admin.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis)
	r.GET("/healthz", healthHandler.Healthz)

	admin := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	admin.POST("/login", authHandler.Login)

	authed := admin.Group("")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))

	adminHandler := handlers.NewAdminHandler(deps.DB)
	authed.GET("/admins", adminHandler.List)
	authed.POST("/admins", adminHandler.Create)
	authed.POST("/admins/:id/disable", adminHandler.Disable)
	authed.POST("/admins/:id/enable", adminHandler.Enable)
	authed.POST("/me/password", adminHandler.ChangePassword)

	mfaHandler := handlers.NewMFAHandler(deps.DB)
	authed.GET("/me/mfa", mfaHandler.Status)
	authed.POST("/me/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/me/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/me/mfa/totp/disable", mfaHandler.DisableTOTP)

	competitionHandler := handlers.NewCompetitionHandler(deps.DB, deps.Entries)
	authed.POST("/competitions", competitionHandler.Create)
	authed.POST("/competitions/:id/end", competitionHandler.End)
	authed.GET("/competitions/:id/entries", competitionHandler.Entries)
	authed.POST("/entries/:id/status", competitionHandler.MarkEntry)

	prizeHandler := handlers.NewPrizeHandler(deps.Registry)
	authed.GET("/competitions/:id/prizes", prizeHandler.List)
	authed.POST("/competitions/:id/prizes", prizeHandler.Create)
	authed.PUT("/prizes/:id", prizeHandler.Update)
	authed.GET("/prizes/:id/winning-tickets", prizeHandler.ListWinningTickets)
	authed.POST("/prizes/:id/winning-tickets", prizeHandler.Seed)

	lockHandler := handlers.NewPrizeLockHandler(deps.Registry)
	authed.GET("/competitions/:id/prize-lock", lockHandler.Get)
	authed.POST("/competitions/:id/prize-lock/unlock", lockHandler.Unlock)
	authed.POST("/competitions/:id/prize-lock/lock", lockHandler.Lock)

	walletHandler := handlers.NewWalletHandler(deps.Wallet)
	authed.GET("/wallets/:user_id", walletHandler.Get)
	authed.POST("/wallets/:user_id/credit", walletHandler.Credit)

	orderHandler := handlers.NewOrderHandler(deps.DB, deps.Payments)
	authed.GET("/orders/:id", orderHandler.Get)
	authed.GET("/payments/:checkout_id", orderHandler.PaymentByCheckout)

	settingsHandler := handlers.NewSettingsHandler(deps.DB)
	authed.GET("/settings", settingsHandler.List)
	authed.PUT("/settings/:key", settingsHandler.Put)
}

// adminAuthMiddleware validates admin JWTs and stores the admin id in context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.AdminSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).Select("id", "active").Where("id = ?", claims.AdminID).Take(&admin).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin account is disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Next()
	}
}
