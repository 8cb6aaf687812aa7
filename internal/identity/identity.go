// Package identity maps identity-provider subjects onto internal user ids.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ginUserIDKey = "userID"

// Resolver finds or creates the user row for an external subject.
type Resolver struct {
	db *gorm.DB
}

// NewResolver returns a Resolver.
func NewResolver(conn *gorm.DB) *Resolver {
	return &Resolver{db: conn}
}

// Resolve returns the internal user id for externalID, creating the user on first sight.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (uint64, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return 0, apperrors.New(apperrors.KindUnauthorized, "missing subject")
	}
	conn := r.db.WithContext(ctx)
	if errCreate := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(&models.User{ExternalID: externalID}).Error; errCreate != nil {
		return 0, fmt.Errorf("identity: ensure user: %w", errCreate)
	}
	var user models.User
	if errFind := conn.Where("external_id = ?", externalID).Take(&user).Error; errFind != nil {
		return 0, fmt.Errorf("identity: load user: %w", errFind)
	}
	return user.ID, nil
}

// Middleware validates the identity token and stores the internal user id on the context.
func Middleware(resolver *Resolver, secret string) gin.HandlerFunc {
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

		claims, errJWT := security.ParseIdentityToken(secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, errResolve := resolver.Resolve(c.Request.Context(), claims.Subject)
		if errResolve != nil {
			log.WithError(errResolve).Error("identity: resolve user failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "resolve user failed"})
			return
		}
		c.Set(ginUserIDKey, userID)
		c.Next()
	}
}

// UserID returns the user id stored by Middleware.
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(ginUserIDKey)
	if !ok {
		return 0, false
	}
	id, okID := v.(uint64)
	return id, okID && id != 0
}
