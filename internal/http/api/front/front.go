package front

import (
	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/checkout"
	"github.com/rafflehq/ticket-engine/internal/content"
	"github.com/rafflehq/ticket-engine/internal/entries"
	"github.com/rafflehq/ticket-engine/internal/http/api/front/handlers"
	"github.com/rafflehq/ticket-engine/internal/identity"
	"github.com/rafflehq/ticket-engine/internal/wallet"
	"github.com/rafflehq/ticket-engine/internal/winning"
	"gorm.io/gorm"
)

// Deps are the services behind the storefront API.
type Deps struct {
	DB          *gorm.DB
	JWTSecret   string
	Resolver    *identity.Resolver
	Coordinator *checkout.Coordinator
	Entries     *entries.Store
	Wallet      *wallet.Ledger
	Registry    *winning.Registry
	Content     *content.Client
}

// RegisterFrontRoutes registers the storefront routes under /v1.
func RegisterFrontRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	front := r.Group("/v1")

	competitionHandler := handlers.NewCompetitionHandler(deps.DB, deps.Registry, deps.Content)
	front.GET("/competitions/:id", competitionHandler.Get)
	front.GET("/competitions/:id/prizes", competitionHandler.Prizes)

	authed := front.Group("")
	authed.Use(identity.Middleware(deps.Resolver, deps.JWTSecret))

	checkoutHandler := handlers.NewCheckoutHandler(deps.Coordinator)
	authed.POST("/checkout", checkoutHandler.Checkout)

	accountHandler := handlers.NewAccountHandler(deps.DB, deps.Entries, deps.Wallet)
	authed.GET("/entries", accountHandler.Entries)
	authed.GET("/orders/:id", accountHandler.Order)
	authed.GET("/wallet", accountHandler.Wallet)
}
