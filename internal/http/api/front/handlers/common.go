package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/identity"
)

// getUserID extracts the resolved user id from the gin context.
func getUserID(c *gin.Context) uint64 {
	id, _ := identity.UserID(c)
	return id
}

// parseIDParam parses a positive numeric path parameter.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if errParse != nil || id == 0 {
		return 0, false
	}
	return id, true
}
