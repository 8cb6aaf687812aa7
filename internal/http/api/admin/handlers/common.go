package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// readAdminIDFromContext extracts the authenticated admin ID from context.
func readAdminIDFromContext(c *gin.Context) (uint64, bool) {
	value, ok := c.Get("adminID")
	if !ok {
		return 0, false
	}
	adminID, okCast := value.(uint64)
	if !okCast || adminID == 0 {
		return 0, false
	}
	return adminID, true
}

// parseUintParam parses a positive numeric path parameter.
func parseUintParam(value string) (uint64, error) {
	parsed, errParse := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if errParse != nil {
		return 0, errParse
	}
	if parsed == 0 {
		return 0, strconv.ErrRange
	}
	return parsed, nil
}
