package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/logging"
)

// StatusForKind maps an engine error kind onto an HTTP status.
func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindCapacityExceeded, apperrors.KindCompetitionClosed, apperrors.KindPrizeConfigLocked:
		return http.StatusConflict
	case apperrors.KindInsufficientFunds, apperrors.KindGatewayDeclined:
		return http.StatusPaymentRequired
	case apperrors.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindContentionRetry:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AbortWithError writes a JSON error for err. Unclassified errors are logged and hidden
// behind a generic message.
func AbortWithError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := StatusForKind(kind)
	if status >= http.StatusInternalServerError {
		logging.WithRequest(c).WithField("error_class", kind).WithError(err).Error("request failed")
	}
	message := apperrors.Message(err)
	if kind == apperrors.KindInternal {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message, "error_kind": kind})
}
