package ginserver

import (
	"errors"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentsync/internal/app/commands"
	"rentsync/internal/app/handlers/actions"
	"rentsync/internal/app/handlers/views"
	"rentsync/internal/app/listingsync"
	"rentsync/internal/app/middleware"
	"rentsync/internal/app/policies"
)

// respondError writes err as {"error": message}. Backend refusals keep the
// backend's message and, for 4xx, its status.
func respondError(c *gin.Context, err error) {
	var remote *policies.RemoteError
	switch {
	case errors.As(err, &remote):
		code := remote.StatusCode
		if code < http.StatusBadRequest || code >= http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		c.JSON(code, gin.H{"error": remote.Error()})
	case errors.Is(err, policies.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "backend rate limited"})
	case errors.Is(err, listingsync.ErrListingRequired),
		errors.Is(err, actions.ErrRequestIDRequired),
		errors.Is(err, views.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, views.ErrSessionMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, listingsync.ErrSessionClosed),
		errors.Is(err, middleware.ErrMutationInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrHandlerNotFound):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "commands unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
