package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/middleware"
	"wellnesscms/api/internal/service"
)

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, middleware.ErrorBody(message, "VALIDATION_ERROR"))
}

// fail maps a service error onto the response envelope.
func (h HandlerSet) fail(c *gin.Context, err error) {
	var (
		throttled *service.ThrottledError
		invalid   *service.ValidationError
		denied    *service.AccessError
	)

	switch {
	case errors.As(err, &throttled):
		throttled.Decision.SetHeaders(c.Writer.Header())
		c.JSON(http.StatusTooManyRequests, middleware.ErrorBody("Too many attempts, please try again later", "RATE_LIMITED"))
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, middleware.ErrorBody("Invalid credentials", "INVALID_CREDENTIALS"))
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, middleware.ErrorBody(invalid.Error(), invalid.Code))
	case errors.As(err, &denied):
		if denied.Internal() {
			h.log.Error().Err(err).
				Str("path", c.Request.URL.Path).
				Str("request_id", middleware.RequestIDFrom(c)).
				Msg("credential check failed")
		}
		c.JSON(denied.Status(), middleware.ErrorBody(denied.Message, string(denied.Code)))
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, middleware.ErrorBody("Session not found", "SESSION_NOT_FOUND"))
	default:
		h.log.Error().Err(err).
			Str("path", c.Request.URL.Path).
			Str("request_id", middleware.RequestIDFrom(c)).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("Internal server error", "INTERNAL_ERROR"))
	}
}
