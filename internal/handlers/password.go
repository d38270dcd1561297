package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/middleware"
	"wellnesscms/api/internal/service"
)

type requestResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// RequestReset answers the same way whether or not the account exists.
// The token itself is echoed only outside production, for test harnesses.
func (h HandlerSet) RequestReset(c *gin.Context) {
	var req requestResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required")
		return
	}

	result, err := h.authService.RequestReset(c.Request.Context(), req.Email, middleware.OriginFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	body := gin.H{"success": true, "message": resetRequestedMessage}
	if h.cfg.ExposeResetTokens() && result.Token != "" {
		body["resetToken"] = result.Token
		body["expiresAt"] = result.ExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Token and new password are required")
		return
	}

	err := h.authService.ResetPassword(c.Request.Context(), service.ResetPasswordInput{
		Token:       req.Token,
		NewPassword: req.NewPassword,
		Origin:      middleware.OriginFrom(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password has been reset"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, middleware.ErrorBody("Authentication required", string(service.CodeNoToken)))
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Current and new password are required")
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), p, service.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Origin:          middleware.OriginFrom(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed"})
}
