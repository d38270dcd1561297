package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/middleware"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/service"
)

const resetRequestedMessage = "If an account with that email exists, a password reset link has been sent"

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Success       bool            `json:"success"`
	Admin         models.Identity `json:"admin"`
	Token         string          `json:"token"`
	SessionExpiry time.Time       `json:"sessionExpiry"`
}

func (h HandlerSet) setTokenCookie(c *gin.Context, token string) {
	maxAge := int(h.authService.SessionTTL().Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookie, token, maxAge, "/", "", h.cfg.IsProduction(), true)
}

func (h HandlerSet) clearTokenCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", h.cfg.IsProduction(), true)
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email and password are required")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Origin:   middleware.OriginFrom(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTokenCookie(c, result.Token)
	c.JSON(http.StatusOK, authResponse{
		Success:       true,
		Admin:         result.Account.Identity(),
		Token:         result.Token,
		SessionExpiry: result.ExpiresAt,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	h.authService.Logout(c.Request.Context(), middleware.ExtractToken(c), middleware.OriginFrom(c))
	h.clearTokenCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out"})
}

func (h HandlerSet) Refresh(c *gin.Context) {
	result, err := h.authService.Refresh(c.Request.Context(), middleware.ExtractToken(c), middleware.OriginFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setTokenCookie(c, result.Token)
	c.JSON(http.StatusOK, authResponse{
		Success:       true,
		Admin:         result.Account.Identity(),
		Token:         result.Token,
		SessionExpiry: result.ExpiresAt,
	})
}

func (h HandlerSet) Me(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, middleware.ErrorBody("Authentication required", string(service.CodeNoToken)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"admin":     p.Account.Identity(),
		"sessionId": p.Session.ID,
	})
}

func (h HandlerSet) SessionStatus(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"authenticated": true,
		"admin":         p.Account.Identity(),
	})
}
