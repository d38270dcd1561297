package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wellnesscms/api/internal/middleware"
	"wellnesscms/api/internal/service"
)

type sessionResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent"`
	Active       bool      `json:"active"`
	Current      bool      `json:"current"`
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, middleware.ErrorBody("Authentication required", string(service.CodeNoToken)))
		return
	}

	sessions, err := h.authService.ListSessions(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}

	ttl := h.authService.SessionTTL()
	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, sessionResponse{
			ID:           s.ID,
			UserID:       s.AccountID,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
			ExpiresAt:    s.LastActivity.Add(ttl),
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			Active:       s.Active,
			Current:      s.ID == p.Session.ID,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"sessions": resp,
		"total":    len(resp),
	})
}

func (h HandlerSet) RevokeSession(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, middleware.ErrorBody("Authentication required", string(service.CodeNoToken)))
		return
	}

	sessionID := c.Param("sessionId")
	if sessionID == "" {
		badRequest(c, "sessionId required")
		return
	}

	if err := h.authService.RevokeSession(c.Request.Context(), p, sessionID, middleware.OriginFrom(c)); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session revoked"})
}
