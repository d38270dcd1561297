package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wellnesscms/api/internal/audit"
	"wellnesscms/api/internal/config"
	"wellnesscms/api/internal/middleware"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/service"
)

type HandlerSet struct {
	log         zerolog.Logger
	cfg         *config.AppConfig
	authService *service.AuthService
	audit       audit.Recorder
	db          *pgxpool.Pool
	cache       *redis.Client
}

// NewHandlerSet wires the admin auth routes. db and cache may be nil when
// the process runs without them; health reports them as disabled.
func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, auth *service.AuthService, recorder audit.Recorder, db *pgxpool.Pool, cache *redis.Client) HandlerSet {
	if recorder == nil {
		recorder = audit.RecorderFunc(func(audit.Event) {})
	}
	return HandlerSet{
		log:         log,
		cfg:         cfg,
		authService: auth,
		audit:       recorder,
		db:          db,
		cache:       cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	auth := router.Group("/admin/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/request-reset", h.RequestReset)
		auth.POST("/reset-password", h.ResetPassword)
		auth.GET("/session-status", middleware.OptionalGuard(h.authService), h.SessionStatus)

		protected := auth.Group("")
		protected.Use(middleware.Guard(h.authService, h.audit))
		protected.GET("/me", h.Me)
		protected.POST("/change-password", h.ChangePassword)

		sessions := protected.Group("/sessions")
		sessions.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
		sessions.GET("", h.ListSessions)
		sessions.DELETE("/:sessionId", h.RevokeSession)
	}
}
