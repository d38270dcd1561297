package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wellnesscms/api/internal/audit"
	"wellnesscms/api/internal/cache"
	"wellnesscms/api/internal/clock"
	"wellnesscms/api/internal/config"
	"wellnesscms/api/internal/database"
	"wellnesscms/api/internal/handlers"
	"wellnesscms/api/internal/jobs"
	"wellnesscms/api/internal/kv"
	"wellnesscms/api/internal/log"
	"wellnesscms/api/internal/mail"
	"wellnesscms/api/internal/models"
	"wellnesscms/api/internal/ratelimit"
	"wellnesscms/api/internal/repository"
	"wellnesscms/api/internal/reset"
	"wellnesscms/api/internal/security"
	"wellnesscms/api/internal/server"
	"wellnesscms/api/internal/service"
	"wellnesscms/api/internal/session"
)

const backendRedis = "redis"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if cfg.Postgres.AutoMigrate {
		if err := database.Migrate(ctx, dbPool); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}
	}

	redisClient := connectRedis(ctx, cfg, logger)

	clk := clock.Real()

	var sink audit.Sink = audit.NewLogSink(logger)
	if redisClient != nil {
		sink = audit.MultiSink{sink, audit.NewStreamSink(redisClient, cfg.Audit.Stream)}
	}
	auditLogger := audit.NewLogger(sink, cfg.Audit.QueueSize, logger)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	go auditLogger.Run(auditCtx)

	provider, err := mail.New(cfg.Mail, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("mail sender")
	}
	mailer := mail.NewDispatcher(provider, cfg.Mail.QueueSize, logger)
	go mailer.Run(auditCtx)

	sessionStore, resetStore := buildStores(cfg, redisClient)
	sessions := session.NewRegistry(sessionStore,
		session.WithClock(clk),
		session.WithTTL(cfg.Security.SessionTTL),
		session.WithLogger(logger),
	)
	resets := reset.NewRegistry(resetStore, clk, cfg.Security.ResetTokenTTL, logger)

	loginLimiter, resetLimiter := buildLimiters(cfg, redisClient, clk)

	authService := service.NewAuthService(service.Deps{
		Accounts:     repository.NewAccountRepository(dbPool),
		Codec:        security.NewTokenCodec(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.JWTAudience, cfg.Security.SessionTTL, clk),
		Sessions:     sessions,
		Resets:       resets,
		LoginLimiter: loginLimiter,
		ResetLimiter: resetLimiter,
		Mailer:       mailer,
		Audit:        auditLogger,
		Clock:        clk,
		Log:          logger,
	})

	handlerSet := handlers.NewHandlerSet(logger, cfg, authService, auditLogger, dbPool, redisClient)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(cfg.Security.SweepSchedule, logger)
	scheduler.Add("sessions", sessions)
	scheduler.Add("reset-tokens", resets)
	for name, limiter := range map[string]ratelimit.Limiter{"login-limiter": loginLimiter, "reset-limiter": resetLimiter} {
		if m, ok := limiter.(*ratelimit.Memory); ok {
			scheduler.Add(name, jobs.SweepFunc(func(context.Context) (int, error) { return m.Sweep(), nil }))
		}
	}
	scheduler.Add("audit-drops", jobs.SweepFunc(func(context.Context) (int, error) {
		if n := auditLogger.Dropped(); n > 0 {
			logger.Warn().Int64("dropped", n).Msg("audit events dropped since start")
		}
		if n := mailer.Dropped(); n > 0 {
			logger.Warn().Int64("dropped", n).Msg("reset emails dropped since start")
		}
		return 0, nil
	}))
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)

	stopAudit()
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	select {
	case <-auditLogger.Done():
	case <-drainCtx.Done():
		logger.Warn().Msg("audit queue not drained before exit")
	}
	select {
	case <-mailer.Done():
	case <-drainCtx.Done():
		logger.Warn().Msg("mail queue not drained before exit")
	}
	logger.Info().Msg("server exited cleanly")
}

// connectRedis returns nil when redis is optional and unreachable.
func connectRedis(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) *redis.Client {
	required := cfg.Security.StoreBackend == backendRedis || cfg.Security.LimiterBackend == backendRedis
	if cfg.Redis.Addr == "" && !required {
		return nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		if required {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		logger.Warn().Err(err).Msg("redis unavailable, audit stream disabled")
		return nil
	}
	return client
}

func buildStores(cfg *config.AppConfig, client *redis.Client) (kv.Store[models.Session], kv.Store[models.ResetToken]) {
	if cfg.Security.StoreBackend == backendRedis {
		return kv.NewRedis[models.Session](client, "auth:session", cfg.Security.SessionTTL),
			kv.NewRedis[models.ResetToken](client, "auth:reset", cfg.Security.ResetTokenTTL)
	}
	return kv.NewMemory[models.Session](), kv.NewMemory[models.ResetToken]()
}

func buildLimiters(cfg *config.AppConfig, client *redis.Client, clk clock.Clock) (ratelimit.Limiter, ratelimit.Limiter) {
	sec := cfg.Security
	if sec.LimiterBackend == backendRedis {
		return ratelimit.NewRedis(client, sec.LoginMaxFailures, sec.LoginWindow, clk),
			ratelimit.NewRedis(client, sec.ResetMaxAttempts, sec.ResetWindow, clk)
	}
	return ratelimit.NewMemory(sec.LoginMaxFailures, sec.LoginWindow, clk),
		ratelimit.NewMemory(sec.ResetMaxAttempts, sec.ResetWindow, clk)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	if scheduler != nil {
		scheduler.Stop(5 * time.Second)
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}
}
