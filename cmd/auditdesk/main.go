package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/auditdesk/auditdesk/internal/app"
	"github.com/auditdesk/auditdesk/internal/auth"
	"github.com/auditdesk/auditdesk/internal/capability"
	"github.com/auditdesk/auditdesk/internal/observability"
	"github.com/auditdesk/auditdesk/internal/platform/cache"
	"github.com/auditdesk/auditdesk/internal/platform/db"
	"github.com/auditdesk/auditdesk/internal/rbac"
	rbachttp "github.com/auditdesk/auditdesk/internal/rbac/http"
	"github.com/auditdesk/auditdesk/internal/rpc"
	"github.com/auditdesk/auditdesk/internal/shared"
	"github.com/auditdesk/auditdesk/internal/view"
	"github.com/auditdesk/auditdesk/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "auditdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	rbacRepo := rbac.NewRepository(dbpool)
	mappings := rbac.NewCachedMappings(rbacRepo, redisClient, cfg.AuthzMappingCacheTTL, logger)
	rbacService := rbac.NewService(rbacRepo, mappings, auditLogger, logger)
	if err := rbacService.Bootstrap(ctx); err != nil {
		logger.Error("rbac bootstrap", slog.Any("error", err))
		os.Exit(1)
	}

	enforcer := rbac.NewEnforcer(mappings, rbac.MultiRecorder{
		rbac.LogRecorder{Logger: logger},
		metrics,
	}, logger)
	rbacMiddleware := rbac.Middleware{Enforcer: enforcer, Logger: logger}

	var abilityOpts []rbac.AbilityOption
	if cfg.TraceAuthz() {
		abilityOpts = append(abilityOpts, rbac.WithTrace(logger))
	}
	provider := &capability.Provider{
		Source:  rbac.StaticPolicy{},
		Header:  cfg.ImpersonationHeader,
		Logger:  logger,
		Options: abilityOpts,
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	procedures := rpc.NewRouter(enforcer, logger)
	procedures.Register(rbachttp.Procedures(rbacService, enforcer, jobClient)...)
	logger.Info("registered procedures", slog.Any("procedures", procedures.Names()))

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Templates:         templates,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Capabilities:      provider,
		AuthHandler:       authHandler,
		CapabilityHandler: capability.NewHandler(logger, rbacMiddleware),
		RBACHandler:       rbachttp.NewHandler(logger, rbacService, templates, csrfManager, rbacMiddleware),
		Procedures:        procedures,
		JobHandler:        jobs.NewHandler(inspector, logger, rbacMiddleware),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
