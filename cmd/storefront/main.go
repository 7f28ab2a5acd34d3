package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recargaplus/storefront/internal/app"
	"github.com/recargaplus/storefront/internal/auth"
	"github.com/recargaplus/storefront/internal/backend"
	"github.com/recargaplus/storefront/internal/dashboard"
	"github.com/recargaplus/storefront/internal/observability"
	"github.com/recargaplus/storefront/internal/platform/cache"
	"github.com/recargaplus/storefront/internal/proxy"
	"github.com/recargaplus/storefront/internal/rbac"
	"github.com/recargaplus/storefront/internal/shared"
	"github.com/recargaplus/storefront/internal/view"
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

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "storefront_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	routeTable, err := rbac.NewRouteTable(rbac.DashboardRoot, cfg.DashboardRoleList(), rbac.DefaultRules())
	if err != nil {
		logger.Error("build route table", slog.Any("error", err))
		os.Exit(1)
	}

	backendClient := backend.NewClient(cfg.BackendBaseURL, cfg.BackendTimeout)
	if !backendClient.Configured() {
		logger.Warn("BACKEND_BASE_URL is empty; API and login calls will fail")
	}

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RouteGuard:       rbac.NewGuard(routeTable, logger, metrics),
		AuthHandler:      auth.NewHandler(logger, backendClient, templates, sessionManager, csrfManager, cfg.LoginRateLimit),
		DashboardHandler: dashboard.NewHandler(logger, backendClient, templates, sessionManager, csrfManager, routeTable),
		ProxyHandler:     proxy.NewHandler(logger, backendClient, metrics),
		Metrics:          metrics,
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
