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

	"github.com/batasku/periodlock/internal/app"
	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/authz"
	"github.com/batasku/periodlock/internal/closing"
	closinghttp "github.com/batasku/periodlock/internal/closing/http"
	"github.com/batasku/periodlock/internal/ledger"
	"github.com/batasku/periodlock/internal/observability"
	"github.com/batasku/periodlock/internal/platform/cache"
	"github.com/batasku/periodlock/internal/platform/db"
	"github.com/batasku/periodlock/jobs"
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
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	ledgerGateway := ledger.NewPostgresGateway(dbpool)
	periodRepo := closing.NewPostgresRepository(dbpool)
	auditStore := audit.NewPostgresStore(dbpool)
	gate := authz.NewGate()

	notifier, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr}, cfg.NotifyRecipient)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	configCache := closing.NewConfigCache(periodRepo, redisClient, logger)
	closingService := closing.NewService(periodRepo, ledgerGateway, gate, auditStore, notifier, logger).
		WithConfigCache(configCache)
	enforcer := closing.NewEnforcer(periodRepo, configCache, gate, auditStore, logger)

	metrics := observability.NewMetrics()
	closingHandler := closinghttp.NewHandler(closingService, enforcer, auditStore, logger).
		WithMetrics(metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		ClosingHandler: closingHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
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
