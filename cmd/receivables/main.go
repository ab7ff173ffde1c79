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

	"github.com/odyssey-erp/receivables/internal/analytics"
	analytichttp "github.com/odyssey-erp/receivables/internal/analytics/http"
	"github.com/odyssey-erp/receivables/internal/app"
	"github.com/odyssey-erp/receivables/internal/ar"
	"github.com/odyssey-erp/receivables/internal/observability"
	"github.com/odyssey-erp/receivables/internal/platform/cache"
	"github.com/odyssey-erp/receivables/internal/platform/db"
	"github.com/odyssey-erp/receivables/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	store := ar.NewStore(ar.NewRepository(dbpool), logger)
	reportCache := analytics.NewCache(redisClient, cfg.ReportCacheTTL)
	service := analytics.NewService(store, reportCache, logger).WithObserver(metrics)

	if snap, err := store.Load(ctx); err != nil {
		// Report endpoints answer 503 until a later reload succeeds.
		logger.Error("initial snapshot load", slog.Any("error", err))
	} else {
		metrics.ObserveSnapshot(len(snap.Invoices()), len(snap.Payments()))
		logger.Info("snapshot loaded",
			slog.String("snapshot_id", snap.ID().String()),
			slog.Int("invoices", len(snap.Invoices())),
			slog.Int("payments", len(snap.Payments())),
		)
	}

	// Bumps from the worker reload the local store without bumping again.
	// Bumps published by this process's own reload endpoint are skipped.
	err = reportCache.ListenForInvalidation(ctx, analytics.BumpChannel, func(ctx context.Context, version int64) {
		result, reloaded, err := service.ApplyBump(ctx, version)
		if err != nil {
			logger.Warn("snapshot reload after bump", slog.Int64("version", version), slog.Any("error", err))
			return
		}
		if !reloaded {
			return
		}
		metrics.ObserveSnapshot(result.Invoices, result.Payments)
		logger.Info("snapshot reloaded", slog.Int64("version", version), slog.String("snapshot_id", result.SnapshotID))
	})
	if err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		ReportsHandler: analytichttp.NewHandler(logger, service, cfg.ReloadTokenHash, cfg.AppRequestTimeout),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Ready: func(context.Context) error {
			_, err := store.Current()
			return err
		},
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
