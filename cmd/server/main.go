// Package main runs the formaciones registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/config"
	"github.com/erp-solwed/formaciones/internal/app"
	"github.com/erp-solwed/formaciones/internal/middleware"
	"github.com/erp-solwed/formaciones/internal/notify"
	"github.com/erp-solwed/formaciones/internal/registrations"
	"github.com/erp-solwed/formaciones/internal/validation"
	"github.com/erp-solwed/formaciones/pkg/queue"
	"github.com/erp-solwed/formaciones/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := app.NewLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	crm, webinar := app.Providers(cfg, logger)

	// Confirmation emails: in-process pool, or the Redis queue drained by cmd/worker.
	var (
		dispatcher notify.Dispatcher
		pool       *notify.Pool
	)
	switch cfg.Notify.Mode {
	case config.NotifyQueue:
		rdb, err := redis.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		dispatcher = notify.NewQueueDispatcher(queue.NewQueue(rdb.Client, logger), logger)
	default:
		recorder, closeDB := app.EmailRecorder(ctx, cfg.Database, logger)
		defer closeDB()
		delivery := notify.NewDelivery(crm, recorder, webinar, cfg.Server.OutboundTimeout(), logger)
		pool = notify.NewPool(delivery, cfg.Notify.Workers, cfg.Notify.QueueSize, logger)
		pool.Start(ctx)
		dispatcher = pool
	}
	logger.Info("confirmation emails", zap.String("mode", cfg.Notify.Mode))

	svc := registrations.NewService(crm, webinar, dispatcher, cfg.Server.OutboundTimeout(), logger)
	handler := registrations.NewHandler(svc, validation.New(), logger)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, 10*time.Minute)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	router, err := app.NewRouter(cfg.Server.CORSAllowedOrigins, cfg.Server.TrustedProxies, handler, limiter, logger)
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if pool != nil {
		if err := pool.Stop(shutdownCtx); err != nil {
			logger.Warn("notification pool not drained", zap.Error(err))
		}
	}
	cancel()
	logger.Info("server stopped")
}
