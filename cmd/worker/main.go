// Package main runs the background worker that sends queued confirmation emails.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/erp-solwed/formaciones/config"
	"github.com/erp-solwed/formaciones/internal/app"
	"github.com/erp-solwed/formaciones/internal/notify"
	"github.com/erp-solwed/formaciones/internal/worker"
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

	ctx := context.Background()
	rdb, err := redis.NewClient(ctx, cfg.Redis.URL, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	recorder, closeDB := app.EmailRecorder(ctx, cfg.Database, logger)
	defer closeDB()

	crm, webinar := app.Providers(cfg, logger)
	delivery := notify.NewDelivery(crm, recorder, webinar, cfg.Server.OutboundTimeout(), logger)
	processor := worker.NewConfirmationProcessor(queue.NewQueue(rdb.Client, logger), delivery, logger)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		processor.Run(workerCtx)
		close(done)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	<-done
	logger.Info("worker stopped")
}
